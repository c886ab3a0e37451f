// Package dashboard はFitbitのデータをダッシュボード表示用に集約する。
// 本日のアクティビティや週次サマリーのような複数エンドポイントの並行取得と、
// 平均・統計などの派生値の計算を担う。
package dashboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// FitbitReader はFitbit APIの読み取り操作。fitbit.Clientが実装する。
type FitbitReader interface {
	GetUserProfile(ctx context.Context, accessToken string) (*model.UserProfile, error)
	GetActivitySample(ctx context.Context, accessToken string, activity model.ActivityType, date string) (*model.ActivitySample, error)
	GetActivityTimeSeries(ctx context.Context, accessToken string, activity model.ActivityType, period model.Period) ([]model.ActivitySample, error)
	GetHeartRateSample(ctx context.Context, accessToken, date string) (*model.HeartRateSample, error)
	GetSleepSession(ctx context.Context, accessToken, date string) (*model.SleepSession, error)
	GetSleepTimeSeries(ctx context.Context, accessToken string, period model.Period) ([]model.SleepSession, error)
	GetDevices(ctx context.Context, accessToken string) ([]model.Device, error)
}

// ActivitySeries はアクティビティ時系列と統計値。
type ActivitySeries struct {
	Type         model.ActivityType     `json:"type"`
	Period       model.Period           `json:"period"`
	Samples      []model.ActivitySample `json:"samples"`
	Stats        Stats                  `json:"stats"`
	GoalProgress *int                   `json:"goalProgress,omitempty"`
}

// SleepDetail は睡眠記録と睡眠効率の評価。
type SleepDetail struct {
	model.SleepSession
	EfficiencyCategory string `json:"efficiencyCategory"`
}

// DeviceStatus はデバイス情報とバッテリー区分。
type DeviceStatus struct {
	model.Device
	BatteryStatus string `json:"batteryStatus"`
}

// Service はダッシュボード用のデータ取得を提供する。
type Service struct {
	reader FitbitReader
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(reader FitbitReader) *Service {
	return &Service{reader: reader, now: time.Now}
}

// Profile はユーザープロフィールを返す。
func (s *Service) Profile(ctx context.Context, accessToken string) (*model.UserProfile, error) {
	return s.reader.GetUserProfile(ctx, accessToken)
}

// TodayActivity は本日の歩数・カロリー・距離・高強度活動時間を並行に取得する。
// いずれか1つでも失敗した場合は全体を失敗とする。データがない項目は0。
func (s *Service) TodayActivity(ctx context.Context, accessToken string) (*model.TodayActivity, error) {
	today := s.now().Format(model.DateLayout)
	types := []model.ActivityType{
		model.ActivitySteps,
		model.ActivityCalories,
		model.ActivityDistance,
		model.ActivityMinutesVeryActive,
	}
	values := make([]float64, len(types))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		i, t := i, t
		g.Go(func() error {
			sample, err := s.reader.GetActivitySample(gctx, accessToken, t, today)
			if err != nil {
				return err
			}
			if sample != nil {
				values[i] = sample.Value
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to get today's activity: %w", err)
	}

	return &model.TodayActivity{
		Date:          today,
		Steps:         model.MetricValue{Value: values[0]},
		Calories:      model.MetricValue{Value: values[1]},
		Distance:      model.MetricValue{Value: values[2]},
		ActiveMinutes: model.MetricValue{Value: values[3]},
	}, nil
}

// ActivitySeries は期間の時系列と統計値を返す。
// goalが正の場合は最新日の値の目標達成率を含める。
func (s *Service) ActivitySeries(ctx context.Context, accessToken string, activity model.ActivityType, period model.Period, goal float64) (*ActivitySeries, error) {
	samples, err := s.reader.GetActivityTimeSeries(ctx, accessToken, activity, period)
	if err != nil {
		return nil, err
	}

	series := &ActivitySeries{
		Type:    activity,
		Period:  period,
		Samples: samples,
		Stats:   CalculateStats(samples),
	}
	if goal > 0 && len(samples) > 0 {
		progress := GoalProgress(samples[len(samples)-1].Value, goal)
		series.GoalProgress = &progress
	}
	return series, nil
}

// HeartRate は指定日の心拍データを返す。データがない日はnil。
func (s *Service) HeartRate(ctx context.Context, accessToken, date string) (*model.HeartRateSample, error) {
	return s.reader.GetHeartRateSample(ctx, accessToken, date)
}

// Sleep は指定日の睡眠と評価を返す。記録がない日はnil。
func (s *Service) Sleep(ctx context.Context, accessToken, date string) (*SleepDetail, error) {
	session, err := s.reader.GetSleepSession(ctx, accessToken, date)
	if err != nil || session == nil {
		return nil, err
	}
	return &SleepDetail{
		SleepSession:       *session,
		EfficiencyCategory: SleepEfficiencyCategory(session.Efficiency),
	}, nil
}

// SleepSeries は期間内の睡眠記録を古い順に返す。
func (s *Service) SleepSeries(ctx context.Context, accessToken string, period model.Period) ([]model.SleepSession, error) {
	return s.reader.GetSleepTimeSeries(ctx, accessToken, period)
}

// WeeklySummary は直近7日間の歩数・カロリー・睡眠を並行に取得し平均を算出する。
func (s *Service) WeeklySummary(ctx context.Context, accessToken string) (*model.WeeklySummary, error) {
	var (
		steps    []model.ActivitySample
		calories []model.ActivitySample
		sleep    []model.SleepSession
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		steps, err = s.reader.GetActivityTimeSeries(gctx, accessToken, model.ActivitySteps, model.Period7Days)
		return err
	})
	g.Go(func() error {
		var err error
		calories, err = s.reader.GetActivityTimeSeries(gctx, accessToken, model.ActivityCalories, model.Period7Days)
		return err
	})
	g.Go(func() error {
		var err error
		sleep, err = s.reader.GetSleepTimeSeries(gctx, accessToken, model.Period7Days)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to get weekly summary: %w", err)
	}

	return &model.WeeklySummary{
		Period:   "7days",
		Averages: AggregateWeekly(steps, calories, sleep),
		Details: model.WeeklyDetails{
			Steps:    steps,
			Calories: calories,
			Sleep:    sleep,
		},
	}, nil
}

// Devices はデバイス一覧をバッテリー区分付きで返す。
func (s *Service) Devices(ctx context.Context, accessToken string) ([]DeviceStatus, error) {
	devices, err := s.reader.GetDevices(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	out := make([]DeviceStatus, 0, len(devices))
	for _, d := range devices {
		out = append(out, DeviceStatus{Device: d, BatteryStatus: BatteryStatus(d.BatteryLevel)})
	}
	return out, nil
}
