package fitbit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// numeric は数値または数値文字列のどちらでも受け付ける。
// Fitbitの時系列は値を "1000" のような文字列で返す。
type numeric float64

func (n *numeric) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q: %w", b, err)
	}
	*n = numeric(f)
	return nil
}

type rawSample struct {
	DateTime string  `json:"dateTime"`
	Value    numeric `json:"value"`
}

type rawHeartRateDay struct {
	DateTime string `json:"dateTime"`
	Value    struct {
		RestingHeartRate     int                   `json:"restingHeartRate"`
		HeartRateZones       []model.HeartRateZone `json:"heartRateZones"`
		CustomHeartRateZones []model.HeartRateZone `json:"customHeartRateZones"`
	} `json:"value"`
}

type rawSleep struct {
	DateOfSleep         string `json:"dateOfSleep"`
	StartTime           string `json:"startTime"`
	EndTime             string `json:"endTime"`
	Duration            int64  `json:"duration"`
	MinutesAsleep       int    `json:"minutesAsleep"`
	MinutesAwake        int    `json:"minutesAwake"`
	MinutesToFallAsleep int    `json:"minutesToFallAsleep"`
	TimeInBed           int    `json:"timeInBed"`
	Efficiency          int    `json:"efficiency"`
}

type rawDevice struct {
	ID            string `json:"id"`
	DeviceVersion string `json:"deviceVersion"`
	Type          string `json:"type"`
	BatteryLevel  int    `json:"batteryLevel"`
	Battery       string `json:"battery"`
	LastSyncTime  string `json:"lastSyncTime"`
}

// GetUserProfile はユーザープロフィールを取得する。
// 表示用の文字列は無害化し、アバターはhttpsのURLのみ返す。
func (c *Client) GetUserProfile(ctx context.Context, accessToken string) (*model.UserProfile, error) {
	var resp struct {
		User model.UserProfile `json:"user"`
	}
	if err := c.getJSON(ctx, accessToken, "profile", "/profile.json", &resp); err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	p := resp.User
	p.DisplayName = c.sanitizer.Text(p.DisplayName)
	p.FullName = c.sanitizer.Text(p.FullName)
	p.Gender = c.sanitizer.Text(p.Gender)
	p.Timezone = c.sanitizer.Text(p.Timezone)
	p.MemberSince = c.sanitizer.Text(p.MemberSince)
	p.Avatar = c.sanitizer.ImageURL(p.Avatar)
	return &p, nil
}

// GetActivitySample は指定日の1種類のアクティビティ値を取得する。
// データがない日はnilを返す。
func (c *Client) GetActivitySample(ctx context.Context, accessToken string, activity model.ActivityType, date string) (*model.ActivitySample, error) {
	if err := model.ValidateDate(date); err != nil {
		return nil, err
	}

	samples, err := c.getActivities(ctx, accessToken, "activity", activity,
		fmt.Sprintf("/activities/%s/date/%s.json", activity, date))
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return &samples[0], nil
}

// GetActivityTimeSeries は今日までの期間のアクティビティ時系列を取得する。
func (c *Client) GetActivityTimeSeries(ctx context.Context, accessToken string, activity model.ActivityType, period model.Period) ([]model.ActivitySample, error) {
	return c.getActivities(ctx, accessToken, "activity_series", activity,
		fmt.Sprintf("/activities/%s/date/today/%s.json", activity, periodPath(period)))
}

func (c *Client) getActivities(ctx context.Context, accessToken, endpoint string, activity model.ActivityType, path string) ([]model.ActivitySample, error) {
	// キーが種別ごとに変わり、intradayなど配列以外の値も混在する
	var resp map[string]json.RawMessage
	if err := c.getJSON(ctx, accessToken, endpoint, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to get %s activity: %w", activity, err)
	}

	var raw []rawSample
	if data, ok := resp["activities-"+string(activity)]; ok {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &model.Error{Kind: model.KindUpstream, Message: "invalid activity series", Err: err}
		}
	}
	samples := make([]model.ActivitySample, 0, len(raw))
	for _, s := range raw {
		samples = append(samples, model.ActivitySample{Date: s.DateTime, Value: float64(s.Value)})
	}
	return samples, nil
}

// periodPath は期間をFitbitのパス表記に変換する。
// "today" はFitbit側の "1d" に相当する。
func periodPath(p model.Period) string {
	if p == model.PeriodToday {
		return "1d"
	}
	return string(p)
}

// GetHeartRateSample は指定日の心拍データを取得する。データがない日はnilを返す。
func (c *Client) GetHeartRateSample(ctx context.Context, accessToken, date string) (*model.HeartRateSample, error) {
	if err := model.ValidateDate(date); err != nil {
		return nil, err
	}

	var resp struct {
		Days []rawHeartRateDay `json:"activities-heart"`
	}
	if err := c.getJSON(ctx, accessToken, "heartrate", fmt.Sprintf("/activities/heart/date/%s.json", date), &resp); err != nil {
		return nil, fmt.Errorf("failed to get heart rate: %w", err)
	}
	if len(resp.Days) == 0 {
		return nil, nil
	}

	day := resp.Days[0]
	return &model.HeartRateSample{
		Date:             day.DateTime,
		RestingHeartRate: day.Value.RestingHeartRate,
		Zones:            day.Value.HeartRateZones,
		CustomZones:      day.Value.CustomHeartRateZones,
	}, nil
}

// GetSleepSession は指定日の主睡眠を取得する。記録がない日はnilを返す。
func (c *Client) GetSleepSession(ctx context.Context, accessToken, date string) (*model.SleepSession, error) {
	return c.sleepSession(ctx, accessToken, date, c.getJSON)
}

// jsonGetter はgetJSONまたはfetchJSON。
type jsonGetter func(ctx context.Context, accessToken, endpoint, path string, out any) error

func (c *Client) sleepSession(ctx context.Context, accessToken, date string, get jsonGetter) (*model.SleepSession, error) {
	if err := model.ValidateDate(date); err != nil {
		return nil, err
	}

	var resp struct {
		Sleep []rawSleep `json:"sleep"`
	}
	if err := get(ctx, accessToken, "sleep", fmt.Sprintf("/sleep/date/%s.json", date), &resp); err != nil {
		return nil, fmt.Errorf("failed to get sleep for %s: %w", date, err)
	}
	if len(resp.Sleep) == 0 {
		return nil, nil
	}

	s := resp.Sleep[0]
	return &model.SleepSession{
		Date:                s.DateOfSleep,
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		Duration:            s.Duration,
		MinutesAsleep:       s.MinutesAsleep,
		MinutesAwake:        s.MinutesAwake,
		MinutesToFallAsleep: s.MinutesToFallAsleep,
		TimeInBed:           s.TimeInBed,
		Efficiency:          s.Efficiency,
	}, nil
}

// GetSleepTimeSeries は期間内の睡眠を日ごとに取得する。
// Fitbitには睡眠の時系列エンドポイントがないため1日1リクエストを並行に発行する。
// 結果は古い日付から順に並び、記録のない日は含まない。
// いずれかの日の取得に失敗した場合は全体を失敗とする。
// 日数分のバジェットは開始前にまとめて確保し、1時間あたりの上限を超える期間は取得せずに拒否する。
func (c *Client) GetSleepTimeSeries(ctx context.Context, accessToken string, period model.Period) ([]model.SleepSession, error) {
	days := period.Days()
	if days == 0 {
		return nil, model.NewError(model.KindInvalidParameter, fmt.Sprintf("period %q", period), nil)
	}
	if c.budget != nil && days > c.budget.capacity() {
		return nil, model.NewError(model.KindInvalidParameter,
			fmt.Sprintf("sleep period %q needs %d requests, over the limit of %d per hour", period, days, c.budget.capacity()), nil)
	}
	if err := c.spend(accessToken, "sleep", days); err != nil {
		return nil, fmt.Errorf("failed to get sleep series: %w", err)
	}

	dates := dateRange(c.now(), days)
	results := make([]*model.SleepSession, len(dates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.sleepConcurrency)
	for i, date := range dates {
		i, date := i, date
		g.Go(func() error {
			s, err := c.sleepSession(gctx, accessToken, date, c.fetchJSON)
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sessions := make([]model.SleepSession, 0, len(results))
	for _, s := range results {
		if s != nil {
			sessions = append(sessions, *s)
		}
	}
	return sessions, nil
}

// dateRange はtodayを末尾とするdays日分の日付を古い順に返す。
func dateRange(today time.Time, days int) []string {
	dates := make([]string, 0, days)
	for i := days - 1; i >= 0; i-- {
		dates = append(dates, today.AddDate(0, 0, -i).Format(model.DateLayout))
	}
	return dates
}

// GetDevices はユーザーに紐づくデバイス一覧を取得する。
func (c *Client) GetDevices(ctx context.Context, accessToken string) ([]model.Device, error) {
	var resp []rawDevice
	if err := c.getJSON(ctx, accessToken, "devices", "/devices.json", &resp); err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	devices := make([]model.Device, 0, len(resp))
	for _, d := range resp {
		devices = append(devices, model.Device{
			ID:            d.ID,
			DeviceVersion: c.sanitizer.Text(d.DeviceVersion),
			Type:          c.sanitizer.Text(d.Type),
			BatteryLevel:  d.BatteryLevel,
			Battery:       c.sanitizer.Text(d.Battery),
			LastSyncTime:  d.LastSyncTime,
		})
	}
	return devices, nil
}
