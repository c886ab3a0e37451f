package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yukke-bit/fitbit-data-connector/internal/auth"
	"github.com/yukke-bit/fitbit-data-connector/internal/dashboard"
	"github.com/yukke-bit/fitbit-data-connector/internal/middleware"
	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// DashboardServiceInterface はAPIハンドラーが必要とするダッシュボードサービスのインターフェース。
type DashboardServiceInterface interface {
	Profile(ctx context.Context, accessToken string) (*model.UserProfile, error)
	TodayActivity(ctx context.Context, accessToken string) (*model.TodayActivity, error)
	ActivitySeries(ctx context.Context, accessToken string, activity model.ActivityType, period model.Period, goal float64) (*dashboard.ActivitySeries, error)
	HeartRate(ctx context.Context, accessToken, date string) (*model.HeartRateSample, error)
	Sleep(ctx context.Context, accessToken, date string) (*dashboard.SleepDetail, error)
	SleepSeries(ctx context.Context, accessToken string, period model.Period) ([]model.SleepSession, error)
	WeeklySummary(ctx context.Context, accessToken string) (*model.WeeklySummary, error)
	Devices(ctx context.Context, accessToken string) ([]dashboard.DeviceStatus, error)
}

// RequestGate はリクエストのトークン解決と上流401時の再試行を行う。auth.Gateが実装する。
type RequestGate interface {
	Authenticate(ctx context.Context, r *http.Request, session *model.Session) (*auth.Principal, error)
	Do(ctx context.Context, r *http.Request, session *model.Session, fn func(ctx context.Context, accessToken string) error) error
}

var (
	_ DashboardServiceInterface = (*dashboard.Service)(nil)
	_ RequestGate               = (*auth.Gate)(nil)
)

// ApiHandler はFitbitデータ取得APIのHTTPハンドラー。
type ApiHandler struct {
	gate    RequestGate
	service DashboardServiceInterface
	cookie  CookieConfig
	now     func() time.Time
}

// NewApiHandler はApiHandlerを生成する。
func NewApiHandler(gate RequestGate, service DashboardServiceInterface, cookie CookieConfig) *ApiHandler {
	return &ApiHandler{
		gate:    gate,
		service: service,
		cookie:  cookie,
		now:     time.Now,
	}
}

// fetch はゲートを通してfnを実行し、結果を {success: true, data} で返す。
func fetch[T any](h *ApiHandler, w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, accessToken string) (T, error)) {
	var result T
	err := h.gate.Do(r.Context(), r, middleware.SessionFromContext(r.Context()), func(ctx context.Context, accessToken string) error {
		var err error
		result, err = fn(ctx, accessToken)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, result)
}

// fail はエラーレスポンスを返す。
// リフレッシュ失敗などでセッションが破棄された場合はCookieもクリアする。
func (h *ApiHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, model.ErrUnauthenticated) {
		if session := middleware.SessionFromContext(r.Context()); session != nil && !session.Authenticated() {
			clearSessionCookie(w, h.cookie)
		}
	}
	handleServiceError(w, r, err)
}

// Profile はユーザープロフィールを返す。
// GET /api/profile
func (h *ApiHandler) Profile(w http.ResponseWriter, r *http.Request) {
	fetch(h, w, r, h.service.Profile)
}

// TodayActivity は本日のアクティビティ概要を返す。
// GET /api/activity/today
func (h *ApiHandler) TodayActivity(w http.ResponseWriter, r *http.Request) {
	fetch(h, w, r, h.service.TodayActivity)
}

// ActivitySeries はアクティビティの時系列と統計値を返す。
// GET /api/activity/{type}?period=7d&goal=10000
func (h *ApiHandler) ActivitySeries(w http.ResponseWriter, r *http.Request) {
	activity, err := model.ParseActivityType(chi.URLParam(r, "type"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	period, err := model.ParsePeriod(queryOrDefault(r, "period", string(model.PeriodToday)))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	goal, err := parseGoal(r.URL.Query().Get("goal"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	fetch(h, w, r, func(ctx context.Context, accessToken string) (*dashboard.ActivitySeries, error) {
		return h.service.ActivitySeries(ctx, accessToken, activity, period, goal)
	})
}

// HeartRate は指定日の心拍データを返す。記録がない日はdataがnull。
// GET /api/heartrate?date=today
func (h *ApiHandler) HeartRate(w http.ResponseWriter, r *http.Request) {
	date := queryOrDefault(r, "date", "today")
	if err := model.ValidateDate(date); err != nil {
		handleServiceError(w, r, err)
		return
	}

	fetch(h, w, r, func(ctx context.Context, accessToken string) (*model.HeartRateSample, error) {
		return h.service.HeartRate(ctx, accessToken, date)
	})
}

// Sleep は指定日の睡眠記録を返す。記録がない日はdataがnull。
// GET /api/sleep?date=today
func (h *ApiHandler) Sleep(w http.ResponseWriter, r *http.Request) {
	date := queryOrDefault(r, "date", "today")
	if err := model.ValidateDate(date); err != nil {
		handleServiceError(w, r, err)
		return
	}

	fetch(h, w, r, func(ctx context.Context, accessToken string) (*dashboard.SleepDetail, error) {
		return h.service.Sleep(ctx, accessToken, date)
	})
}

// SleepSeries は期間内の睡眠記録を古い順に返す。
// GET /api/sleep/series?period=7d
func (h *ApiHandler) SleepSeries(w http.ResponseWriter, r *http.Request) {
	period, err := model.ParsePeriod(queryOrDefault(r, "period", string(model.Period7Days)))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	fetch(h, w, r, func(ctx context.Context, accessToken string) ([]model.SleepSession, error) {
		return h.service.SleepSeries(ctx, accessToken, period)
	})
}

// WeeklySummary は直近7日間の平均と明細を返す。
// GET /api/summary/weekly
func (h *ApiHandler) WeeklySummary(w http.ResponseWriter, r *http.Request) {
	fetch(h, w, r, h.service.WeeklySummary)
}

// Devices はデバイス一覧を返す。
// GET /api/devices
func (h *ApiHandler) Devices(w http.ResponseWriter, r *http.Request) {
	fetch(h, w, r, h.service.Devices)
}

// connectionStatus は /api/status のレスポンス内容。
type connectionStatus struct {
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	UserID      string    `json:"userId,omitempty"`
	TokenSource string    `json:"tokenSource"`
}

// Status はアクセストークンが解決できるかを確認する。上流APIは呼ばない。
// GET /api/status
func (h *ApiHandler) Status(w http.ResponseWriter, r *http.Request) {
	p, err := h.gate.Authenticate(r.Context(), r, middleware.SessionFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeSuccess(w, connectionStatus{
		Message:     "Fitbit API connection is working",
		Timestamp:   h.now().UTC(),
		UserID:      p.UserID,
		TokenSource: p.Source,
	})
}

func queryOrDefault(r *http.Request, key, def string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}

// parseGoal は目標値を読み取る。未指定の場合は0。
func parseGoal(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	goal, err := strconv.ParseFloat(s, 64)
	if err != nil || goal < 0 {
		return 0, model.NewError(model.KindInvalidParameter, "goal "+strconv.Quote(s), err)
	}
	return goal, nil
}
