package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yukke-bit/fitbit-data-connector/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder // nilの場合は記録しない
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// データ取得
	Gate             RequestGate
	DashboardService DashboardServiceInterface

	// 運用
	HealthChecks   map[string]HealthCheck
	MetricsHandler http.Handler // nilの場合は /metrics を公開しない
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → SecurityHeaders → CORS → Session → Logging
//
// /auth/* は認証用の厳しいレート制限、/api/* は通常のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	// ログにユーザーIDを含めるためSessionの後に置く
	r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	apiHandler := NewApiHandler(deps.Gate, deps.DashboardService, deps.AuthConfig.cookie())

	// --- 運用 ---
	r.Get("/health", NewHealthHandler(deps.HealthChecks))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証（OAuthフロー） ---
	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Get("/login", authHandler.Login)
		r.Get("/fitbit", authHandler.FitbitURL)
		r.Get("/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/status", authHandler.Status)

		// 資格情報を受け取るためCSRF検証を必須にする
		r.With(middleware.NewCSRFMiddleware(deps.CSRFConfig)).Post("/setup", authHandler.Setup)
	})

	// --- データ取得 ---
	r.Route("/api", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		r.Get("/status", apiHandler.Status)
		r.Get("/profile", apiHandler.Profile)
		r.Get("/activity/today", apiHandler.TodayActivity)
		r.Get("/activity/{type}", apiHandler.ActivitySeries)
		r.Get("/heartrate", apiHandler.HeartRate)
		r.Get("/sleep", apiHandler.Sleep)
		r.Get("/sleep/series", apiHandler.SleepSeries)
		r.Get("/summary/weekly", apiHandler.WeeklySummary)
		r.Get("/devices", apiHandler.Devices)
	})

	return r
}
