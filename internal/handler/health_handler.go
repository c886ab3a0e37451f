package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthCheck はセッションストアなど依存先の疎通確認。
type HealthCheck func(ctx context.Context) error

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewHealthHandler は依存先の疎通を確認するハンドラーを返す。
// checksが空の場合は常に200を返す。
// GET /health
func NewHealthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.Error("health check failed",
					slog.String("check", name),
					slog.String("error", err.Error()),
				)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		writeJSON(w, status, resp)
	}
}
