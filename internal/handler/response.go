package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/yukke-bit/fitbit-data-connector/internal/middleware"
	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// successResponse はAPI成功レスポンスの統一フォーマット。
type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeSuccess は {success: true, data} を200で書き込む。
func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: data})
}

// handleServiceError はサービス層のエラーを統一エラーレスポンスに変換する。
// 上流のレスポンスボディはログにのみ残し、クライアントには返さない。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)

	attrs := []any{
		slog.String("error", err.Error()),
		slog.String("kind", string(model.KindOf(err))),
		slog.Int("status", status),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", attrs...)
	} else {
		slog.Warn("request failed", attrs...)
	}

	var e *model.Error
	if errors.As(err, &e) && e.Kind == model.KindRateLimit && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
	}

	middleware.WriteErrorResponse(w, status, model.ToAPIError(err))
}

// statusForError はエラー種別をHTTPステータスコードに変換する。
func statusForError(err error) int {
	var e *model.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch e.Kind {
	case model.KindInvalidParameter, model.KindMissingCode:
		return http.StatusBadRequest
	case model.KindUnauthenticated, model.KindInvalidToken, model.KindRefresh:
		return http.StatusUnauthorized
	case model.KindInsufficientScope:
		return http.StatusForbidden
	case model.KindRateLimit:
		return http.StatusTooManyRequests
	case model.KindUpstream:
		if e.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case model.KindAuthExchange:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
