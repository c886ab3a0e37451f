package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMITED",
		Message:  "Fitbit APIのリクエスト上限に達しました。",
		Category: "upstream",
		Action:   "しばらく時間をおいてから再度お試しください。",
	})

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if raw["success"] != false {
		t.Errorf("success = %v, want false", raw["success"])
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing field %q", field)
		}
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if w.Code != http.StatusInternalServerError || body.Code != "INTERNAL_ERROR" || body.Category != "system" {
		t.Errorf("status = %d, body = %+v", w.Code, body)
	}
}

func TestRecoveryMiddleware_ReturnsUnified500(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/profile", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	NewSecurityHeadersMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/profile", nil))

	if w.Header().Get("X-Content-Type-Options") != "nosniff" || w.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("headers = %v", w.Header())
	}
}
