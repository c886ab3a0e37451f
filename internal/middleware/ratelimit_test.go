package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		AuthRate:        1,
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(userID, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.RemoteAddr = remoteAddr
	if userID != "" {
		req = req.WithContext(ContextWithSession(req.Context(), authenticatedSession("s-"+userID, userID)))
	}
	return req
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1", "10.0.0.1:1234"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1", "10.0.0.1:1234"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want %q", w.Header().Get("Retry-After"), "1")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Success || body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimitMiddleware_KeysByUserThenIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	// 同じIPでもユーザーが異なれば別枠
	for _, user := range []string{"user-1", "user-2"} {
		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, requestAs(user, "10.0.0.1:1234"))
			if w.Code != http.StatusOK {
				t.Errorf("%s request %d: status = %d, want 200", user, i, w.Code)
			}
		}
	}

	// 未認証はIP単位（ポートは無視）
	handler.ServeHTTP(httptest.NewRecorder(), requestAs("", "10.0.0.2:1111"))
	handler.ServeHTTP(httptest.NewRecorder(), requestAs("", "10.0.0.2:2222"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("", "10.0.0.2:3333"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 for the same IP", w.Code)
	}

	if got := rl.GeneralLimiterCount(); got != 3 {
		t.Errorf("GeneralLimiterCount = %d, want 3", got)
	}
}

func TestRateLimitMiddleware_AuthIndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	general := rl.GeneralMiddleware()(okHandler())
	auth := rl.AuthMiddleware()(okHandler())

	auth.ServeHTTP(httptest.NewRecorder(), requestAs("", "10.0.0.3:1"))
	w := httptest.NewRecorder()
	auth.ServeHTTP(w, requestAs("", "10.0.0.3:1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("auth status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestAs("", "10.0.0.3:1"))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", w.Code)
	}
	if rl.AuthLimiterCount() != 1 {
		t.Errorf("AuthLimiterCount = %d, want 1", rl.AuthLimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := testRateLimiterConfig()
	cfg.CleanupInterval = time.Hour
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("user-1", "10.0.0.1:1"))

	rl.general.mu.Lock()
	rl.general.limiters["user:user-1"].lastAccess = time.Now().Add(-3 * time.Hour)
	rl.general.mu.Unlock()

	rl.cleanup()

	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("GeneralLimiterCount = %d, want 0", rl.GeneralLimiterCount())
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.GeneralBurst != 120 || cfg.AuthBurst != 20 {
		t.Errorf("bursts = %d/%d, want 120/20", cfg.GeneralBurst, cfg.AuthBurst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v", cfg.CleanupInterval)
	}
}
