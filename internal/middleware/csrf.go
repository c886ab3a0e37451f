package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// フロントエンドからJavaScriptで読み取れるよう、HttpOnlyではない。
	csrfCookieName = "csrf_token"

	// csrfHeaderName はリクエストヘッダーからCSRFトークンを読み取る際のヘッダー名。
	csrfHeaderName = "X-CSRF-Token"

	// csrfFormField はHTMLフォーム送信時にCSRFトークンを読み取るフィールド名。
	csrfFormField = "csrf_token"

	csrfCookieMaxAge = 86400
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewCSRFMiddleware はダブルサブミットCookie方式のCSRF検証ミドルウェアを返す。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証せず、CSRFトークンCookieを設定する。
// 状態変更メソッドはCookieのトークンとヘッダー（またはフォームフィールド）のトークンの一致を必須とする。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				ensureCSRFCookie(w, r, config)
				next.ServeHTTP(w, r)
				return
			}

			cookieToken, err := r.Cookie(csrfCookieName)
			if err != nil || cookieToken.Value == "" {
				rejectCSRF(w, r, "missing cookie token")
				return
			}

			submitted := r.Header.Get(csrfHeaderName)
			if submitted == "" {
				submitted = r.PostFormValue(csrfFormField)
			}
			if submitted == "" {
				rejectCSRF(w, r, "missing submitted token")
				return
			}

			if cookieToken.Value != submitted {
				rejectCSRF(w, r, "token mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectCSRF(w http.ResponseWriter, r *http.Request, reason string) {
	slog.Warn("CSRF validation failed: "+reason,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
		Code:     "CSRF_INVALID",
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	})
}

// NewCSRFTokenHandler はCSRFトークン取得エンドポイントのハンドラーを返す。
// GET /api/csrf-token
// 既存のCSRFトークンCookieがある場合はそれを返し、なければ新規生成する。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string

		cookie, err := r.Cookie(csrfCookieName)
		if err == nil && cookie.Value != "" {
			token = cookie.Value
		} else {
			token, err = generateCSRFToken()
			if err != nil {
				slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
			setCSRFCookie(w, token, config)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"token": token,
		})
	})
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// ensureCSRFCookie はCSRFトークンCookieが未設定の場合に設定する。
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, config CSRFConfig) {
	if _, err := r.Cookie(csrfCookieName); err == nil {
		return
	}

	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
		return
	}
	setCSRFCookie(w, token, config)
}

func setCSRFCookie(w http.ResponseWriter, token string, config CSRFConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		HttpOnly: false, // フロントエンドから読み取り可能
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateCSRFToken は暗号的に安全なCSRFトークンを生成する。
func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
