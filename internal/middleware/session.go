// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
	sessionContextKey = contextKey("session")
	// requestIDContextKey はリクエストIDを格納するためのキー。
	requestIDContextKey = contextKey("request_id")
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 見つかった場合はリクエストコンテキストに注入するミドルウェアを返す。
// セッションがなくてもリクエストは拒否しない。
// Bearerトークンのみのリクエストもあるため、認証の判定はauth.Gateが行う。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if session == nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// セッションがない場合はnilを返す。
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(sessionContextKey).(*model.Session)
	return session
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// UserIDFromContext はリクエストコンテキストから認証済みのFitbitユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID := SessionFromContext(ctx).UserID()
	if userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}
