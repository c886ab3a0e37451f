package handler

import (
	"net/http"

	"github.com/yukke-bit/fitbit-data-connector/internal/middleware"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分
)

// CookieConfig はハンドラーが発行するCookieの属性。
type CookieConfig struct {
	Domain string
	Secure bool
}

func setSessionCookie(w http.ResponseWriter, cfg CookieConfig, sessionID string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	setSessionCookie(w, cfg, "", -1)
}

func setStateCookie(w http.ResponseWriter, cfg CookieConfig, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearStateCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
