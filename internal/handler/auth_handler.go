// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/yukke-bit/fitbit-data-connector/internal/auth"
	"github.com/yukke-bit/fitbit-data-connector/internal/middleware"
	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// ログイン画面に渡すエラーコード
const (
	loginErrorConfigMissing = "config_missing"
	loginErrorNoCode        = "no_code"
	loginErrorInvalidState  = "invalid_state"
	loginErrorTokenFailed   = "token_failed"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) (string, error)
	Setup(state string, creds model.Credentials) (string, error)
	HandleCallback(ctx context.Context, params auth.CallbackParams) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	Status(session *model.Session) auth.AuthStatus
}

var _ AuthServiceInterface = (*auth.Service)(nil)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	DashboardPath string // 認証成功後のリダイレクト先
	LoginPath     string // 認証失敗時のリダイレクト先
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int  // セッションCookieの有効期間（秒）
	DynamicSetup  bool // /auth/setup を有効にする
}

func (c AuthHandlerConfig) cookie() CookieConfig {
	return CookieConfig{Domain: c.CookieDomain, Secure: c.CookieSecure}
}

// AuthHandler はFitbit OAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	if config.DashboardPath == "" {
		config.DashboardPath = "/dashboard"
	}
	if config.LoginPath == "" {
		config.LoginPath = "/login"
	}
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Login はFitbit OAuthフローを開始する。
// GET /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	authURL, err := h.service.GetLoginURL(state)
	if err != nil {
		slog.Error("failed to build authorization url", slog.String("error", err.Error()))
		h.redirectToLogin(w, r, loginErrorConfigMissing, "Fitbit APIの設定が不足しています")
		return
	}

	setStateCookie(w, h.config.cookie(), state)
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// authURLResponse は認可URLをJSONで返す場合のレスポンス。
type authURLResponse struct {
	Success bool   `json:"success"`
	AuthURL string `json:"authUrl"`
	Message string `json:"message"`
}

// FitbitURL は認可URLをJSONで返す。フロントエンドから遷移させる場合に使う。
// GET /auth/fitbit
func (h *AuthHandler) FitbitURL(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	authURL, err := h.service.GetLoginURL(state)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	setStateCookie(w, h.config.cookie(), state)
	writeJSON(w, http.StatusOK, authURLResponse{
		Success: true,
		AuthURL: authURL,
		Message: "Fitbitの認証ページに移動してください",
	})
}

// setupRequest は動的セットアップで受け取る資格情報。
type setupRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectUri"`
	Scope        string `json:"scope"`
}

// Setup は利用者が入力した資格情報で認可URLを生成する。
// 資格情報はこの認可フローの間だけ保持する。
// POST /auth/setup
func (h *AuthHandler) Setup(w http.ResponseWriter, r *http.Request) {
	if !h.config.DynamicSetup {
		http.NotFound(w, r)
		return
	}

	req, err := decodeSetupRequest(w, r)
	if err != nil {
		handleServiceError(w, r, model.NewError(model.KindInvalidParameter, "request body", err))
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	authURL, err := h.service.Setup(state, model.Credentials{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		RedirectURI:  req.RedirectURI,
		Scope:        req.Scope,
	})
	if err != nil {
		if errors.Is(err, model.ErrConfiguration) {
			// 入力値の不足は利用者側の問題
			err = model.NewError(model.KindInvalidParameter, "clientId, clientSecret and redirectUri are required", err)
		}
		handleServiceError(w, r, err)
		return
	}

	setStateCookie(w, h.config.cookie(), state)
	writeJSON(w, http.StatusOK, authURLResponse{
		Success: true,
		AuthURL: authURL,
		Message: "Fitbitの認証ページに移動してください",
	})
}

// decodeSetupRequest はJSONまたはフォームのボディを読み取る。
func decodeSetupRequest(w http.ResponseWriter, r *http.Request) (setupRequest, error) {
	var req setupRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req)
		return req, err
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.ClientID = r.PostForm.Get("clientId")
	req.ClientSecret = r.PostForm.Get("clientSecret")
	req.RedirectURI = r.PostForm.Get("redirectUri")
	req.Scope = r.PostForm.Get("scope")
	return req, nil
}

// Callback はOAuthコールバックを処理する。
// 成功時はセッションCookieを設定してダッシュボードへ、失敗時はログイン画面へリダイレクトする。
// GET /auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// 1. stateの検証（CSRF対策）
	state := query.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	clearStateCookie(w, h.config.cookie())
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		h.redirectToLogin(w, r, loginErrorInvalidState, "不正な認証リクエストです")
		return
	}

	// 2. 認可コードの交換とセッション発行
	session, err := h.service.HandleCallback(r.Context(), auth.CallbackParams{
		Code:             query.Get("code"),
		State:            state,
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	})
	if err != nil {
		slog.Warn("oauth callback failed", slog.String("error", err.Error()))
		code, description := callbackFailure(err)
		h.redirectToLogin(w, r, code, description)
		return
	}

	// 3. セッションCookieを設定（HTTP Only）
	setSessionCookie(w, h.config.cookie(), session.ID, h.config.SessionMaxAge)

	http.Redirect(w, r, h.config.DashboardPath, http.StatusTemporaryRedirect)
}

// callbackFailure はコールバックの失敗をログイン画面のエラーコードに変換する。
func callbackFailure(err error) (code, description string) {
	var denied *auth.DeniedError
	switch {
	case errors.As(err, &denied):
		return denied.Reason, denied.Description
	case errors.Is(err, model.ErrMissingCode):
		return loginErrorNoCode, "認証コードが見つかりません"
	case errors.Is(err, model.ErrConfiguration):
		return loginErrorConfigMissing, "Fitbit APIの設定が不足しています"
	default:
		return loginErrorTokenFailed, "トークンの取得に失敗しました"
	}
}

func (h *AuthHandler) redirectToLogin(w http.ResponseWriter, r *http.Request, code, description string) {
	q := url.Values{}
	q.Set("error", code)
	if description != "" {
		q.Set("error_description", description)
	}
	http.Redirect(w, r, h.config.LoginPath+"?"+q.Encode(), http.StatusTemporaryRedirect)
}

// logoutResponse はログアウトのレスポンス。
type logoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// 削除に失敗してもCookieはクリアする
		}
	}

	clearSessionCookie(w, h.config.cookie())

	writeJSON(w, http.StatusOK, logoutResponse{
		Success: true,
		Message: "ログアウトしました",
	})
}

// Status は現在のセッションの認証状態を返す。
// GET /auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, h.service.Status(session))
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
