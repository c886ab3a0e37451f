package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

const (
	defaultFitbitAuthURL  = "https://www.fitbit.com/oauth2/authorize"
	defaultFitbitTokenURL = "https://api.fitbit.com/oauth2/token"
	defaultTokenTimeout   = 10 * time.Second
)

// FitbitOAuthConfig はFitbit OAuthプロバイダーの設定。
type FitbitOAuthConfig struct {
	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string

	// トークンエンドポイント呼び出しに使うHTTPクライアント。nilの場合はタイムアウト10秒。
	HTTPClient *http.Client
}

// FitbitOAuthProvider はFitbitの認可コードフローを提供する。
// クライアント資格情報は呼び出しごとに受け取る（動的セットアップに対応するため）。
type FitbitOAuthProvider struct {
	config FitbitOAuthConfig
}

// NewFitbitOAuthProvider はFitbitOAuthProviderを生成する。
func NewFitbitOAuthProvider(config FitbitOAuthConfig) *FitbitOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultFitbitAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultFitbitTokenURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: defaultTokenTimeout}
	}
	return &FitbitOAuthProvider{config: config}
}

// BuildAuthorizationURL はFitbitの認可URLを生成する。
// stateが空の場合はstateパラメータを付与しない。
func (p *FitbitOAuthProvider) BuildAuthorizationURL(creds model.Credentials, state string) (string, error) {
	var missing []string
	if creds.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if creds.RedirectURI == "" {
		missing = append(missing, "redirect_uri")
	}
	if len(missing) > 0 {
		return "", model.NewError(model.KindConfiguration, "missing "+strings.Join(missing, ", "), nil)
	}

	return p.oauthConfig(creds).AuthCodeURL(state), nil
}

// ExchangeCodeForTokens は認可コードをトークンに交換する。
// トークンエンドポイントにはBasic認証（client_id:client_secret）で接続する。
func (p *FitbitOAuthProvider) ExchangeCodeForTokens(ctx context.Context, code string, creds model.Credentials) (*model.TokenRecord, error) {
	if code == "" {
		return nil, model.NewError(model.KindMissingCode, "authorization code is empty", nil)
	}
	if err := requireClientCredentials(creds); err != nil {
		return nil, err
	}

	tok, err := p.oauthConfig(creds).Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, tokenEndpointError(model.KindAuthExchange, err)
	}

	rec, err := toTokenRecord(tok, "")
	if err != nil {
		return nil, model.NewError(model.KindAuthExchange, "invalid token response", err)
	}
	return rec, nil
}

// RefreshTokens はリフレッシュトークンで新しいアクセストークンを取得する。
// 上流がリフレッシュトークンを返さない場合は既存の値を引き継ぐ。UserIDは変更しない。
// リフレッシュトークンがない場合は上流を呼び出さずにRefreshErrorを返す。
func (p *FitbitOAuthProvider) RefreshTokens(ctx context.Context, record *model.TokenRecord, creds model.Credentials) (*model.TokenRecord, error) {
	if record == nil || record.RefreshToken == "" {
		return nil, model.NewError(model.KindRefresh, "refresh token is missing", nil)
	}
	if err := requireClientCredentials(creds); err != nil {
		return nil, model.NewError(model.KindRefresh, "client credentials unavailable", err)
	}

	src := p.oauthConfig(creds).TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: record.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, tokenEndpointError(model.KindRefresh, err)
	}

	rec, err := toTokenRecord(tok, record.RefreshToken)
	if err != nil {
		return nil, model.NewError(model.KindRefresh, "invalid token response", err)
	}
	rec.UserID = record.UserID
	return rec, nil
}

func (p *FitbitOAuthProvider) oauthConfig(creds model.Credentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       strings.Fields(creds.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.config.AuthURL,
			TokenURL:  p.config.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func (p *FitbitOAuthProvider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.config.HTTPClient)
}

func requireClientCredentials(creds model.Credentials) error {
	var missing []string
	if creds.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if creds.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if creds.RedirectURI == "" {
		missing = append(missing, "redirect_uri")
	}
	if len(missing) > 0 {
		return model.NewError(model.KindConfiguration, "missing "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// tokenEndpointError はトークンエンドポイントのエラーをドメインエラーに変換する。
// 非2xxの場合は上流のステータスとボディを保持する。
func tokenEndpointError(kind model.ErrorKind, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		e := model.NewUpstreamStatusError(kind, 0, string(re.Body))
		e.Message = "token endpoint rejected the request"
		if re.Response != nil {
			e.Status = re.Response.StatusCode
		}
		if re.ErrorCode != "" {
			e.Message = fmt.Sprintf("%s: %s", e.Message, re.ErrorCode)
		}
		return e
	}
	return model.NewError(kind, "token endpoint request failed", err)
}

// toTokenRecord はoauth2.TokenをTokenRecordに変換する。
// fallbackRefreshは上流がリフレッシュトークンを返さなかった場合に使う。
func toTokenRecord(tok *oauth2.Token, fallbackRefresh string) (*model.TokenRecord, error) {
	rec := &model.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if rec.RefreshToken == "" {
		rec.RefreshToken = fallbackRefresh
	}
	if uid, ok := tok.Extra("user_id").(string); ok {
		rec.UserID = uid
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
