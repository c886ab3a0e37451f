package model

import (
	"errors"
	"time"
)

// TokenRecord はセッションに紐づくFitbitのトークン情報を表す。
// AccessTokenとExpiresAtは常に同時に書き込む。
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired は現在時刻が有効期限を過ぎている場合にtrueを返す。
func (t *TokenRecord) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Validate はアクセストークンと有効期限の整合性を検証する。
func (t *TokenRecord) Validate() error {
	if t.AccessToken == "" {
		return errors.New("access token is empty")
	}
	if t.ExpiresAt.IsZero() {
		return errors.New("access token has no expiry")
	}
	return nil
}

// Credentials はFitbit OAuthクライアントの資格情報を表す。
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string // スペース区切り
}

// DefaultScope はダッシュボードが要求するスコープ。
const DefaultScope = "activity heartrate sleep profile weight nutrition"

// Session はブラウザごとのサーバーサイドセッションを表す。
// Tokenがnilの場合は未認証状態。
type Session struct {
	ID        string       `json:"id"`
	Token     *TokenRecord `json:"token,omitempty"`
	ExpiresAt time.Time    `json:"expires_at"`
	CreatedAt time.Time    `json:"created_at"`
}

// Authenticated はトークンを保持している場合にtrueを返す。
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != nil && s.Token.AccessToken != ""
}

// UserID はセッションに紐づくFitbitユーザーIDを返す。
func (s *Session) UserID() string {
	if !s.Authenticated() {
		return ""
	}
	return s.Token.UserID
}
