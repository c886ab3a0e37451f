// Package auth はFitbit OAuth認可コードフロー、リクエストの認証ゲート、セッション発行を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
	"github.com/yukke-bit/fitbit-data-connector/internal/repository"
)

// OAuthFlow はOAuth認可コードフローの各ステップ。FitbitOAuthProviderが実装する。
type OAuthFlow interface {
	BuildAuthorizationURL(creds model.Credentials, state string) (string, error)
	ExchangeCodeForTokens(ctx context.Context, code string, creds model.Credentials) (*model.TokenRecord, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int               // セッション有効期間（秒）
	Credentials   model.Credentials // 環境変数から読み込んだ資格情報
}

// CallbackParams はOAuthコールバックのクエリパラメータ。
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// DeniedError はコールバックにerrorパラメータが付与された場合のエラー。
// 利用者が認可画面で拒否した場合など。
type DeniedError struct {
	Reason      string
	Description string
}

// Error はerrorインターフェースを実装する。
func (e *DeniedError) Error() string {
	if e.Description == "" {
		return "authorization denied: " + e.Reason
	}
	return fmt.Sprintf("authorization denied: %s (%s)", e.Reason, e.Description)
}

// Unwrap はAuthExchangeErrorとして扱えるようにする。
func (e *DeniedError) Unwrap() error {
	return model.ErrAuthExchange
}

// AuthStatus は /auth/status のレスポンス内容。
type AuthStatus struct {
	Authenticated bool       `json:"authenticated"`
	UserID        string     `json:"userId,omitempty"`
	TokenExpiry   *time.Time `json:"tokenExpiry,omitempty"`
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthFlow
	sessionRepo repository.SessionRepository
	pending     *pendingCredentials
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(oauth OAuthFlow, sessionRepo repository.SessionRepository, config ServiceConfig) *Service {
	return &Service{
		oauth:       oauth,
		sessionRepo: sessionRepo,
		pending:     newPendingCredentials(pendingTTL),
		config:      config,
		now:         time.Now,
	}
}

// GetLoginURL は環境変数の資格情報で認可URLを生成する。
// 資格情報が不足している場合はConfigurationErrorを返す。
func (s *Service) GetLoginURL(state string) (string, error) {
	return s.oauth.BuildAuthorizationURL(s.config.Credentials, state)
}

// Setup は利用者が入力した資格情報で認可URLを生成する。
// 資格情報はstateに紐づけてこの1往復の間だけメモリに保持し、永続化しない。
func (s *Service) Setup(state string, creds model.Credentials) (string, error) {
	if creds.Scope == "" {
		creds.Scope = s.config.Credentials.Scope
	}
	if creds.Scope == "" {
		creds.Scope = model.DefaultScope
	}
	if err := requireClientCredentials(creds); err != nil {
		return "", err
	}

	url, err := s.oauth.BuildAuthorizationURL(creds, state)
	if err != nil {
		return "", err
	}
	s.pending.Put(state, creds, s.now())
	return url, nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// parseCallback → exchangeCode → establishSession の順に実行し、最初の失敗を返す。
func (s *Service) HandleCallback(ctx context.Context, params CallbackParams) (*model.Session, error) {
	code, err := parseCallback(params)
	if err != nil {
		return nil, err
	}

	creds := s.credentialsFor(params.State)

	record, err := s.exchangeCode(ctx, code, creds)
	if err != nil {
		return nil, err
	}

	return s.establishSession(ctx, record)
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// Status はセッションの認証状態を返す。
func (s *Service) Status(session *model.Session) AuthStatus {
	if !session.Authenticated() {
		return AuthStatus{Authenticated: false}
	}
	expiry := session.Token.ExpiresAt
	return AuthStatus{
		Authenticated: true,
		UserID:        session.Token.UserID,
		TokenExpiry:   &expiry,
	}
}

// parseCallback はコールバックのパラメータから認可コードを取り出す。
func parseCallback(params CallbackParams) (string, error) {
	if params.Error != "" {
		return "", &DeniedError{Reason: params.Error, Description: params.ErrorDescription}
	}
	if params.Code == "" {
		return "", model.NewError(model.KindMissingCode, "callback has no code", nil)
	}
	return params.Code, nil
}

// credentialsFor は動的セットアップで保持した資格情報があればそれを、なければ環境変数の資格情報を返す。
func (s *Service) credentialsFor(state string) model.Credentials {
	if creds, ok := s.pending.Take(state, s.now()); ok {
		return creds
	}
	return s.config.Credentials
}

func (s *Service) exchangeCode(ctx context.Context, code string, creds model.Credentials) (*model.TokenRecord, error) {
	record, err := s.oauth.ExchangeCodeForTokens(ctx, code, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	return record, nil
}

// establishSession はトークンを保持する新しいセッションを作成し永続化する。
func (s *Service) establishSession(ctx context.Context, record *model.TokenRecord) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		Token:     record,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("fitbit user logged in",
		slog.String("user_id", record.UserID),
	)
	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
