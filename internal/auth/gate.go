package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
	"github.com/yukke-bit/fitbit-data-connector/internal/repository"
)

// Refresher はトークンのリフレッシュを行う。FitbitOAuthProviderが実装する。
type Refresher interface {
	RefreshTokens(ctx context.Context, record *model.TokenRecord, creds model.Credentials) (*model.TokenRecord, error)
}

// RefreshRecorder はリフレッシュ結果を記録する。metrics.Collectorが実装する。
type RefreshRecorder interface {
	RecordTokenRefresh(result string)
}

// Principal は認証済みリクエストのアクセストークンとその出所。
type Principal struct {
	AccessToken string
	UserID      string
	Source      string // "session" またはTokenSourceの名前
}

// FromSession はトークンがセッション由来の場合にtrueを返す。
func (p *Principal) FromSession() bool {
	return p.Source == sourceSession
}

const sourceSession = "session"

// GateConfig はGateの設定。
type GateConfig struct {
	// リフレッシュに使うクライアント資格情報
	Credentials model.Credentials
	// リクエストに直接付与されたトークンの取得元（優先順）
	Sources []TokenSource
}

// Gate はデータ取得系のリクエストを保護する。
// トークンの解決、期限切れ時のリフレッシュ、上流401時の1回だけの再試行を担う。
// リフレッシュはセッションごとに直列化する。
type Gate struct {
	refresher Refresher
	sessions  repository.SessionRepository
	config    GateConfig
	recorder  RefreshRecorder
	locks     *keyedMutex
	now       func() time.Time
}

// NewGate はGateを生成する。recorderはnilでもよい。
func NewGate(refresher Refresher, sessions repository.SessionRepository, config GateConfig, recorder RefreshRecorder) *Gate {
	return &Gate{
		refresher: refresher,
		sessions:  sessions,
		config:    config,
		recorder:  recorder,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// Authenticate はリクエストに使うアクセストークンを解決する。
// 優先順位: 1) リクエストに付与されたトークン 2) セッションのトークン。
// セッションのトークンが期限切れの場合は先にリフレッシュする。
// リフレッシュに失敗した場合はセッションを破棄しUnauthenticatedを返す。
func (g *Gate) Authenticate(ctx context.Context, r *http.Request, session *model.Session) (*Principal, error) {
	for _, src := range g.config.Sources {
		if token, ok := src.Token(r); ok {
			return &Principal{AccessToken: token, Source: src.Name()}, nil
		}
	}

	if !session.Authenticated() {
		return nil, model.NewError(model.KindUnauthenticated, "no access token on request or session", nil)
	}

	if session.Token.IsExpired(g.now()) {
		if err := g.refresh(ctx, session, session.Token.AccessToken); err != nil {
			return nil, err
		}
	}

	return &Principal{
		AccessToken: session.Token.AccessToken,
		UserID:      session.Token.UserID,
		Source:      sourceSession,
	}, nil
}

// Do は解決したトークンでfnを実行する。
// fnがInvalidTokenErrorを返し、トークンがセッション由来の場合は1回だけリフレッシュして再実行する。
// リクエスト由来のトークンはリフレッシュできないためUnauthenticatedとして返す。
func (g *Gate) Do(ctx context.Context, r *http.Request, session *model.Session, fn func(ctx context.Context, accessToken string) error) error {
	p, err := g.Authenticate(ctx, r, session)
	if err != nil {
		return err
	}

	err = fn(ctx, p.AccessToken)
	if err == nil || !errors.Is(err, model.ErrInvalidToken) {
		return err
	}

	if !p.FromSession() {
		return model.NewError(model.KindUnauthenticated, "access token rejected by upstream", err)
	}

	slog.Info("upstream rejected access token, refreshing",
		slog.String("user_id", p.UserID),
	)
	if rerr := g.refresh(ctx, session, p.AccessToken); rerr != nil {
		return rerr
	}

	return fn(ctx, session.Token.AccessToken)
}

// refresh はセッションのトークンをリフレッシュし、sessionを更新する。
// staleは呼び出し側が使えないと判断したアクセストークン。
// ロック取得後に別リクエストが既にリフレッシュ済みであれば、その結果を採用する。
func (g *Gate) refresh(ctx context.Context, session *model.Session, stale string) error {
	unlock := g.locks.Lock(session.ID)
	defer unlock()

	current, err := g.sessions.FindByID(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("failed to reload session: %w", err)
	}
	if !current.Authenticated() {
		session.Token = nil
		return model.NewError(model.KindUnauthenticated, "session no longer holds a token", nil)
	}

	if current.Token.AccessToken != stale && !current.Token.IsExpired(g.now()) {
		session.Token = current.Token
		g.record("reused")
		return nil
	}

	rec, err := g.refresher.RefreshTokens(ctx, current.Token, g.config.Credentials)
	if err != nil {
		g.record("failure")
		slog.Warn("token refresh failed, destroying session",
			slog.String("user_id", current.Token.UserID),
			slog.String("error", err.Error()),
		)
		if derr := g.sessions.DeleteByID(ctx, session.ID); derr != nil {
			slog.Error("failed to delete session after refresh failure",
				slog.String("error", derr.Error()),
			)
		}
		session.Token = nil
		return model.NewError(model.KindUnauthenticated, "token refresh failed", err)
	}

	current.Token = rec
	if err := g.sessions.Update(ctx, current); err != nil {
		return fmt.Errorf("failed to save refreshed token: %w", err)
	}
	session.Token = rec
	g.record("success")

	slog.Info("access token refreshed",
		slog.String("user_id", rec.UserID),
		slog.Time("expires_at", rec.ExpiresAt),
	)
	return nil
}

func (g *Gate) record(result string) {
	if g.recorder != nil {
		g.recorder.RecordTokenRefresh(result)
	}
}
