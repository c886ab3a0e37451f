// Package repository はセッションデータの永続化を提供する。
package repository

import (
	"context"
	"time"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
// 実装はメモリ・PostgreSQL・Redisの3種類。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。見つからない・期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Update はセッションのトークン情報を上書きする。
	Update(ctx context.Context, session *model.Session) error
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
}

// ExpiredSessionPurger は期限切れセッションを一括削除できるストアのインターフェース。
// RedisはTTLで失効するため実装しない。
type ExpiredSessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Codec はセッションデータの暗号化・復号を行う。
// crypto.SessionCipherが実装する。
type Codec interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}
