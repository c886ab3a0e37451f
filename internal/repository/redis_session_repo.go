package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

const redisSessionKeyPrefix = "fitbit:session:"

// RedisClient はRedisSessionRepoが使用するコマンドの部分集合。
// *redis.Clientが満たす。
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetXX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// redisRecord はRedisに保存する値。dataは暗号化済み。
type redisRecord struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// 有効期限はキーのTTLで管理する。
type RedisSessionRepo struct {
	client RedisClient
	codec  Codec
	now    func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client RedisClient, codec Codec) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, codec: codec, now: time.Now}
}

// Create はセッションを作成する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	raw, ttl, err := r.encode(session)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if err := r.client.Set(ctx, redisSessionKeyPrefix+session.ID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。キーが存在しない場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	raw, err := r.client.Get(ctx, redisSessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	if !rec.ExpiresAt.After(r.now()) {
		return nil, nil
	}

	session := &model.Session{ID: id, ExpiresAt: rec.ExpiresAt, CreatedAt: rec.CreatedAt}
	if err := openSession(r.codec, rec.Data, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Update はセッションを上書きする。TTLは残りの有効期間で再設定する。
// キーが既に存在しない（ログアウト済み・失効済み）場合は何もしない。
func (r *RedisSessionRepo) Update(ctx context.Context, session *model.Session) error {
	raw, ttl, err := r.encode(session)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	// SET XX は既存キーのみを上書きし、削除済みセッションを復活させない
	if err := r.client.SetXX(ctx, redisSessionKeyPrefix+session.ID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisSessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// encode はセッションを暗号化して保存用の値と残りTTLを返す。
func (r *RedisSessionRepo) encode(session *model.Session) ([]byte, time.Duration, error) {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil, 0, errors.New("session already expired")
	}

	data, err := sealSession(r.codec, session)
	if err != nil {
		return nil, 0, err
	}
	raw, err := json.Marshal(redisRecord{
		Data:      data,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal session record: %w", err)
	}
	return raw, ttl, nil
}

// compile-time interface check
var (
	_ SessionRepository = (*RedisSessionRepo)(nil)
	_ RedisClient       = (*redis.Client)(nil)
)
