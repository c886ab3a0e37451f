package repository

import (
	"context"
	"sync"
	"time"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// MemorySessionRepo はプロセス内メモリを使用したセッションリポジトリ。
// 単一インスタンス運用とテスト用。
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	now      func() time.Time
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string]*model.Session),
		now:      time.Now,
	}
}

// Create はセッションを作成する。
func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok || !s.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return cloneSession(s), nil
}

// Update はセッションを上書きする。存在しない場合は何もしない。
func (r *MemorySessionRepo) Update(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; !ok {
		return nil
	}
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *MemorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *MemorySessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// compile-time interface check
var (
	_ SessionRepository    = (*MemorySessionRepo)(nil)
	_ ExpiredSessionPurger = (*MemorySessionRepo)(nil)
)
