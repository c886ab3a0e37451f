package auth

import (
	"sync"
	"time"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// pendingTTL は動的セットアップの資格情報を保持する期間。stateクッキーと同じ10分。
const pendingTTL = 10 * time.Minute

type pendingEntry struct {
	creds     model.Credentials
	expiresAt time.Time
}

// pendingCredentials は認可の往復中だけ資格情報を保持する。
// 取り出した時点で削除する。
type pendingCredentials struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]pendingEntry
}

func newPendingCredentials(ttl time.Duration) *pendingCredentials {
	return &pendingCredentials{ttl: ttl, entries: make(map[string]pendingEntry)}
}

// Put は資格情報を保存する。期限切れのエントリはここで掃除する。
func (p *pendingCredentials) Put(state string, creds model.Credentials, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for k, e := range p.entries {
		if now.After(e.expiresAt) {
			delete(p.entries, k)
		}
	}
	p.entries[state] = pendingEntry{creds: creds, expiresAt: now.Add(p.ttl)}
}

// Take は資格情報を取り出して削除する。
func (p *pendingCredentials) Take(state string, now time.Time) (model.Credentials, bool) {
	if state == "" {
		return model.Credentials{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[state]
	if !ok {
		return model.Credentials{}, false
	}
	delete(p.entries, state)
	if now.After(e.expiresAt) {
		return model.Credentials{}, false
	}
	return e.creds, true
}
