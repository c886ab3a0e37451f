package fitbit

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// budgetIdleTTL を過ぎて使われていないリミッターはバケットが満杯に戻っているため破棄できる。
const budgetIdleTTL = time.Hour

// tokenLimiter はアクセストークンごとのリミッターと最終利用時刻。
type tokenLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// requestBudget はFitbitのユーザー単位の時間あたり上限に合わせ、
// アクセストークンごとに上流リクエスト数を制限する。
type requestBudget struct {
	mu        sync.Mutex
	limiters  map[string]*tokenLimiter
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// newRequestBudget は1時間あたりperHour件のバジェットを生成する。0以下の場合はnilを返す（無制限）。
func newRequestBudget(perHour int) *requestBudget {
	if perHour <= 0 {
		return nil
	}
	return &requestBudget{
		limiters: make(map[string]*tokenLimiter),
		rate:     rate.Every(time.Hour / time.Duration(perHour)),
		burst:    perHour,
		now:      time.Now,
	}
}

// capacity は1トークンが一度に使えるリクエスト数の上限。
func (b *requestBudget) capacity() int {
	return b.burst
}

// take はトークンのバジェットからn件を消費する。足りない場合は消費せずfalseを返す。
func (b *requestBudget) take(accessToken string, n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.sweep(now)

	key := budgetKey(accessToken)
	tl, ok := b.limiters[key]
	if !ok {
		tl = &tokenLimiter{limiter: rate.NewLimiter(b.rate, b.burst)}
		b.limiters[key] = tl
	}
	tl.lastUsed = now
	return tl.limiter.AllowN(now, n)
}

// sweep はbudgetIdleTTLより長く使われていないリミッターを削除する。呼び出し側でmuを保持すること。
func (b *requestBudget) sweep(now time.Time) {
	if now.Sub(b.lastSweep) < budgetIdleTTL {
		return
	}
	b.lastSweep = now
	for key, tl := range b.limiters {
		if now.Sub(tl.lastUsed) > budgetIdleTTL {
			delete(b.limiters, key)
		}
	}
}

func (b *requestBudget) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.limiters)
}

// budgetKey はトークンそのものをマップに保持しないためのハッシュキー。
func budgetKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}
