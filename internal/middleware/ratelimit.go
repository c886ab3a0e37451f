package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // データ取得API（/api/*）のレート（req/sec）
	GeneralBurst    int           // データ取得APIのバーストサイズ
	AuthRate        rate.Limit    // 認証フロー（/auth/*）のレート（req/sec）
	AuthBurst       int           // 認証フローのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// データ取得API 120 req/min、認証フロー 20 req/min。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		AuthRate:        rate.Limit(20.0 / 60.0),
		AuthBurst:       20,
		CleanupInterval: 5 * time.Minute,
	}
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類のレート制限についてクライアントごとのリミッターを管理する。
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
}

func newLimiterSet(r rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limiters: make(map[string]*clientLimiter),
		rate:     r,
		burst:    burst,
	}
}

// get はクライアントのリミッターを取得または作成する。
func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cl, ok := s.limiters[key]; ok {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(s.rate, s.burst)
	s.limiters[key] = &clientLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (s *limiterSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// evict は最終アクセスがttlより古いエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cl := range s.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter はクライアントごとの受信レート制限を管理する。
// 認証済みの場合はFitbitユーザーID、それ以外は接続元IPをキーとする。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	auth    *limiterSet
	stopCh  chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet(config.GeneralRate, config.GeneralBurst),
		auth:    newLimiterSet(config.AuthRate, config.AuthBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はデータ取得APIのレート制限ミドルウェアを返す。
// SessionMiddlewareの後に配置するとユーザー単位で制限する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general, "general")
}

// AuthMiddleware は認証フローのレート制限ミドルウェアを返す。
// データ取得APIの制限とは独立に動作する。
func (rl *RateLimiter) AuthMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.auth, "auth")
}

func (rl *RateLimiter) middleware(set *limiterSet, limitType string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			if !set.get(key).Allow() {
				writeRateLimitResponse(w, set.rate)
				slog.Warn("rate limit exceeded",
					slog.String("client", key),
					slog.String("limit_type", limitType),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているデータ取得APIリミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.count()
}

// AuthLimiterCount は現在管理されている認証フローリミッターのエントリ数を返す。
func (rl *RateLimiter) AuthLimiterCount() int {
	return rl.auth.count()
}

// clientKey はレート制限のキーを返す。
func clientKey(r *http.Request) string {
	if userID, err := UserIDFromContext(r.Context()); err == nil {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()
	rl.general.evict(now, ttl)
	rl.auth.evict(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
