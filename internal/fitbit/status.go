package fitbit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// ClassifyHTTPStatus は上流のHTTPステータスコードをエラー種別に分類する。
// 2xxの場合は空文字を返す。
func ClassifyHTTPStatus(statusCode int) model.ErrorKind {
	switch {
	case statusCode >= 200 && statusCode <= 299:
		return ""
	case statusCode == http.StatusUnauthorized:
		return model.KindInvalidToken
	case statusCode == http.StatusForbidden:
		return model.KindInsufficientScope
	case statusCode == http.StatusTooManyRequests:
		return model.KindRateLimit
	default:
		return model.KindUpstream
	}
}

// classifyResponse は非2xxレスポンスをドメインエラーに変換する。
// 429の場合はRetry-Afterヘッダーを保持する。
func classifyResponse(resp *http.Response, body string, now time.Time) *model.Error {
	e := model.NewUpstreamStatusError(ClassifyHTTPStatus(resp.StatusCode), resp.StatusCode, body)
	switch e.Kind {
	case model.KindRateLimit:
		e.Message = "fitbit rate limit exceeded, back off before retrying"
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), now)
	case model.KindInvalidToken:
		e.Message = "fitbit access token expired or invalid"
	case model.KindInsufficientScope:
		e.Message = "token lacks the scope for this resource"
	}
	return e
}

// parseRetryAfter はRetry-Afterヘッダー（秒数またはHTTP日付）を解釈する。
// 解釈できない場合は0を返す。
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
