// Package fitbit はFitbit Web APIのクライアントを提供する。
// アクセストークンを付与して /1/user/-/ 配下のエンドポイントを呼び出し、
// レスポンスをドメインモデルに変換する。上流のエラーはmodel.Errorの種別に分類する。
package fitbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
	"github.com/yukke-bit/fitbit-data-connector/internal/security"
)

const (
	// DefaultBaseURL はFitbit Web APIのベースURL。
	DefaultBaseURL = "https://api.fitbit.com"
	// userPathPrefix は認可済みユーザー自身を指すパス。
	userPathPrefix = "/1/user/-"
	// maxBodyBytes はレスポンスボディの読み取り上限。
	maxBodyBytes = 1 << 20
	// maxErrorBodyBytes はエラーに保持するボディの上限。
	maxErrorBodyBytes = 4 << 10

	defaultTimeout          = 10 * time.Second
	defaultSleepConcurrency = 10
)

// Recorder は上流呼び出しのメトリクスを記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration)
	RecordLocalRateLimit()
}

// Config はClientの設定。
type Config struct {
	BaseURL string
	// Timeout は1回の上流呼び出しのタイムアウト。
	Timeout time.Duration
	// RequestsPerHour はアクセストークンごとに上流へ送るリクエスト数の上限（1時間あたり）。0以下で無制限。
	RequestsPerHour int
	// SleepConcurrency は睡眠時系列の日別取得の同時実行数。
	SleepConcurrency int
}

// Client はFitbit Web APIのクライアント。複数goroutineから同時に使用できる。
type Client struct {
	httpClient       *http.Client
	baseURL          string
	budget           *requestBudget // nilの場合は無制限
	recorder         Recorder
	sanitizer        security.TextSanitizer
	sleepConcurrency int
	logger           *slog.Logger
	now              func() time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
// recorderはnilでもよい。
func NewClient(cfg Config, recorder Recorder, sanitizer security.TextSanitizer, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SleepConcurrency <= 0 {
		cfg.SleepConcurrency = defaultSleepConcurrency
	}

	return &Client{
		httpClient:       &http.Client{Timeout: cfg.Timeout},
		baseURL:          cfg.BaseURL,
		budget:           newRequestBudget(cfg.RequestsPerHour),
		recorder:         recorder,
		sanitizer:        sanitizer,
		sleepConcurrency: cfg.SleepConcurrency,
		logger:           logger,
		now:              time.Now,
	}
}

// getJSON はバジェットを1件消費してからfetchJSONを呼び出す。
func (c *Client) getJSON(ctx context.Context, accessToken, endpoint, path string, out any) error {
	if err := c.spend(accessToken, endpoint, 1); err != nil {
		return err
	}
	return c.fetchJSON(ctx, accessToken, endpoint, path, out)
}

// spend はトークンのバジェットからn件を消費する。足りない場合は何も消費せずRateLimitエラーを返す。
func (c *Client) spend(accessToken, endpoint string, n int) error {
	if c.budget == nil || c.budget.take(accessToken, n) {
		return nil
	}
	if c.recorder != nil {
		c.recorder.RecordLocalRateLimit()
	}
	c.logger.Warn("Fitbit APIのローカルリクエスト上限に達しました",
		slog.String("endpoint", endpoint),
		slog.Int("requested", n),
	)
	return &model.Error{
		Kind:    model.KindRateLimit,
		Message: "local request budget exhausted",
	}
}

// fetchJSON はユーザーパス配下のエンドポイントを呼び出し、レスポンスJSONをoutにデコードする。
// endpointはメトリクスとログに使うラベル。バジェットは消費しない。
func (c *Client) fetchJSON(ctx context.Context, accessToken, endpoint, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+userPathPrefix+path, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, 0, time.Since(start))
		c.logger.Error("Fitbit APIの呼び出しに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return &model.Error{
			Kind:    model.KindUpstream,
			Message: "request to fitbit failed",
			Timeout: isTimeout(err),
			Err:     err,
		}
	}
	defer resp.Body.Close()
	c.record(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Warn("Fitbit APIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return classifyResponse(resp, string(body), c.now())
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &model.Error{
			Kind:    model.KindUpstream,
			Message: "failed to read response body",
			Status:  resp.StatusCode,
			Timeout: isTimeout(err),
			Err:     err,
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("Fitbit APIのレスポンスのパースに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return &model.Error{
			Kind:    model.KindUpstream,
			Message: "invalid response json",
			Status:  resp.StatusCode,
			Err:     err,
		}
	}
	return nil
}

func (c *Client) record(endpoint string, status int, d time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordUpstreamRequest(endpoint, status, d)
	}
}

// isTimeout はタイムアウトまたはデッドライン超過によるエラーかを判定する。
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
