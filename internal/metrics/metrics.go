// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// Fitbit APIクライアント、認証ゲート、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration)
	RecordLocalRateLimit()
	RecordTokenRefresh(result string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	localRateLimited prometheus.Counter
	tokenRefresh     *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitbit_upstream_requests_total",
			Help: "Fitbit API呼び出しの合計数（エンドポイント・ステータス別）",
		}, []string{"endpoint", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fitbit_upstream_latency_seconds",
			Help:    "Fitbit API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		localRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitbit_upstream_rate_limited_total",
			Help: "ローカルのリクエスト上限により送信しなかったFitbit API呼び出しの数",
		}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitbit_token_refresh_total",
			Help: "アクセストークンのリフレッシュ結果",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitbit_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.localRateLimited,
		c.tokenRefresh,
		c.httpStatus,
	)

	return c
}

// RecordUpstreamRequest はFitbit API呼び出しを記録する。
// ネットワークエラーなどでステータスがない場合はstatusCodeに0を渡す。
func (c *Collector) RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	c.upstreamRequests.WithLabelValues(endpoint, status).Inc()
	c.upstreamLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordLocalRateLimit はローカルのリクエスト上限による拒否を記録する。
func (c *Collector) RecordLocalRateLimit() {
	c.localRateLimited.Inc()
}

// RecordTokenRefresh はリフレッシュ結果（success, failure, reused）を記録する。
func (c *Collector) RecordTokenRefresh(result string) {
	c.tokenRefresh.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
