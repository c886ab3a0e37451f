package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ServesMetrics はスクレイプ形式でメトリクスが返ることを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordUpstreamRequest("activity_steps", 200, 20*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `fitbit_upstream_requests_total{endpoint="activity_steps",status_code="200"} 1`) {
		t.Errorf("metrics body missing upstream counter:\n%s", body)
	}
}
