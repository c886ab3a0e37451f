package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名・ラベルに一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordUpstreamRequest_CountsByEndpointAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamRequest("profile", 200, 100*time.Millisecond)
	c.RecordUpstreamRequest("profile", 200, 50*time.Millisecond)
	c.RecordUpstreamRequest("profile", 429, 10*time.Millisecond)
	c.RecordUpstreamRequest("devices", 0, time.Second)

	m := findMetric(t, reg, "fitbit_upstream_requests_total", map[string]string{"endpoint": "profile", "status_code": "200"})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("profile/200 = %v, want 2", m.GetCounter().GetValue())
	}
	if m := findMetric(t, reg, "fitbit_upstream_requests_total", map[string]string{"endpoint": "devices", "status_code": "error"}); m == nil {
		t.Error("network failures should be recorded with status_code=error")
	}

	h := findMetric(t, reg, "fitbit_upstream_latency_seconds", map[string]string{"endpoint": "profile"})
	if h == nil || h.GetHistogram().GetSampleCount() != 3 {
		t.Errorf("latency sample count = %v, want 3", h.GetHistogram().GetSampleCount())
	}
}

func TestRecordTokenRefresh_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenRefresh("success")
	c.RecordTokenRefresh("failure")
	c.RecordTokenRefresh("success")

	m := findMetric(t, reg, "fitbit_token_refresh_total", map[string]string{"result": "success"})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Error("success refreshes should be 2")
	}
}

func TestRecordLocalRateLimit_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLocalRateLimit()

	m := findMetric(t, reg, "fitbit_upstream_rate_limited_total", nil)
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("fitbit_upstream_rate_limited_total should be 1")
	}
}

func TestRecordHTTPStatus_CountsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(401)

	if m := findMetric(t, reg, "fitbit_http_status_total", map[string]string{"status_code": "401"}); m == nil {
		t.Error("401 status not recorded")
	}
}

func TestCollector_ImplementsInterface(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
}
