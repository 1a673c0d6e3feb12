package sinks

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics_RegistersExpectedNames(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("POST", "200").Inc()
	m.RequestDuration.WithLabelValues("POST").Observe(0.01)
	m.AuthTotal.WithLabelValues("api_key", "success").Inc()
	m.RateLimitTotal.WithLabelValues("true").Inc()
	m.ActiveIdentities.Set(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	names := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		names[f.GetName()] = f
	}

	want := []string{
		"mcp_guard_requests_total",
		"mcp_guard_request_duration_seconds",
		"mcp_guard_auth_total",
		"mcp_guard_rate_limit_total",
		"mcp_guard_active_identities",
	}
	for _, n := range want {
		if _, ok := names[n]; !ok {
			t.Errorf("metric %q not registered", n)
		}
	}

	gauge := names["mcp_guard_active_identities"]
	if got := gauge.Metric[0].GetGauge().GetValue(); got != 3 {
		t.Errorf("active_identities = %v, want 3", got)
	}
}
