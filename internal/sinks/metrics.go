package sinks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments, registered once at startup and
// shared across the pipeline stages.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AuthTotal       *prometheus.CounterVec
	RateLimitTotal  *prometheus.CounterVec
	ActiveIdentities prometheus.Gauge
}

// durationBuckets are the fixed histogram buckets for request duration.
var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// NewMetrics registers the gateway's metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcp_guard_requests_total",
				Help: "Total number of requests processed by the gateway.",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcp_guard_request_duration_seconds",
				Help:    "Request duration in seconds, sampled end to end.",
				Buckets: durationBuckets,
			},
			[]string{"method"},
		),
		AuthTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcp_guard_auth_total",
				Help: "Authentication attempts by provider and result.",
			},
			[]string{"provider", "result"},
		),
		RateLimitTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcp_guard_rate_limit_total",
				Help: "Rate limit checks by allowed/denied outcome.",
			},
			[]string{"allowed"},
		),
		ActiveIdentities: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "mcp_guard_active_identities",
				Help: "Number of identities currently tracked by the rate limiter.",
			},
		),
	}
}
