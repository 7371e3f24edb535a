package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the procedure counters exported on /metrics.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	rateLimited  *prometheus.CounterVec
	uploadsBytes *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cabinet",
			Name:      "rpc_requests_total",
			Help:      "RPC calls by procedure and result code.",
		}, []string{"procedure", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cabinet",
			Name:      "rpc_duration_seconds",
			Help:      "RPC latency by procedure.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cabinet",
			Name:      "rate_limited_total",
			Help:      "Requests refused by a rate-limit rule.",
		}, []string{"rule"}),
		uploadsBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cabinet",
			Name:      "upload_bytes_total",
			Help:      "Bytes accepted for storage by asset class.",
		}, []string{"class"}),
	}
	reg.MustRegister(m.requests, m.duration, m.rateLimited, m.uploadsBytes)
	return m
}

// ObserveRPC records one finished call. code is "OK" on success.
func (m *Metrics) ObserveRPC(procedure, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(procedure, code).Inc()
	m.duration.WithLabelValues(procedure).Observe(elapsed.Seconds())
}

func (m *Metrics) RateLimited(rule string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(rule).Inc()
}

func (m *Metrics) Uploaded(class string, size int) {
	if m == nil {
		return
	}
	m.uploadsBytes.WithLabelValues(class).Add(float64(size))
}
