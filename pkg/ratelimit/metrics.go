package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines the interface for recording rate limiting metrics.
// Implementations must be safe for concurrent use.
type Metrics interface {
	// RecordAdmit records that an operation was admitted in the category.
	RecordAdmit(category string)

	// RecordWait records the total time a caller spent blocked before
	// being admitted in the category.
	RecordWait(category string, d time.Duration)
}

// NoOpMetrics is a Metrics implementation that discards all observations.
type NoOpMetrics struct{}

// RecordAdmit implements Metrics.
func (m *NoOpMetrics) RecordAdmit(string) {}

// RecordWait implements Metrics.
func (m *NoOpMetrics) RecordWait(string, time.Duration) {}

// PrometheusMetrics records limiter activity to Prometheus collectors.
type PrometheusMetrics struct {
	admitted *prometheus.CounterVec
	waited   *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the limiter collectors and registers them
// with the given registerer (pass prometheus.DefaultRegisterer in production).
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		admitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_admitted_total",
				Help: "Operations admitted by the rate limiter, by category.",
			},
			[]string{"category"},
		),
		waited: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratelimit_wait_seconds",
				Help:    "Time callers spent blocked waiting for a slot, by category.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"category"},
		),
	}
	reg.MustRegister(m.admitted, m.waited)
	return m
}

// RecordAdmit implements Metrics.
func (m *PrometheusMetrics) RecordAdmit(category string) {
	m.admitted.WithLabelValues(category).Inc()
}

// RecordWait implements Metrics.
func (m *PrometheusMetrics) RecordWait(category string, d time.Duration) {
	m.waited.WithLabelValues(category).Observe(d.Seconds())
}
