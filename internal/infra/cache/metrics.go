package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics records cache effectiveness. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// RecordHit records a cache hit in the given tier ("fast" or "durable").
	RecordHit(category, tier string)

	// RecordMiss records a cache miss.
	RecordMiss(category string)

	// RecordDegraded records a stale-shadow read served after a compute
	// failure.
	RecordDegraded(category string)
}

// NoOpMetrics discards all observations.
type NoOpMetrics struct{}

// RecordHit implements Metrics.
func (m *NoOpMetrics) RecordHit(string, string) {}

// RecordMiss implements Metrics.
func (m *NoOpMetrics) RecordMiss(string) {}

// RecordDegraded implements Metrics.
func (m *NoOpMetrics) RecordDegraded(string) {}

// PrometheusMetrics records cache activity to Prometheus collectors.
type PrometheusMetrics struct {
	hits     *prometheus.CounterVec
	misses   *prometheus.CounterVec
	degraded *prometheus.CounterVec
}

// NewPrometheusMetrics creates the cache collectors and registers them with
// the given registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Cache hits by category and tier.",
			},
			[]string{"category", "tier"},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Cache misses by category.",
			},
			[]string{"category"},
		),
		degraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_degraded_reads_total",
				Help: "Stale-shadow reads served after compute failures, by category.",
			},
			[]string{"category"},
		),
	}
	reg.MustRegister(m.hits, m.misses, m.degraded)
	return m
}

// RecordHit implements Metrics.
func (m *PrometheusMetrics) RecordHit(category, tier string) {
	m.hits.WithLabelValues(category, tier).Inc()
}

// RecordMiss implements Metrics.
func (m *PrometheusMetrics) RecordMiss(category string) {
	m.misses.WithLabelValues(category).Inc()
}

// RecordDegraded implements Metrics.
func (m *PrometheusMetrics) RecordDegraded(category string) {
	m.degraded.WithLabelValues(category).Inc()
}
