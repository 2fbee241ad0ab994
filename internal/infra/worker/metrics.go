package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"feedrelay/internal/pkg/config"
)

// WorkerMetrics exposes job-level worker health: whether scheduled runs
// happen, how long they take, and when the last one succeeded. Pipeline
// internals are measured by the deliver package's own metrics; embedded
// ConfigMetrics track configuration fallbacks.
type WorkerMetrics struct {
	*config.ConfigMetrics

	JobRunsTotal         *prometheus.CounterVec
	JobDurationSeconds   prometheus.Histogram
	LastSuccessTimestamp prometheus.Gauge
}

// Job run statuses.
const (
	JobStatusSuccess = "success"
	JobStatusFailure = "failure"
)

// NewWorkerMetrics creates the worker's job metrics. Job metrics register
// via MustRegister; the embedded config metrics register on the default
// registry at construction.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),
		JobRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_job_runs_total",
			Help: "Scheduled worker job runs by status.",
		}, []string{"status"}),
		JobDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Wall time of one scheduled worker job.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		LastSuccessTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful worker job.",
		}),
	}
}

// MustRegister registers all worker metrics on the registerer, panicking
// on duplicate registration.
func (m *WorkerMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.JobRunsTotal, m.JobDurationSeconds, m.LastSuccessTimestamp)
}

// RecordJobRun counts one job run with its outcome status.
func (m *WorkerMetrics) RecordJobRun(status string) {
	m.JobRunsTotal.WithLabelValues(status).Inc()
}

// RecordJobDuration observes one job's wall time.
func (m *WorkerMetrics) RecordJobDuration(d time.Duration) {
	m.JobDurationSeconds.Observe(d.Seconds())
}

// RecordLastSuccess stamps the last successful run at now.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.LastSuccessTimestamp.SetToCurrentTime()
}
