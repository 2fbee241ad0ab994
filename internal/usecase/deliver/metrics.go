package deliver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records delivery pipeline observations.
type Metrics interface {
	RecordCycle(outcome string, duration time.Duration)
	RecordItemsSelected(count int)
	RecordMessageSent()
	RecordDeliveryAbandoned(reason string)
	SetDedupSize(size int)
}

// Cycle outcomes.
const (
	CycleOutcomeOK       = "ok"
	CycleOutcomeSkipped  = "skipped"
	CycleOutcomeDegraded = "degraded"
)

// Abandon reasons.
const (
	AbandonReasonPermanentRejection = "permanent_rejection"
	AbandonReasonRetriesExhausted   = "retries_exhausted"
	AbandonReasonRecipientResolve   = "recipient_resolve"
	AbandonReasonTimeout            = "timeout"
	AbandonReasonPanic              = "panic"
)

// NoOpMetrics discards all observations.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordCycle(string, time.Duration) {}
func (NoOpMetrics) RecordItemsSelected(int)           {}
func (NoOpMetrics) RecordMessageSent()                {}
func (NoOpMetrics) RecordDeliveryAbandoned(string)    {}
func (NoOpMetrics) SetDedupSize(int)                  {}

// PrometheusMetrics exports pipeline observations to Prometheus.
type PrometheusMetrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	itemsSelected prometheus.Counter
	messagesSent  prometheus.Counter
	abandoned     *prometheus.CounterVec
	dedupSize     prometheus.Gauge
}

// NewPrometheusMetrics registers pipeline collectors on the registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deliver_cycles_total",
			Help: "Delivery cycle runs by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deliver_cycle_duration_seconds",
			Help:    "Wall time of a full delivery cycle.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		itemsSelected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deliver_items_selected_total",
			Help: "Items selected for delivery across all filter groups.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deliver_messages_sent_total",
			Help: "Messages successfully sent.",
		}),
		abandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deliver_deliveries_abandoned_total",
			Help: "Deliveries abandoned by reason.",
		}, []string{"reason"}),
		dedupSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deliver_dedup_set_size",
			Help: "Item IDs tracked by the deduplicator.",
		}),
	}
	reg.MustRegister(m.cycles, m.cycleDuration, m.itemsSelected, m.messagesSent, m.abandoned, m.dedupSize)
	return m
}

func (m *PrometheusMetrics) RecordCycle(outcome string, duration time.Duration) {
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordItemsSelected(count int) {
	m.itemsSelected.Add(float64(count))
}

func (m *PrometheusMetrics) RecordMessageSent() {
	m.messagesSent.Inc()
}

func (m *PrometheusMetrics) RecordDeliveryAbandoned(reason string) {
	m.abandoned.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) SetDedupSize(size int) {
	m.dedupSize.Set(float64(size))
}
