package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox worker.
type Metrics struct {
	// Queue health metrics
	PendingDepth prometheus.Gauge

	// Processing metrics
	DeliveredTotal   *prometheus.CounterVec
	DeliveryFailures *prometheus.CounterVec
	DeadLettered     *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	BatchSize        prometheus.Histogram

	// Worker health metrics
	PollDuration prometheus.Histogram
	PollErrors   prometheus.Counter
}

// New creates a new Metrics instance with all outbox metrics registered.
func New() *Metrics {
	return &Metrics{
		PendingDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "enrollment_outbox_pending_total",
			Help: "Current number of pending outbox entries",
		}),
		DeliveredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_outbox_delivered_total",
			Help: "Total number of outbox entries delivered",
		}, []string{"event_type"}),
		DeliveryFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_outbox_delivery_failures_total",
			Help: "Total number of failed outbox delivery attempts",
		}, []string{"event_type"}),
		DeadLettered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_outbox_dead_lettered_total",
			Help: "Total number of outbox entries that exhausted their attempts",
		}, []string{"event_type"}),
		DeliveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrollment_outbox_delivery_duration_seconds",
			Help:    "Time taken to deliver an outbox entry",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrollment_outbox_batch_size",
			Help:    "Number of entries claimed per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		PollDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrollment_outbox_poll_duration_seconds",
			Help:    "Time taken for each poll cycle",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		PollErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_outbox_poll_errors_total",
			Help: "Total number of failed claim queries",
		}),
	}
}

// SetPendingDepth sets the current number of pending entries.
func (m *Metrics) SetPendingDepth(count int64) {
	m.PendingDepth.Set(float64(count))
}

// IncDelivered increments the delivered counter.
func (m *Metrics) IncDelivered(eventType string) {
	m.DeliveredTotal.WithLabelValues(eventType).Inc()
}

// IncDeliveryFailures increments the delivery failure counter.
func (m *Metrics) IncDeliveryFailures(eventType string) {
	m.DeliveryFailures.WithLabelValues(eventType).Inc()
}

// IncDeadLettered increments the dead-letter counter.
func (m *Metrics) IncDeadLettered(eventType string) {
	m.DeadLettered.WithLabelValues(eventType).Inc()
}

// ObserveDeliveryDuration records the delivery latency.
func (m *Metrics) ObserveDeliveryDuration(durationSeconds float64) {
	m.DeliveryDuration.Observe(durationSeconds)
}

// ObserveBatchSize records the size of a claimed batch.
func (m *Metrics) ObserveBatchSize(size int) {
	m.BatchSize.Observe(float64(size))
}

// ObservePollDuration records the poll cycle latency.
func (m *Metrics) ObservePollDuration(durationSeconds float64) {
	m.PollDuration.Observe(durationSeconds)
}

// IncPollErrors increments the poll error counter.
func (m *Metrics) IncPollErrors() {
	m.PollErrors.Inc()
}
