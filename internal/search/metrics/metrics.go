package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the search projector.
type Metrics struct {
	IndexWrites     *prometheus.CounterVec
	IndexFailures   *prometheus.CounterVec
	StaleSkips      prometheus.Counter
	IndexLatency    *prometheus.HistogramVec
	ReindexedTotal  prometheus.Counter
	OrphansRemoved  prometheus.Counter
	CircuitOpen     prometheus.Gauge
	CircuitRejected prometheus.Counter
}

// New registers and returns search projector metrics collectors.
func New() *Metrics {
	return &Metrics{
		IndexWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_search_index_writes_total",
			Help: "Total number of successful index operations, labeled by operation",
		}, []string{"operation"}),
		IndexFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_search_index_failures_total",
			Help: "Total number of failed or timed out index operations, labeled by operation",
		}, []string{"operation"}),
		StaleSkips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_search_stale_skips_total",
			Help: "Total number of document writes skipped because a newer version was indexed",
		}),
		IndexLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enrollment_search_index_latency_seconds",
			Help:    "Latency of search index calls",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"operation"}),
		ReindexedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_search_reindexed_total",
			Help: "Total number of documents written by bulk reindex",
		}),
		OrphansRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_search_orphans_removed_total",
			Help: "Total number of index documents removed because the voter no longer exists",
		}),
		CircuitOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "enrollment_search_circuit_open",
			Help: "1 while the search index circuit breaker is open",
		}),
		CircuitRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_search_circuit_rejected_total",
			Help: "Total number of index calls rejected by the open circuit",
		}),
	}
}

func (m *Metrics) IncrementWrite(operation string) {
	m.IndexWrites.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementFailure(operation string) {
	m.IndexFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementStaleSkip() {
	m.StaleSkips.Inc()
}

func (m *Metrics) ObserveLatency(operation string, durationSeconds float64) {
	m.IndexLatency.WithLabelValues(operation).Observe(durationSeconds)
}

func (m *Metrics) AddReindexed(n int) {
	m.ReindexedTotal.Add(float64(n))
}

func (m *Metrics) AddOrphansRemoved(n int) {
	m.OrphansRemoved.Add(float64(n))
}

// SetCircuitOpen records the breaker state.
func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}

func (m *Metrics) IncrementCircuitRejected() {
	m.CircuitRejected.Inc()
}
