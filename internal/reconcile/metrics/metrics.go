package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the reconciliation sweep.
type Metrics struct {
	Runs         *prometheus.CounterVec
	Scanned      prometheus.Counter
	Repaired     *prometheus.CounterVec
	RepairFailed prometheus.Counter
	Duration     prometheus.Histogram
}

// New registers and returns reconciliation metrics collectors.
func New() *Metrics {
	return &Metrics{
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_reconcile_runs_total",
			Help: "Total number of sweep runs, labeled by result (completed, failed, skipped)",
		}, []string{"result"}),
		Scanned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_reconcile_scanned_total",
			Help: "Total number of canonical voters compared against the index",
		}),
		Repaired: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_reconcile_repaired_total",
			Help: "Total number of documents re-indexed by the sweep, labeled by reason (stale, missing, orphan)",
		}, []string{"reason"}),
		RepairFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_reconcile_repair_failures_total",
			Help: "Total number of documents the sweep failed to re-index",
		}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrollment_reconcile_duration_seconds",
			Help:    "Duration of sweep runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
	}
}

func (m *Metrics) IncrementRun(result string) {
	m.Runs.WithLabelValues(result).Inc()
}

func (m *Metrics) AddScanned(n int) {
	m.Scanned.Add(float64(n))
}

func (m *Metrics) AddRepaired(reason string, n int) {
	m.Repaired.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) AddRepairFailed(n int) {
	m.RepairFailed.Add(float64(n))
}

func (m *Metrics) ObserveDuration(durationSeconds float64) {
	m.Duration.Observe(durationSeconds)
}
