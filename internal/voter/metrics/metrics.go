package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for canonical voter record operations.
type Metrics struct {
	VotersCreated          *prometheus.CounterVec
	VotersDeleted          prometheus.Counter
	DuplicateIdentity      prometheus.Counter
	VerificationChanges    *prometheus.CounterVec
	ReferenceStatusChanges *prometheus.CounterVec
	NotificationsEnqueued  prometheus.Counter
	StorageConflicts       *prometheus.CounterVec

	// Performance metrics
	MutationLatency *prometheus.HistogramVec
}

// New registers and returns voter metrics collectors.
func New() *Metrics {
	return &Metrics{
		VotersCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_voters_created_total",
			Help: "Total number of voter records created, labeled by source (public, admin)",
		}, []string{"source"}),
		VotersDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_voters_deleted_total",
			Help: "Total number of voter records deleted",
		}),
		DuplicateIdentity: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_duplicate_identity_total",
			Help: "Total number of create attempts rejected for a duplicate identity number",
		}),
		VerificationChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_verification_changes_total",
			Help: "Total number of verification requests, labeled by audit action",
		}, []string{"action"}),
		ReferenceStatusChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_reference_status_changes_total",
			Help: "Total number of reference status changes, labeled by target status",
		}, []string{"status"}),
		NotificationsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_notifications_enqueued_total",
			Help: "Total number of contact notices queued for dispatch",
		}),
		StorageConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_storage_conflicts_total",
			Help: "Total number of mutations aborted by lock timeout, deadlock or serialization failure",
		}, []string{"operation"}),
		MutationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enrollment_voter_mutation_latency_seconds",
			Help:    "Latency of canonical mutations including the audit write",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementVotersCreated(source string) {
	m.VotersCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) IncrementVotersDeleted() {
	m.VotersDeleted.Inc()
}

func (m *Metrics) IncrementDuplicateIdentity() {
	m.DuplicateIdentity.Inc()
}

func (m *Metrics) IncrementVerificationChange(action string) {
	m.VerificationChanges.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrementReferenceStatusChange(status string) {
	m.ReferenceStatusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementNotificationsEnqueued() {
	m.NotificationsEnqueued.Inc()
}

func (m *Metrics) IncrementStorageConflict(operation string) {
	m.StorageConflicts.WithLabelValues(operation).Inc()
}

// ObserveMutationLatency records how long a canonical mutation took end to end.
func (m *Metrics) ObserveMutationLatency(operation string, durationSeconds float64) {
	m.MutationLatency.WithLabelValues(operation).Observe(durationSeconds)
}
