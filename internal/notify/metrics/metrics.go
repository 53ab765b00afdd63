package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the notification dispatcher.
type Metrics struct {
	Outcomes      *prometheus.CounterVec
	SendLatency   *prometheus.HistogramVec
	RetriesQueued prometheus.Counter
}

// New registers and returns notification metrics collectors.
func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_notifications_total",
			Help: "Total number of contact notice attempts, labeled by outcome (delivered, failed, skipped)",
		}, []string{"outcome"}),
		SendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enrollment_notification_send_latency_seconds",
			Help:    "Latency of messaging channel calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"channel"}),
		RetriesQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_notification_retries_total",
			Help: "Total number of pending notices picked up by the retry worker",
		}),
	}
}

func (m *Metrics) IncrementOutcome(outcome string) {
	m.Outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSend(channel string, durationSeconds float64) {
	m.SendLatency.WithLabelValues(channel).Observe(durationSeconds)
}

func (m *Metrics) AddRetries(n int) {
	m.RetriesQueued.Add(float64(n))
}
