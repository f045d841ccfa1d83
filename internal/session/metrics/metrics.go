package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for session operations.
type Metrics struct {
	SessionsCreated  *prometheus.CounterVec
	Issuance         *prometheus.CounterVec
	ScreeningHits    *prometheus.CounterVec
	DuplicateRegs    prometheus.Counter
	NullifierReplays prometheus.Counter
	Refunds          *prometheus.CounterVec
	IssuanceLatency  prometheus.Histogram
	ProviderLatency  *prometheus.HistogramVec
}

// New registers and returns session metrics collectors.
func New() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_sessions_created_total",
			Help: "Total number of sessions created, labeled by kind",
		}, []string{"kind"}),
		Issuance: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_issuance_total",
			Help: "Total number of issuance attempts, labeled by result",
		}, []string{"result"}),
		ScreeningHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_screening_hits_total",
			Help: "Total number of screening hits observed, labeled by classification",
		}, []string{"classification"}),
		DuplicateRegs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_duplicate_registrations_total",
			Help: "Total number of duplicate identity registrations detected",
		}),
		NullifierReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_nullifier_replays_total",
			Help: "Total number of issuances served from the nullifier replay cache",
		}),
		Refunds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_refunds_total",
			Help: "Total number of refund attempts, labeled by result",
		}, []string{"result"}),
		IssuanceLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_issuance_latency_seconds",
			Help:    "Latency of issuance attempts in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attest_provider_latency_seconds",
			Help:    "Latency of provider validation calls in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}
}

func (m *Metrics) IncrementSessionsCreated(kind string) {
	m.SessionsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementIssuance(result string) {
	m.Issuance.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementScreeningHits(classification string, count int) {
	m.ScreeningHits.WithLabelValues(classification).Add(float64(count))
}

func (m *Metrics) IncrementDuplicateRegistrations() {
	m.DuplicateRegs.Inc()
}

func (m *Metrics) IncrementNullifierReplays() {
	m.NullifierReplays.Inc()
}

func (m *Metrics) IncrementRefunds(result string) {
	m.Refunds.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveIssuanceLatency(seconds float64) {
	m.IssuanceLatency.Observe(seconds)
}

func (m *Metrics) ObserveProviderLatency(provider string, seconds float64) {
	m.ProviderLatency.WithLabelValues(provider).Observe(seconds)
}
