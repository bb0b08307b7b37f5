package verification

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Check outcomes recorded by Metrics.
const (
	OutcomePass    = "pass"
	OutcomeFail    = "fail"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics holds the Prometheus collectors for verification and enrollment.
type Metrics struct {
	CheckOutcomes       *prometheus.CounterVec
	CheckLatency        *prometheus.HistogramVec
	Verifications       prometheus.Counter
	VerificationLatency prometheus.Histogram
	Enrollments         *prometheus.CounterVec
	EnrollmentOrphans   prometheus.Counter
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CheckOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_check_outcomes_total",
			Help: "Check unit results by outcome",
		}, []string{"check", "outcome"}),
		CheckLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proctor_check_latency_seconds",
			Help:    "Latency of each check unit in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"check"}),
		Verifications: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctor_verifications_total",
			Help: "Total number of verification reports produced",
		}),
		VerificationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "proctor_verification_latency_seconds",
			Help:    "Latency of a full verification fan-out in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		Enrollments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_enrollments_total",
			Help: "Enrollment attempts by result",
		}, []string{"result"}),
		EnrollmentOrphans: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctor_enrollment_orphans_total",
			Help: "Indexed faces left without a profile after a failed rollback",
		}),
	}
}

func (m *Metrics) observeCheck(check, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.CheckOutcomes.WithLabelValues(check, outcome).Inc()
	m.CheckLatency.WithLabelValues(check).Observe(latency.Seconds())
}

func (m *Metrics) observeVerification(latency time.Duration) {
	if m == nil {
		return
	}
	m.Verifications.Inc()
	m.VerificationLatency.Observe(latency.Seconds())
}

func (m *Metrics) observeEnrollment(result string) {
	if m == nil {
		return
	}
	m.Enrollments.WithLabelValues(result).Inc()
}

func (m *Metrics) observeOrphan() {
	if m == nil {
		return
	}
	m.EnrollmentOrphans.Inc()
}
