package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slater"

// Metrics holds the counters recorded by the session core. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	refreshAttempts      *prometheus.CounterVec
	lifecycleValidations *prometheus.CounterVec
	guardChecks          *prometheus.CounterVec
	storageRetries       *prometheus.CounterVec
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_attempts_total",
			Help:      "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		lifecycleValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "lifecycle_validations_total",
			Help:      "Session validations triggered by the host shell by result.",
		}, []string{"result"}),
		guardChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "guard_checks_total",
			Help:      "Route guard checks by result.",
		}, []string{"result"}),
		storageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "retries_total",
			Help:      "Retried storage operations by operation.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.refreshAttempts, m.lifecycleValidations, m.guardChecks, m.storageRetries)
	return m
}

func (m *Metrics) RefreshAttempt(outcome string) {
	if m == nil {
		return
	}
	m.refreshAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LifecycleValidation(result string) {
	if m == nil {
		return
	}
	m.lifecycleValidations.WithLabelValues(result).Inc()
}

func (m *Metrics) GuardCheck(ok bool) {
	if m == nil {
		return
	}
	m.guardChecks.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) StorageRetry(op string) {
	if m == nil {
		return
	}
	m.storageRetries.WithLabelValues(op).Inc()
}

func result(ok bool) string {
	if ok {
		return "valid"
	}
	return "invalid"
}
