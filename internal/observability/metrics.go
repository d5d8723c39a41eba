package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters a creation run exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	MailboxPolls    *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
}

// NewMetrics registers all collectors on a private registry so repeated
// construction in tests never collides.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enroll_attempts_total",
				Help: "Account attempts by terminal status and environment.",
			},
			[]string{"status", "environment"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "enroll_attempt_duration_seconds",
				Help:    "Wall time of a single account attempt.",
				Buckets: []float64{10, 30, 60, 120, 180, 300, 600},
			},
			[]string{"environment"},
		),
		MailboxPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enroll_mailbox_polls_total",
				Help: "Mailbox search passes by artifact kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enroll_notifications_total",
				Help: "Notifier deliveries by outcome.",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(m.AttemptsTotal, m.AttemptDuration, m.MailboxPolls, m.Notifications)
	return m
}

// ObserveAttempt records one finished attempt.
func (m *Metrics) ObserveAttempt(status, environment string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(status, environment).Inc()
	m.AttemptDuration.WithLabelValues(environment).Observe(elapsed.Seconds())
}

// ObservePoll records one mailbox search pass.
func (m *Metrics) ObservePoll(kind string, found bool) {
	if m == nil {
		return
	}
	outcome := "empty"
	if found {
		outcome = "found"
	}
	m.MailboxPolls.WithLabelValues(kind, outcome).Inc()
}

// ObserveNotification records a notifier delivery result.
func (m *Metrics) ObserveNotification(delivered bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if delivered {
		outcome = "delivered"
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
