package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// Metrics holds all Prometheus metrics for auditdesk.
// It also records access decisions and watcher state.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Decisions       *prometheus.CounterVec
	RuleErrors      *prometheus.CounterVec
	AccessOpen      *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auditdesk",
				Name:      "requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"method", "route", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "auditdesk",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auditdesk",
				Name:      "access_decisions_total",
				Help:      "Total access decisions by target kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		RuleErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auditdesk",
				Name:      "rule_errors_total",
				Help:      "Invalid rules skipped during evaluation",
			},
			[]string{"kind"},
		),
		AccessOpen: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "auditdesk",
				Name:      "access_open",
				Help:      "1 while a watched target is accessible, 0 otherwise",
			},
			[]string{"target"},
		),
	}
}

// RecordDecision counts an evaluated decision.
func (m *Metrics) RecordDecision(target schedule.Target, d schedule.Decision) {
	m.Decisions.WithLabelValues(string(target.Kind), string(d.Outcome)).Inc()
	if n := len(d.RuleErrors); n > 0 {
		m.RuleErrors.WithLabelValues(string(target.Kind)).Add(float64(n))
	}
}

// ObserveAccess sets the access_open gauge for a watched target.
func (m *Metrics) ObserveAccess(target schedule.Target, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.AccessOpen.WithLabelValues(target.String()).Set(v)
}
