// Package metrics exposes Prometheus counters for the monitor.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "seizure"

// Metrics groups every collector the monitor reports.
type Metrics struct {
	TelemetrySamples   prometheus.Counter
	RiskAssessments    *prometheus.CounterVec
	RiskFailures       prometheus.Counter
	Episodes           *prometheus.CounterVec
	PhaseTransitions   *prometheus.CounterVec
	Checkpoints        *prometheus.CounterVec
	EscalationAttempts *prometheus.CounterVec
	EpisodesPersisted  *prometheus.CounterVec
	EventsDropped      prometheus.Counter
}

// New creates the collectors and registers them with reg when non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TelemetrySamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "telemetry", Name: "samples_total",
			Help: "Telemetry samples received from the wearable.",
		}),
		RiskAssessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "risk", Name: "assessments_total",
			Help: "Risk assessments by bucket.",
		}, []string{"bucket"}),
		RiskFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "risk", Name: "failures_total",
			Help: "Risk assessments that failed or returned malformed results.",
		}),
		Episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "episode", Name: "opened_total",
			Help: "Episodes opened by trigger.",
		}, []string{"trigger"}),
		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "episode", Name: "phase_transitions_total",
			Help: "Phase entries by target phase.",
		}, []string{"phase"}),
		Checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "checkpoint", Name: "fired_total",
			Help: "Checkpoints fired by phase.",
		}, []string{"phase"}),
		EscalationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "escalation", Name: "attempts_total",
			Help: "Contact dispatch attempts by outcome.",
		}, []string{"status"}),
		EpisodesPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "episodes_total",
			Help: "Episode summaries persisted by result.",
		}, []string{"result"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "events_dropped_total",
			Help: "UI events dropped because the feed was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.TelemetrySamples, m.RiskAssessments, m.RiskFailures,
			m.Episodes, m.PhaseTransitions, m.Checkpoints,
			m.EscalationAttempts, m.EpisodesPersisted, m.EventsDropped,
		)
	}
	return m
}

func (m *Metrics) ObserveSample() {
	if m != nil {
		m.TelemetrySamples.Inc()
	}
}

func (m *Metrics) ObserveRisk(bucket string) {
	if m != nil {
		m.RiskAssessments.WithLabelValues(bucket).Inc()
	}
}

func (m *Metrics) RiskFailed() {
	if m != nil {
		m.RiskFailures.Inc()
	}
}

func (m *Metrics) EpisodeOpened(trigger string) {
	if m != nil {
		m.Episodes.WithLabelValues(trigger).Inc()
	}
}

func (m *Metrics) PhaseEntered(phase string) {
	if m != nil {
		m.PhaseTransitions.WithLabelValues(phase).Inc()
	}
}

func (m *Metrics) CheckpointFired(phase string) {
	if m != nil {
		m.Checkpoints.WithLabelValues(phase).Inc()
	}
}

func (m *Metrics) EscalationAttempt(status string) {
	if m != nil {
		m.EscalationAttempts.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Persisted(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.EpisodesPersisted.WithLabelValues(result).Inc()
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.EventsDropped.Inc()
	}
}
