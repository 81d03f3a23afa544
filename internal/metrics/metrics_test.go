package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSample()
	m.ObserveSample()
	m.ObserveRisk("ELEVATED")
	m.EpisodeOpened("fall")
	m.PhaseEntered("STATUS")
	m.CheckpointFired("AURA")
	m.EscalationAttempt("FAILED")
	m.Persisted(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TelemetrySamples))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RiskAssessments.WithLabelValues("ELEVATED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Episodes.WithLabelValues("fall")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EscalationAttempts.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EpisodesPersisted.WithLabelValues("error")))

	n, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Positive(t, n)
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSample()
		m.ObserveRisk("STABLE")
		m.RiskFailed()
		m.EpisodeOpened("manual")
		m.PhaseEntered("AURA")
		m.CheckpointFired("AURA")
		m.EscalationAttempt("SENT")
		m.Persisted(true)
		m.EventDropped()
	})
}
