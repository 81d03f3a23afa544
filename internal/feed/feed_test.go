package feed

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synheart/synheart-seizure/internal/metrics"
	"github.com/synheart/synheart-seizure/internal/models"
)

func TestFeed_SequencesAndKinds(t *testing.T) {
	f := New(8, nil, nil)

	f.OnEpisode(models.EpisodeSnapshot{EpisodeID: "ep-1", Phase: models.PhaseAura})
	f.OnCheckpoint(models.CheckpointFired{EpisodeID: "ep-1", OffsetMs: 15000})
	f.OnEscalation(models.EscalationProgress{EpisodeID: "ep-1", Status: models.EscalationInProgress})
	f.PublishTelemetry(models.TelemetrySample{HeartRate: 80})
	f.PublishRisk(models.NewElevated(50, time.Now(), models.Guidance{Title: "Elevated"}))
	f.PublishRisk(nil)

	want := []models.EventKind{
		models.KindEpisode, models.KindCheckpoint, models.KindEscalation,
		models.KindTelemetry, models.KindRisk,
	}
	for i, kind := range want {
		e := <-f.Events()
		assert.Equal(t, kind, e.Kind)
		assert.Equal(t, int64(i+1), e.Meta.Sequence)
		assert.Equal(t, models.SchemaVersion, e.SchemaVersion)
		assert.NotEmpty(t, e.EventID)
	}
	assert.Empty(t, f.Events())
}

func TestFeed_PayloadMatchesKind(t *testing.T) {
	f := New(2, nil, nil)
	f.OnEpisode(models.EpisodeSnapshot{EpisodeID: "ep-9", Phase: models.PhaseIctal})
	f.PublishRisk(models.NewCritical(90, time.Now(), models.Guidance{Action: "Lie down"}))

	e := <-f.Events()
	require.NotNil(t, e.Episode)
	assert.Nil(t, e.Risk)
	assert.Equal(t, "ep-9", e.Episode.EpisodeID)

	e = <-f.Events()
	require.NotNil(t, e.Risk)
	assert.Equal(t, models.BucketCritical, e.Risk.Bucket)
	assert.Equal(t, "Lie down", e.Risk.Action)
}

func TestFeed_FullBufferDrops(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	f := New(1, nil, m)

	f.PublishTelemetry(models.TelemetrySample{})
	f.PublishTelemetry(models.TelemetrySample{})
	f.PublishTelemetry(models.TelemetrySample{})

	assert.Len(t, f.Events(), 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsDropped))
}
