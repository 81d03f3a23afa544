package recorder

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synheart/synheart-seizure/internal/models"
)

type collectSink struct {
	mu      sync.Mutex
	samples []models.TelemetrySample
}

func (c *collectSink) Publish(_ context.Context, s models.TelemetrySample) error {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
	return nil
}

func telemetryEvent(seq int64, ts time.Time, hr float64) models.Event {
	e := models.NewEvent("t", models.KindTelemetry, seq)
	e.Timestamp = ts.UTC().Format(time.RFC3339Nano)
	e.Telemetry = &models.TelemetrySample{HeartRate: hr}
	return e
}

func writeRecording(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "session.ndjson")
	rec, err := NewRecorder(path)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := make(chan models.Event, 4)
	events <- telemetryEvent(1, base, 70)
	episode := models.NewEvent("e", models.KindEpisode, 2)
	episode.Episode = &models.EpisodeSnapshot{Phase: models.PhaseAura}
	events <- episode
	events <- telemetryEvent(3, base.Add(100*time.Millisecond), 71)
	events <- telemetryEvent(4, base.Add(200*time.Millisecond), 72)
	close(events)

	require.NoError(t, rec.RecordFromChannel(context.Background(), events))
	assert.Equal(t, 4, rec.Count())
	return path
}

func TestRecorder_WritesOneLinePerEvent(t *testing.T) {
	path := writeRecording(t)

	counts, err := Summary(path)
	require.NoError(t, err)
	assert.Equal(t, map[models.EventKind]int{models.KindTelemetry: 3, models.KindEpisode: 1}, counts)
}

func TestReplayer_FeedsOnlyTelemetryWithSpeedup(t *testing.T) {
	path := writeRecording(t)
	sink := &collectSink{}

	started := time.Now()
	require.NoError(t, NewReplayer(path, 10, false, nil).Replay(context.Background(), sink))
	assert.Less(t, time.Since(started), 150*time.Millisecond, "200ms recording at 10x")

	require.Len(t, sink.samples, 3)
	assert.Equal(t, []float64{70, 71, 72}, []float64{
		sink.samples[0].HeartRate, sink.samples[1].HeartRate, sink.samples[2].HeartRate,
	})
}

func TestReplayer_LoopStopsOnCancel(t *testing.T) {
	path := writeRecording(t)
	sink := &collectSink{}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := NewReplayer(path, 4, true, nil).Replay(ctx, sink)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, len(sink.samples), 3)
}

func TestReplayer_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ndjson")
	require.NoError(t, os.WriteFile(path, []byte("{\"kind\":\"telemetry\"\n"), 0o644))

	err := NewReplayer(path, 1, false, nil).Replay(context.Background(), &collectSink{})
	assert.ErrorContains(t, err, "line 1")
}
