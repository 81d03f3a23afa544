// Package feed turns machine callbacks and telemetry into the event
// stream pushed to caregiver clients.
package feed

import (
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/metrics"
	"github.com/synheart/synheart-seizure/internal/models"
)

// Feed wraps payloads in sequenced envelopes and hands them to a channel
// consumed by a lossy dispatcher. Publishing never blocks; a full buffer
// drops the event.
type Feed struct {
	out      chan models.Event
	sequence atomic.Int64
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New creates a feed with the given buffer size.
func New(buffer int, logger *zap.Logger, m *metrics.Metrics) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		out:     make(chan models.Event, buffer),
		logger:  logger,
		metrics: m,
	}
}

// Events is the source side for a dispatcher.
func (f *Feed) Events() <-chan models.Event {
	return f.out
}

// Close ends the stream. No publish may follow.
func (f *Feed) Close() {
	close(f.out)
}

func (f *Feed) next(kind models.EventKind) models.Event {
	return models.NewEvent(uuid.NewString(), kind, f.sequence.Add(1))
}

func (f *Feed) publish(e models.Event) {
	select {
	case f.out <- e:
	default:
		f.metrics.EventDropped()
		f.logger.Debug("feed full, dropping event",
			zap.String("kind", string(e.Kind)),
			zap.Int64("sequence", e.Meta.Sequence))
	}
}

// OnEpisode publishes an episode snapshot.
func (f *Feed) OnEpisode(s models.EpisodeSnapshot) {
	e := f.next(models.KindEpisode)
	e.Episode = &s
	f.publish(e)
}

// OnCheckpoint publishes a discharged checkpoint.
func (f *Feed) OnCheckpoint(c models.CheckpointFired) {
	e := f.next(models.KindCheckpoint)
	e.Checkpoint = &c
	f.publish(e)
}

// OnEscalation publishes escalation progress.
func (f *Feed) OnEscalation(p models.EscalationProgress) {
	e := f.next(models.KindEscalation)
	e.Escalation = &p
	f.publish(e)
}

// PublishTelemetry publishes one sample.
func (f *Feed) PublishTelemetry(s models.TelemetrySample) {
	e := f.next(models.KindTelemetry)
	e.Telemetry = &s
	f.publish(e)
}

// PublishRisk publishes an assessment.
func (f *Feed) PublishRisk(r models.RiskAssessment) {
	snap := models.SnapshotRisk(r)
	if snap == nil {
		return
	}
	e := f.next(models.KindRisk)
	e.Risk = snap
	f.publish(e)
}
