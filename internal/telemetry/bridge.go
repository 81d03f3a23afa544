// Package telemetry moves wearable samples from their producers to the
// consumers that watch for seizures.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/metrics"
	"github.com/synheart/synheart-seizure/internal/models"
	"github.com/synheart/synheart-seizure/internal/transport"
)

// Sink accepts samples from a producer.
type Sink interface {
	Publish(ctx context.Context, s models.TelemetrySample) error
	ReportFall(ctx context.Context) error
}

// Bridge fans samples out to every subscriber in arrival order. Delivery
// is lossless: Publish blocks while any subscriber is behind.
type Bridge struct {
	in         chan models.TelemetrySample
	dispatcher *transport.Dispatcher[models.TelemetrySample]
	fallPulse  time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics

	// life bounds the fall-clear goroutines. It ends with Run, not with
	// the producer that reported the fall.
	life context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	last    models.TelemetrySample
	hasLast bool
	wg      sync.WaitGroup
}

// NewBridge creates a bridge. Subscribe before calling Run.
func NewBridge(buffer int, fallPulse time.Duration, logger *zap.Logger, m *metrics.Metrics) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallPulse <= 0 {
		fallPulse = time.Second
	}
	in := make(chan models.TelemetrySample, buffer)
	life, stop := context.WithCancel(context.Background())
	return &Bridge{
		in:         in,
		dispatcher: transport.NewDispatcher[models.TelemetrySample](in, buffer, transport.WithLogger(logger)),
		fallPulse:  fallPulse,
		logger:     logger,
		metrics:    m,
		life:       life,
		stop:       stop,
	}
}

// Subscribe returns a channel receiving every sample. It is closed when
// Run returns.
func (b *Bridge) Subscribe() <-chan models.TelemetrySample {
	return b.dispatcher.Subscribe()
}

// Run fans samples out until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	b.dispatcher.Run(ctx)
	b.stop()
	b.wg.Wait()
	return nil
}

// Publish hands one sample to the bridge.
func (b *Bridge) Publish(ctx context.Context, s models.TelemetrySample) error {
	if s.CapturedAt.IsZero() {
		s.CapturedAt = time.Now()
	}
	select {
	case b.in <- s:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	b.last, b.hasLast = s, true
	b.mu.Unlock()
	b.metrics.ObserveSample()
	return nil
}

// Last returns the most recent sample.
func (b *Bridge) Last() (models.TelemetrySample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.hasLast
}

// ReportFall re-emits the last sample flagged as a fall, then a cleared
// copy once the pulse has elapsed. The flag is an event, not a state.
// Before any sample arrived a connected resting sample is used.
//
// ctx only bounds the first publish. The clear is owned by the bridge and
// still goes out after the caller's context is gone.
func (b *Bridge) ReportFall(ctx context.Context) error {
	b.mu.Lock()
	s, ok := b.last, b.hasLast
	b.mu.Unlock()
	if !ok {
		s = models.TelemetrySample{Connection: models.Connected, Activity: models.ActivityResting}
	}
	s.FallDetected = true
	s.CapturedAt = time.Now()
	if err := b.Publish(ctx, s); err != nil {
		return err
	}
	b.logger.Info("fall reported", zap.String("device_id", s.DeviceID))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		t := time.NewTimer(b.fallPulse)
		defer t.Stop()
		select {
		case <-b.life.Done():
			return
		case <-t.C:
		}
		cleared := s
		cleared.FallDetected = false
		cleared.CapturedAt = time.Now()
		if err := b.Publish(b.life, cleared); err != nil {
			b.logger.Debug("fall clear not published", zap.Error(err))
		}
	}()
	return nil
}
