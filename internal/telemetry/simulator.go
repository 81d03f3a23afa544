package telemetry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/models"
	"github.com/synheart/synheart-seizure/internal/scenario"
)

// SimulatorConfig holds simulator configuration
type SimulatorConfig struct {
	Seed     int64
	Cadence  time.Duration
	DeviceID string
}

// Simulator stands in for the watch. Vitals follow a bounded random walk
// pulled toward the scenario's targets, one sample per cadence.
type Simulator struct {
	engine   *scenario.Engine
	sink     Sink
	rng      *rand.Rand
	cadence  time.Duration
	deviceID string
	now      func() time.Time
	logger   *zap.Logger

	heartRate float64
	hrv       float64
	phase     int
}

// NewSimulator creates a simulator driving sink from engine.
func NewSimulator(engine *scenario.Engine, sink Sink, cfg SimulatorConfig, logger *zap.Logger) *Simulator {
	if cfg.Cadence <= 0 {
		cfg.Cadence = 2 * time.Second
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "sim-watch-01"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Simulator{
		engine:   engine,
		sink:     sink,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		cadence:  cfg.Cadence,
		deviceID: cfg.DeviceID,
		now:      time.Now,
		logger:   logger,
		phase:    -1,
	}
	return s
}

// Run emits samples until ctx is done or the scenario completes.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cadence)
	defer ticker.Stop()

	s.logger.Info("simulator started",
		zap.String("scenario", s.engine.Scenario().Name),
		zap.Duration("cadence", s.cadence))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := s.now()
			if s.engine.IsComplete(now) {
				s.logger.Info("scenario complete", zap.String("scenario", s.engine.Scenario().Name))
				return nil
			}
			if _, err := s.Step(ctx, now); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Step produces and publishes the sample for now. Entering a phase
// marked as a fall reports it through the sink after the sample.
func (s *Simulator) Step(ctx context.Context, now time.Time) (models.TelemetrySample, error) {
	sample := s.sample(now)
	if err := s.sink.Publish(ctx, sample); err != nil {
		return sample, err
	}

	phase, idx := s.engine.CurrentPhase(now)
	if idx != s.phase {
		s.phase = idx
		if phase != nil {
			s.logger.Info("scenario phase", zap.String("phase", phase.Name))
			if phase.Fall {
				if err := s.sink.ReportFall(ctx); err != nil {
					return sample, err
				}
			}
		}
	}
	return sample, nil
}

func (s *Simulator) sample(now time.Time) models.TelemetrySample {
	hr := s.engine.SignalConfig(scenario.SignalHeartRate, now)
	hrv := s.engine.SignalConfig(scenario.SignalHRV, now)

	if s.phase < 0 {
		s.heartRate = target(hr, 72)
		s.hrv = target(hrv, 45)
	}
	s.heartRate = clamp(math.Round(s.walk(s.heartRate, target(hr, 72), noise(hr, 2))), 50, 180)
	s.hrv = clamp(s.walk(s.hrv, target(hrv, 45), noise(hrv, 1)), 20, 100)

	activity := models.ActivityResting
	if a := s.engine.SignalConfig(scenario.SignalActivity, now); a != nil && a.Value != "" {
		activity = models.Activity(a.Value)
	}

	return models.TelemetrySample{
		DeviceID:   s.deviceID,
		HeartRate:  s.heartRate,
		HRV:        math.Round(s.hrv*10) / 10,
		Activity:   activity,
		SleepScore: target(s.engine.SignalConfig(scenario.SignalSleepScore, now), 85),
		Connection: models.Connected,
		CapturedAt: now,
	}
}

// walk moves a third of the way to goal plus uniform noise in [-n, n].
func (s *Simulator) walk(current, goal, n float64) float64 {
	return current + (goal-current)/3 + (s.rng.Float64()*2-1)*n
}

func target(c *scenario.SignalConfig, fallback float64) float64 {
	if c == nil {
		return fallback
	}
	return c.Target()
}

func noise(c *scenario.SignalConfig, fallback float64) float64 {
	if c == nil || c.Noise == 0 {
		return fallback
	}
	return c.Noise
}

func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
