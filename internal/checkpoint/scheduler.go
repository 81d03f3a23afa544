package checkpoint

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/models"
)

const defaultHapticTimeout = 2 * time.Second

// Fired describes a discharged checkpoint.
type Fired struct {
	Checkpoint
	Phase   models.Phase
	Elapsed time.Duration
}

// Scheduler discharges each checkpoint of the plan at most once per
// episode. It is driven by the episode tick; it owns no timers.
type Scheduler struct {
	plan     Plan
	narrator *Narrator
	haptics  HapticDriver
	timeout  time.Duration
	logger   *zap.Logger
	onFire   func(Fired)

	mu      sync.Mutex
	fired   map[int]bool
	stopped bool
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithHaptics sets the driver used for checkpoint patterns.
func WithHaptics(h HapticDriver) Option {
	return func(s *Scheduler) { s.haptics = h }
}

// WithHapticTimeout bounds each haptic trigger. Evaluate runs on the
// episode tick and must not wait on the wearable longer than this.
func WithHapticTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// OnFire registers a callback invoked for every discharged checkpoint.
func OnFire(fn func(Fired)) Option {
	return func(s *Scheduler) { s.onFire = fn }
}

// NewScheduler creates a scheduler for plan, speaking through narrator.
func NewScheduler(plan Plan, narrator *Narrator, opts ...Option) *Scheduler {
	s := &Scheduler{
		plan:     plan.Sorted(),
		narrator: narrator,
		timeout:  defaultHapticTimeout,
		logger:   zap.NewNop(),
		fired:    make(map[int]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan returns the ordered plan.
func (s *Scheduler) Plan() Plan {
	return s.plan
}

// Evaluate fires every undischarged checkpoint armed for phase whose
// offset has been reached, in offset order.
func (s *Scheduler) Evaluate(phase models.Phase, elapsed time.Duration) []Fired {
	s.mu.Lock()
	if s.stopped || !phase.Timed() {
		s.mu.Unlock()
		return nil
	}
	var due []Fired
	for i, c := range s.plan {
		if s.fired[i] || !c.AppliesTo(phase) || elapsed < c.Offset {
			continue
		}
		s.fired[i] = true
		due = append(due, Fired{Checkpoint: c, Phase: phase, Elapsed: elapsed})
	}
	s.mu.Unlock()

	for _, f := range due {
		s.discharge(f)
	}
	return due
}

func (s *Scheduler) discharge(f Fired) {
	s.logger.Info("checkpoint",
		zap.String("phase", string(f.Phase)),
		zap.Duration("offset", f.Offset),
		zap.String("voice", f.Voice))

	s.narrator.Say(f.Voice)
	if s.haptics != nil && f.Haptic != "" {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.haptics.Trigger(ctx, f.Haptic); err != nil {
			s.logger.Warn("haptic failed", zap.String("pattern", string(f.Haptic)), zap.Error(err))
		}
		cancel()
	}
	if s.onFire != nil {
		s.onFire(f)
	}
}

// Announce speaks a line that is not part of the plan. Ignored once stopped.
func (s *Scheduler) Announce(line string) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if !stopped {
		s.narrator.Say(line)
	}
}

// Reset re-arms the whole plan for a fresh episode.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.fired = make(map[int]bool)
	s.stopped = false
	s.mu.Unlock()
}

// Stop silences narration and prevents further firing until Reset.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.narrator.Stop()
}

// Pending returns how many checkpoints have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.plan) - len(s.fired)
}

// Narrator returns the narrator the scheduler speaks through.
func (s *Scheduler) Narrator() *Narrator {
	return s.narrator
}
