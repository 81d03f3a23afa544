package risk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/episode"
	"github.com/synheart/synheart-seizure/internal/metrics"
	"github.com/synheart/synheart-seizure/internal/models"
)

// Machine is the part of the episode machine the monitor drives.
type Machine interface {
	Phase() models.Phase
	FallDetected() error
	OpenPrediction(models.RiskAssessment) error
}

// Monitor watches telemetry. A fall opens an episode; a stressed sample
// while Idle starts an assessment. At most one assessment is in flight
// and none ever blocks the sample loop.
type Monitor struct {
	assessor Assessor
	machine  Machine
	timeout  time.Duration
	onRisk   func(models.RiskAssessment)
	logger   *zap.Logger
	metrics  *metrics.Metrics

	inflight atomic.Bool
	wg       sync.WaitGroup
}

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

// WithTimeout bounds each assessment.
func WithTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.timeout = d }
}

// OnRisk is called with every successful assessment, actionable or not.
func OnRisk(fn func(models.RiskAssessment)) MonitorOption {
	return func(m *Monitor) { m.onRisk = fn }
}

func WithLogger(l *zap.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) MonitorOption {
	return func(m *Monitor) { m.metrics = mt }
}

// NewMonitor creates a monitor. A nil assessor disables predictions;
// falls are still handled.
func NewMonitor(assessor Assessor, machine Machine, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		assessor: assessor,
		machine:  machine,
		timeout:  5 * time.Second,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run consumes samples until ctx is done or the channel closes, then
// waits for the in-flight assessment.
func (m *Monitor) Run(ctx context.Context, samples <-chan models.TelemetrySample) error {
	defer m.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-samples:
			if !ok {
				return nil
			}
			m.Handle(ctx, s)
		}
	}
}

// Handle processes one sample.
func (m *Monitor) Handle(ctx context.Context, s models.TelemetrySample) {
	if s.FallDetected {
		if err := m.machine.FallDetected(); err != nil {
			m.logTransition("fall ignored", err)
		}
		return
	}
	if m.assessor == nil || !s.Stressed() || m.machine.Phase() != models.PhaseIdle {
		return
	}
	if !m.inflight.CompareAndSwap(false, true) {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.inflight.Store(false)
		m.assess(ctx, s)
	}()
}

func (m *Monitor) assess(ctx context.Context, s models.TelemetrySample) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	r, err := m.assessor.Assess(ctx, s)
	if err != nil {
		m.metrics.RiskFailed()
		m.logger.Warn("risk assessment failed", zap.Error(err))
		return
	}
	m.metrics.ObserveRisk(string(r.Bucket()))
	m.logger.Info("risk assessed", zap.String("bucket", string(r.Bucket())), zap.Int("score", r.Score()))
	if m.onRisk != nil {
		m.onRisk(r)
	}
	if err := m.machine.OpenPrediction(r); err != nil {
		m.logTransition("prediction ignored", err)
	}
}

func (m *Monitor) logTransition(msg string, err error) {
	if errors.Is(err, episode.ErrInvalidTransition) {
		m.logger.Debug(msg, zap.Error(err))
		return
	}
	m.logger.Warn(msg, zap.Error(err))
}
