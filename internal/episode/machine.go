package episode

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/checkpoint"
	"github.com/synheart/synheart-seizure/internal/escalation"
	"github.com/synheart/synheart-seizure/internal/metrics"
	"github.com/synheart/synheart-seizure/internal/models"
)

// ErrEscalationRunning rejects a retry while a run is still in flight.
var ErrEscalationRunning = errors.New("escalation already in progress")

const hapticTimeout = 2 * time.Second

// Escalator runs the contact protocol for one episode.
type Escalator interface {
	Run(ctx context.Context, req escalation.Request, progress escalation.ProgressFunc) escalation.Report
}

// Recorder persists a finished episode.
type Recorder interface {
	Save(ctx context.Context, summary models.EpisodeSummary) error
}

// Listener observes the machine. Callbacks run in state order and must
// not call back into the Machine.
type Listener interface {
	OnEpisode(models.EpisodeSnapshot)
	OnCheckpoint(models.CheckpointFired)
	OnEscalation(models.EscalationProgress)
}

type nopListener struct{}

func (nopListener) OnEpisode(models.EpisodeSnapshot)       {}
func (nopListener) OnCheckpoint(models.CheckpointFired)    {}
func (nopListener) OnEscalation(models.EscalationProgress) {}

// Config holds the machine's clinical and patient settings.
type Config struct {
	Thresholds     Thresholds
	Tick           time.Duration
	PatientID      string
	PatientName    string
	ReflexEpilepsy bool
}

// Machine is the single writer of the active episode. Every operation
// validates against the current phase, mutates under one lock and then
// runs its side effects (speech, haptics, listener, escalation) in the
// order the state changes happened.
type Machine struct {
	cfg       Config
	clock     Clock
	scheduler *checkpoint.Scheduler
	haptics   checkpoint.HapticDriver
	escalator Escalator
	recorder  Recorder
	listener  Listener
	logger    *zap.Logger
	metrics   *metrics.Metrics
	newID     func() string

	mu  sync.Mutex
	ep  *models.SeizureEpisode
	esc models.EscalationProgress

	fx sync.Mutex
	wg sync.WaitGroup
}

// Option configures a Machine
type Option func(*Machine)

// WithClock sets the time source. Defaults to the system clock.
func WithClock(c Clock) Option { return func(m *Machine) { m.clock = c } }

// WithScheduler sets the checkpoint scheduler. Defaults to the built-in plan
// with no narrator.
func WithScheduler(s *checkpoint.Scheduler) Option { return func(m *Machine) { m.scheduler = s } }

// WithHaptics sets the driver for phase-entry patterns.
func WithHaptics(h checkpoint.HapticDriver) Option { return func(m *Machine) { m.haptics = h } }

// WithEscalator sets the emergency escalation runner.
func WithEscalator(e Escalator) Option { return func(m *Machine) { m.escalator = e } }

// WithRecorder sets where finished episodes are persisted.
func WithRecorder(r Recorder) Option { return func(m *Machine) { m.recorder = r } }

// WithListener registers the observer of phase, checkpoint and escalation events.
func WithListener(l Listener) Option { return func(m *Machine) { m.listener = l } }

// WithLogger sets the machine logger.
func WithLogger(l *zap.Logger) Option { return func(m *Machine) { m.logger = l } }

// WithMetrics sets the metrics sink. nil disables metrics.
func WithMetrics(mt *metrics.Metrics) Option { return func(m *Machine) { m.metrics = mt } }

// WithIDGenerator sets how episode IDs are minted. Defaults to UUIDs.
func WithIDGenerator(fn func() string) Option { return func(m *Machine) { m.newID = fn } }

// NewMachine creates an idle machine. Zero thresholds take their defaults
// one by one.
func NewMachine(cfg Config, opts ...Option) *Machine {
	def := DefaultThresholds()
	if cfg.Thresholds.Aura <= 0 {
		cfg.Thresholds.Aura = def.Aura
	}
	if cfg.Thresholds.Emergency <= 0 {
		cfg.Thresholds.Emergency = def.Emergency
	}
	if cfg.Thresholds.FallBackdate <= 0 {
		cfg.Thresholds.FallBackdate = def.FallBackdate
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	m := &Machine{
		cfg:      cfg,
		clock:    SystemClock{},
		listener: nopListener{},
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.scheduler == nil {
		m.scheduler = checkpoint.NewScheduler(checkpoint.DefaultPlan(), nil)
	}
	return m
}

// effects are applied after the state lock is released, in this order.
type effects struct {
	episodeID string
	stop      bool
	reset     bool
	speak     string
	announce  string
	haptics   []checkpoint.Pattern
	entered   []models.Phase
	opened    models.Trigger
	snapshot  *models.EpisodeSnapshot
	evaluate  bool
	phase     models.Phase
	elapsed   time.Duration
	escalate  *escalation.Request
}

// commit must be called with mu held; it releases mu.
func (m *Machine) commit(fx effects) {
	m.fx.Lock()
	m.mu.Unlock()
	defer m.fx.Unlock()

	if fx.stop {
		m.scheduler.Stop()
	}
	if fx.reset {
		m.scheduler.Reset()
	}
	if fx.speak != "" {
		m.scheduler.Narrator().Say(fx.speak)
	}
	if fx.announce != "" {
		m.scheduler.Announce(fx.announce)
	}
	for _, p := range fx.haptics {
		m.trigger(p)
	}
	if fx.opened != "" {
		m.metrics.EpisodeOpened(string(fx.opened))
	}
	for _, p := range fx.entered {
		m.metrics.PhaseEntered(string(p))
		m.logger.Info("phase", zap.String("episode_id", fx.episodeID), zap.String("phase", string(p)))
	}
	if fx.snapshot != nil {
		m.listener.OnEpisode(*fx.snapshot)
	}
	if fx.evaluate {
		for _, f := range m.scheduler.Evaluate(fx.phase, fx.elapsed) {
			m.metrics.CheckpointFired(string(f.Phase))
			m.listener.OnCheckpoint(models.CheckpointFired{
				EpisodeID: fx.episodeID,
				Phase:     f.Phase,
				OffsetMs:  f.Offset.Milliseconds(),
				Voice:     f.Voice,
				Haptic:    string(f.Haptic),
			})
		}
	}
	if fx.escalate != nil {
		m.launchEscalation(*fx.escalate)
	}
}

func (m *Machine) trigger(p checkpoint.Pattern) {
	if m.haptics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), hapticTimeout)
	defer cancel()
	if err := m.haptics.Trigger(ctx, p); err != nil {
		m.logger.Warn("haptic failed", zap.String("pattern", string(p)), zap.Error(err))
	}
}

func (m *Machine) phaseLocked() models.Phase {
	if m.ep == nil {
		return models.PhaseIdle
	}
	return m.ep.Phase
}

func (m *Machine) reject(event string) error {
	err := &TransitionError{Event: event, From: m.phaseLocked()}
	m.mu.Unlock()
	return err
}

func (m *Machine) snapshotLocked(now time.Time) models.EpisodeSnapshot {
	if m.ep == nil {
		return models.EpisodeSnapshot{Phase: models.PhaseIdle}
	}
	s := models.EpisodeSnapshot{
		EpisodeID:           m.ep.ID,
		Phase:               m.ep.Phase,
		Trigger:             m.ep.Trigger,
		StartedAt:           m.ep.StartedAt,
		ElapsedMs:           m.ep.Elapsed(now).Milliseconds(),
		EscalationTriggered: m.ep.EscalationTriggered,
		EscalationStatus:    m.esc.Status,
		EscalationMessage:   m.esc.Message,
	}
	if !m.ep.EndedAt.IsZero() {
		s.FinalDurationMs = m.ep.FinalDuration.Milliseconds()
	}
	return s
}

func (m *Machine) openLocked(phase models.Phase, trigger models.Trigger, startedAt time.Time, fx *effects) {
	m.ep = &models.SeizureEpisode{
		ID:        m.newID(),
		Phase:     phase,
		Trigger:   trigger,
		StartedAt: startedAt,
	}
	m.esc = models.EscalationProgress{}
	fx.episodeID = m.ep.ID
	fx.reset = true
	fx.opened = trigger
	fx.entered = append(fx.entered, phase)
}

func (m *Machine) enterAuraLocked(now time.Time, fx *effects) {
	m.ep.Phase = models.PhaseAura
	m.ep.StartedAt = now
	fx.reset = true
	fx.announce = checkpoint.Announcements[models.PhaseAura]
	if !m.cfg.ReflexEpilepsy {
		fx.haptics = append(fx.haptics, checkpoint.PatternRhythm)
	}
}

// advanceLocked re-evaluates the timed phase, launches escalation on the
// first Status entry and schedules the checkpoint check after it.
func (m *Machine) advanceLocked(now time.Time, fx *effects) {
	elapsed := m.ep.Elapsed(now)
	next := DeterminePhase(elapsed, m.ep.Phase, m.cfg.Thresholds)
	if next != m.ep.Phase {
		m.ep.Phase = next
		fx.entered = append(fx.entered, next)
		if a := checkpoint.Announcements[next]; a != "" {
			fx.announce = a
		}
	}
	if m.ep.Phase == models.PhaseStatus && !m.ep.EscalationTriggered {
		m.ep.EscalationTriggered = true
		fx.haptics = append(fx.haptics, checkpoint.PatternCritical)
		m.startEscalationLocked(fx)
	}
	fx.episodeID = m.ep.ID
	fx.evaluate = true
	fx.phase = m.ep.Phase
	fx.elapsed = elapsed
}

func (m *Machine) startEscalationLocked(fx *effects) {
	if m.escalator == nil {
		m.logger.Error("status reached without an escalator", zap.String("episode_id", m.ep.ID))
		m.esc = models.EscalationProgress{
			EpisodeID: m.ep.ID,
			Status:    models.EscalationConfigError,
			Message:   "Error: escalation not configured.",
		}
		return
	}
	m.esc = models.EscalationProgress{
		EpisodeID: m.ep.ID,
		Status:    models.EscalationInProgress,
		Message:   "Starting emergency protocol...",
	}
	fx.escalate = &escalation.Request{EpisodeID: m.ep.ID, PatientName: m.cfg.PatientName}
}

func (m *Machine) launchEscalation(req escalation.Request) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		report := m.escalator.Run(context.Background(), req, func(p models.EscalationProgress) {
			m.updateEscalation(req.EpisodeID, p)
		})
		m.logger.Info("escalation finished",
			zap.String("episode_id", req.EpisodeID),
			zap.String("status", string(report.Status)),
			zap.Int("attempts", len(report.Attempts)))
	}()
}

// updateEscalation records progress for episodeID. Progress for an
// episode that is no longer active is dropped.
func (m *Machine) updateEscalation(episodeID string, p models.EscalationProgress) {
	m.mu.Lock()
	if m.ep == nil || m.ep.ID != episodeID {
		m.mu.Unlock()
		m.logger.Debug("dropping stale escalation progress", zap.String("episode_id", episodeID))
		return
	}
	m.esc = p
	snap := m.snapshotLocked(m.clock.Now())

	m.fx.Lock()
	m.mu.Unlock()
	defer m.fx.Unlock()
	m.listener.OnEscalation(p)
	m.listener.OnEpisode(snap)
}

// OpenPrediction opens the Prediction phase from Idle. Assessments that
// do not warrant a prediction are ignored.
func (m *Machine) OpenPrediction(risk models.RiskAssessment) error {
	if risk == nil || !models.OpensPrediction(risk) {
		return nil
	}
	now := m.clock.Now()
	m.mu.Lock()
	if m.ep != nil {
		return m.reject("open_prediction")
	}
	var fx effects
	m.openLocked(models.PhasePrediction, models.TriggerPrediction, time.Time{}, &fx)
	m.ep.Prediction = risk
	fx.announce = checkpoint.Announcements[models.PhasePrediction]
	fx.haptics = append(fx.haptics, checkpoint.PatternWarning)
	snap := m.snapshotLocked(now)
	fx.snapshot = &snap
	m.commit(fx)
	return nil
}

// Start opens an episode directly in Aura, as when the patient presses
// the seizure button.
func (m *Machine) Start() error {
	now := m.clock.Now()
	m.mu.Lock()
	if m.ep != nil {
		return m.reject("start")
	}
	var fx effects
	m.openLocked(models.PhaseAura, models.TriggerManual, now, &fx)
	m.enterAuraLocked(now, &fx)
	m.advanceLocked(now, &fx)
	snap := m.snapshotLocked(now)
	fx.snapshot = &snap
	m.commit(fx)
	return nil
}

// Confirm moves Prediction to Aura, starting the clock, or Aura to Ictal.
func (m *Machine) Confirm() error {
	now := m.clock.Now()
	m.mu.Lock()
	var fx effects
	switch m.phaseLocked() {
	case models.PhasePrediction:
		m.enterAuraLocked(now, &fx)
		fx.entered = append(fx.entered, models.PhaseAura)
	case models.PhaseAura:
		m.ep.Phase = models.PhaseIctal
		fx.entered = append(fx.entered, models.PhaseIctal)
		fx.announce = checkpoint.Announcements[models.PhaseIctal]
	default:
		return m.reject("confirm")
	}
	m.advanceLocked(now, &fx)
	snap := m.snapshotLocked(now)
	fx.snapshot = &snap
	m.commit(fx)
	return nil
}

// Cancel discards a Prediction or Aura episode. Nothing is persisted and
// pending checkpoints never fire.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	switch m.phaseLocked() {
	case models.PhasePrediction, models.PhaseAura:
	default:
		return m.reject("cancel")
	}
	fx := effects{
		episodeID: m.ep.ID,
		stop:      true,
		speak:     checkpoint.CancelLine,
		entered:   []models.Phase{models.PhaseIdle},
	}
	m.ep = nil
	m.esc = models.EscalationProgress{}
	snap := m.snapshotLocked(m.clock.Now())
	fx.snapshot = &snap
	m.commit(fx)
	return nil
}

// Dismiss is Cancel, named for the prediction prompt.
func (m *Machine) Dismiss() error {
	return m.Cancel()
}

// FallDetected opens an episode in Ictal, backdated so it starts past
// the aura threshold. Only valid from Idle.
func (m *Machine) FallDetected() error {
	now := m.clock.Now()
	m.mu.Lock()
	if m.ep != nil {
		return m.reject("fall_detected")
	}
	var fx effects
	m.openLocked(models.PhaseIctal, models.TriggerFall, now.Add(-m.cfg.Thresholds.FallBackdate), &fx)
	fx.announce = checkpoint.Announcements[models.PhaseIctal]
	fx.haptics = append(fx.haptics, checkpoint.PatternCritical)
	m.advanceLocked(now, &fx)
	snap := m.snapshotLocked(now)
	fx.snapshot = &snap
	m.commit(fx)
	return nil
}

// EndEpisode moves Ictal or Status to Recovery and freezes the duration.
func (m *Machine) EndEpisode() error {
	now := m.clock.Now()
	m.mu.Lock()
	switch m.phaseLocked() {
	case models.PhaseIctal, models.PhaseStatus:
	default:
		return m.reject("end")
	}
	m.ep.FinalDuration = m.ep.Elapsed(now)
	m.ep.EndedAt = now
	m.ep.Phase = models.PhaseRecovery
	fx := effects{
		episodeID: m.ep.ID,
		stop:      true,
		entered:   []models.Phase{models.PhaseRecovery},
	}
	snap := m.snapshotLocked(now)
	fx.snapshot = &snap
	m.commit(fx)
	return nil
}

// SubmitReport closes a Recovery episode with the clinical checklist,
// returns to Idle and hands the summary to the recorder. A recorder
// failure is logged; the machine is Idle either way.
func (m *Machine) SubmitReport(ctx context.Context, checklist models.Checklist) (models.EpisodeSummary, error) {
	now := m.clock.Now()
	m.mu.Lock()
	if m.phaseLocked() != models.PhaseRecovery {
		return models.EpisodeSummary{}, m.reject("submit_report")
	}
	summary := models.EpisodeSummary{
		EpisodeID:  m.ep.ID,
		PatientID:  m.cfg.PatientID,
		Trigger:    m.ep.Trigger,
		StartedAt:  m.ep.StartedAt,
		EndedAt:    m.ep.EndedAt,
		Duration:   m.ep.FinalDuration,
		Checklist:  checklist,
		Escalated:  m.ep.EscalationTriggered,
		Attempts:   append([]models.EscalationAttempt(nil), m.esc.Attempts...),
		ReportedAt: now,
	}
	fx := effects{episodeID: m.ep.ID, entered: []models.Phase{models.PhaseIdle}}
	m.ep = nil
	m.esc = models.EscalationProgress{}
	snap := m.snapshotLocked(now)
	fx.snapshot = &snap
	m.commit(fx)

	m.persist(ctx, summary)
	return summary, nil
}

func (m *Machine) persist(ctx context.Context, summary models.EpisodeSummary) {
	if m.recorder == nil {
		return
	}
	log := m.logger.With(zap.String("episode_id", summary.EpisodeID))
	if err := summary.Validate(); err != nil {
		log.Error("episode summary invalid", zap.Error(err))
		m.metrics.Persisted(false)
		return
	}
	if err := m.recorder.Save(ctx, summary); err != nil {
		log.Error("persist episode failed", zap.Error(err))
		m.metrics.Persisted(false)
		return
	}
	m.metrics.Persisted(true)
	log.Info("episode persisted", zap.Float64("duration_s", summary.DurationSeconds()))
}

// RetryEscalation re-runs the whole contact protocol for the active
// episode after a completed or failed run. Contacts may be notified twice.
func (m *Machine) RetryEscalation() error {
	m.mu.Lock()
	if m.ep == nil || !m.ep.EscalationTriggered {
		return m.reject("retry_escalation")
	}
	if m.esc.Status == models.EscalationInProgress {
		m.mu.Unlock()
		return ErrEscalationRunning
	}
	var fx effects
	fx.episodeID = m.ep.ID
	m.startEscalationLocked(&fx)
	snap := m.snapshotLocked(m.clock.Now())
	fx.snapshot = &snap
	m.commit(fx)
	return nil
}

// Tick re-evaluates the timed phases at now, then runs the checkpoint
// check. Idle, Prediction and Recovery are left untouched.
func (m *Machine) Tick(now time.Time) models.Phase {
	m.mu.Lock()
	if m.ep == nil || !m.ep.Phase.Timed() {
		p := m.phaseLocked()
		m.mu.Unlock()
		return p
	}
	var fx effects
	m.advanceLocked(now, &fx)
	phase := m.ep.Phase
	snap := m.snapshotLocked(now)
	fx.snapshot = &snap
	m.commit(fx)
	return phase
}

// Run ticks at the configured interval until ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()
	defer m.scheduler.Narrator().Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Tick(m.clock.Now())
		}
	}
}

// Snapshot returns the current episode view.
func (m *Machine) Snapshot() models.EpisodeSnapshot {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(now)
}

// Phase returns the current phase.
func (m *Machine) Phase() models.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phaseLocked()
}

// Prediction returns the assessment that opened the active episode, if any.
func (m *Machine) Prediction() models.RiskAssessment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ep == nil {
		return nil
	}
	return m.ep.Prediction
}

// Escalation returns the latest escalation progress of the active episode.
func (m *Machine) Escalation() models.EscalationProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.esc
	p.Attempts = append([]models.EscalationAttempt(nil), p.Attempts...)
	return p
}

// Wait blocks until every launched escalation has finished.
func (m *Machine) Wait() {
	m.wg.Wait()
}
