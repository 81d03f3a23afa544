package episode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synheart/synheart-seizure/internal/checkpoint"
	"github.com/synheart/synheart-seizure/internal/escalation"
	"github.com/synheart/synheart-seizure/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingListener struct {
	mu          sync.Mutex
	episodes    []models.EpisodeSnapshot
	checkpoints []models.CheckpointFired
	escalations []models.EscalationProgress
}

func (l *recordingListener) OnEpisode(s models.EpisodeSnapshot) {
	l.mu.Lock()
	l.episodes = append(l.episodes, s)
	l.mu.Unlock()
}

func (l *recordingListener) OnCheckpoint(c models.CheckpointFired) {
	l.mu.Lock()
	l.checkpoints = append(l.checkpoints, c)
	l.mu.Unlock()
}

func (l *recordingListener) OnEscalation(p models.EscalationProgress) {
	l.mu.Lock()
	l.escalations = append(l.escalations, p)
	l.mu.Unlock()
}

func (l *recordingListener) offsets() map[int64]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int64]int)
	for _, c := range l.checkpoints {
		out[c.OffsetMs]++
	}
	return out
}

func (l *recordingListener) escalationCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.escalations)
}

type fakeEscalator struct {
	mu      sync.Mutex
	runs    int
	release chan struct{}
}

func (e *fakeEscalator) Run(_ context.Context, req escalation.Request, progress escalation.ProgressFunc) escalation.Report {
	e.mu.Lock()
	e.runs++
	release := e.release
	e.mu.Unlock()
	if release != nil {
		<-release
	}
	attempts := []models.EscalationAttempt{{ContactID: "a", ContactName: "Ana", Status: models.AttemptSent, AttemptedAt: t0}}
	p := models.EscalationProgress{
		EpisodeID: req.EpisodeID,
		Status:    models.EscalationCompleted,
		Message:   escalation.MsgAllNotified,
		Attempts:  attempts,
	}
	progress(p)
	return escalation.Report{EpisodeID: req.EpisodeID, Status: p.Status, Message: p.Message, Attempts: attempts}
}

func (e *fakeEscalator) Runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

type fakeRecorder struct {
	mu    sync.Mutex
	saved []models.EpisodeSummary
	err   error
}

func (r *fakeRecorder) Save(_ context.Context, s models.EpisodeSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, s)
	return r.err
}

type fakeHaptics struct {
	mu       sync.Mutex
	patterns []checkpoint.Pattern
}

func (h *fakeHaptics) Trigger(_ context.Context, p checkpoint.Pattern) error {
	h.mu.Lock()
	h.patterns = append(h.patterns, p)
	h.mu.Unlock()
	return nil
}

func (h *fakeHaptics) Patterns() []checkpoint.Pattern {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]checkpoint.Pattern(nil), h.patterns...)
}

type harness struct {
	m        *Machine
	clock    *fakeClock
	listener *recordingListener
	esc      *fakeEscalator
	rec      *fakeRecorder
	haptics  *fakeHaptics
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:    &fakeClock{now: t0},
		listener: &recordingListener{},
		esc:      &fakeEscalator{},
		rec:      &fakeRecorder{},
		haptics:  &fakeHaptics{},
	}
	seq := 0
	base := []Option{
		WithClock(h.clock),
		WithListener(h.listener),
		WithEscalator(h.esc),
		WithRecorder(h.rec),
		WithHaptics(h.haptics),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("ep-%d", seq)
		}),
	}
	h.m = NewMachine(cfg, append(base, opts...)...)
	t.Cleanup(h.m.Wait)
	return h
}

// tickAt moves the clock to t0+offset and ticks.
func (h *harness) tickAt(offset time.Duration) models.Phase {
	now := t0.Add(offset)
	h.clock.Set(now)
	return h.m.Tick(now)
}

func elevated() models.RiskAssessment {
	return models.NewElevated(55, t0, models.Guidance{Title: "Elevated risk", Message: "Rest now", Action: "Sit down"})
}

func TestMachine_ManualStartScenario(t *testing.T) {
	h := newHarness(t, Config{})

	require.NoError(t, h.m.Start())
	assert.Equal(t, models.PhaseAura, h.m.Phase())

	assert.Equal(t, models.PhaseAura, h.tickAt(30000*time.Millisecond))
	assert.Equal(t, models.PhaseIctal, h.tickAt(30001*time.Millisecond))
	assert.Equal(t, models.PhaseIctal, h.tickAt(300000*time.Millisecond))
	assert.Equal(t, models.PhaseStatus, h.tickAt(300001*time.Millisecond))

	for s := 301; s < 310; s++ {
		assert.Equal(t, models.PhaseStatus, h.tickAt(time.Duration(s)*time.Second))
	}
	h.m.Wait()
	assert.Equal(t, 1, h.esc.Runs())

	h.clock.Set(t0.Add(310000 * time.Millisecond))
	require.NoError(t, h.m.EndEpisode())

	snap := h.m.Snapshot()
	assert.Equal(t, models.PhaseRecovery, snap.Phase)
	assert.Equal(t, int64(310000), snap.FinalDurationMs)
	assert.True(t, snap.EscalationTriggered)
	assert.Equal(t, models.EscalationCompleted, snap.EscalationStatus)

	h.clock.Set(t0.Add(time.Hour))
	assert.Equal(t, int64(310000), h.m.Snapshot().ElapsedMs, "duration is frozen after the episode ends")
}

func TestMachine_FourHundredTicksFireEachOffsetOnce(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.m.Start())

	for s := 1; s <= 400; s++ {
		h.tickAt(time.Duration(s) * time.Second)
	}
	h.m.Wait()

	offsets := h.listener.offsets()
	for _, c := range checkpoint.DefaultPlan() {
		assert.Equal(t, 1, offsets[c.Offset.Milliseconds()], "offset %s", c.Offset)
	}
	assert.Len(t, offsets, len(checkpoint.DefaultPlan()))
	assert.Equal(t, 1, h.esc.Runs())
}

func TestMachine_PartialThresholdsKeepDefaults(t *testing.T) {
	h := newHarness(t, Config{Thresholds: Thresholds{Aura: 10 * time.Second}})
	require.NoError(t, h.m.Start())

	assert.Equal(t, models.PhaseIctal, h.tickAt(11*time.Second))
	assert.Equal(t, models.PhaseIctal, h.tickAt(300*time.Second))
	assert.Equal(t, models.PhaseStatus, h.tickAt(301*time.Second))
	h.m.Wait()

	fall := newHarness(t, Config{Thresholds: Thresholds{Emergency: 200 * time.Second}})
	require.NoError(t, fall.m.FallDetected())
	assert.Equal(t, int64(31000), fall.m.Snapshot().ElapsedMs)
	assert.Equal(t, models.PhaseIctal, fall.tickAt(0))
}

func TestMachine_OpenPredictionIgnoresNonActionableRisk(t *testing.T) {
	h := newHarness(t, Config{})

	require.NoError(t, h.m.OpenPrediction(models.NewStable(5, t0)))
	require.NoError(t, h.m.OpenPrediction(models.NewCaution(30, t0, "rest")))
	require.NoError(t, h.m.OpenPrediction(nil))

	assert.Equal(t, models.PhaseIdle, h.m.Phase())
	assert.Empty(t, h.listener.episodes)
	assert.Empty(t, h.haptics.Patterns())
}

func TestMachine_PredictionThenConfirm(t *testing.T) {
	h := newHarness(t, Config{})

	require.NoError(t, h.m.OpenPrediction(elevated()))
	snap := h.m.Snapshot()
	assert.Equal(t, models.PhasePrediction, snap.Phase)
	assert.Equal(t, models.TriggerPrediction, snap.Trigger)
	assert.Zero(t, snap.ElapsedMs)
	assert.Equal(t, models.BucketElevated, h.m.Prediction().Bucket())

	// prediction has no timer
	assert.Equal(t, models.PhasePrediction, h.tickAt(10*time.Minute))

	require.NoError(t, h.m.Confirm())
	snap = h.m.Snapshot()
	assert.Equal(t, models.PhaseAura, snap.Phase)
	assert.Equal(t, t0.Add(10*time.Minute), snap.StartedAt)

	assert.Equal(t, []checkpoint.Pattern{checkpoint.PatternWarning, checkpoint.PatternRhythm}, h.haptics.Patterns())
}

func TestMachine_ReflexEpilepsySuppressesRhythm(t *testing.T) {
	h := newHarness(t, Config{ReflexEpilepsy: true})

	require.NoError(t, h.m.Start())
	assert.Empty(t, h.haptics.Patterns())
}

func TestMachine_ConfirmAuraGoesIctal(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.m.Start())

	h.clock.Set(t0.Add(5 * time.Second))
	require.NoError(t, h.m.Confirm())
	assert.Equal(t, models.PhaseIctal, h.m.Phase())

	// elapsed below the aura threshold must not demote ictal
	assert.Equal(t, models.PhaseIctal, h.tickAt(6*time.Second))
}

func TestMachine_FallDetectedOpensIctalPastAura(t *testing.T) {
	h := newHarness(t, Config{})

	require.NoError(t, h.m.FallDetected())
	snap := h.m.Snapshot()
	assert.Equal(t, models.PhaseIctal, snap.Phase)
	assert.Equal(t, models.TriggerFall, snap.Trigger)
	assert.GreaterOrEqual(t, snap.ElapsedMs, int64(30000))
	assert.Equal(t, []checkpoint.Pattern{checkpoint.PatternCritical}, h.haptics.Patterns())

	var terr *TransitionError
	err := h.m.FallDetected()
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, models.PhaseIctal, terr.From)
}

func TestMachine_CancelFiresNothing(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.m.Start())
	h.tickAt(10 * time.Second)

	require.NoError(t, h.m.Cancel())
	assert.Equal(t, models.PhaseIdle, h.m.Phase())

	for s := 11; s <= 400; s++ {
		h.tickAt(time.Duration(s) * time.Second)
	}
	assert.Empty(t, h.listener.offsets())
	assert.Zero(t, h.esc.Runs())
	assert.Empty(t, h.rec.saved)
}

func TestMachine_DismissPrediction(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.m.OpenPrediction(elevated()))
	require.NoError(t, h.m.Dismiss())
	assert.Equal(t, models.PhaseIdle, h.m.Phase())
	assert.Nil(t, h.m.Prediction())

	// the next prediction opens a fresh episode
	require.NoError(t, h.m.OpenPrediction(elevated()))
	assert.Equal(t, "ep-2", h.m.Snapshot().EpisodeID)
}

func TestMachine_InvalidTransitions(t *testing.T) {
	h := newHarness(t, Config{})

	for name, op := range map[string]func() error{
		"confirm": h.m.Confirm,
		"cancel":  h.m.Cancel,
		"end":     h.m.EndEpisode,
		"retry":   h.m.RetryEscalation,
	} {
		err := op()
		assert.ErrorIs(t, err, ErrInvalidTransition, name)
	}
	_, err := h.m.SubmitReport(context.Background(), models.Checklist{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, h.m.Start())
	assert.ErrorIs(t, h.m.Start(), ErrInvalidTransition)
	assert.ErrorIs(t, h.m.EndEpisode(), ErrInvalidTransition, "aura cannot end")
	assert.ErrorIs(t, h.m.OpenPrediction(elevated()), ErrInvalidTransition)

	h.tickAt(40 * time.Second)
	assert.ErrorIs(t, h.m.Cancel(), ErrInvalidTransition, "ictal cannot be cancelled")
	assert.Equal(t, models.PhaseIctal, h.m.Phase())
}

func TestMachine_SubmitReportPersistsAndReturnsIdle(t *testing.T) {
	h := newHarness(t, Config{PatientID: "p-1"})
	require.NoError(t, h.m.Start())
	h.tickAt(45 * time.Second)
	require.NoError(t, h.m.EndEpisode())

	h.clock.Set(t0.Add(2 * time.Minute))
	summary, err := h.m.SubmitReport(context.Background(), models.Checklist{MedicationGiven: true, BreathingNormal: true})
	require.NoError(t, err)

	assert.Equal(t, models.PhaseIdle, h.m.Phase())
	assert.Equal(t, "ep-1", summary.EpisodeID)
	assert.Equal(t, "p-1", summary.PatientID)
	assert.Equal(t, 45*time.Second, summary.Duration)
	assert.False(t, summary.Escalated)
	assert.Equal(t, t0.Add(2*time.Minute), summary.ReportedAt)

	require.Len(t, h.rec.saved, 1)
	assert.Equal(t, summary, h.rec.saved[0])
}

func TestMachine_RecorderFailureStillEndsIdle(t *testing.T) {
	h := newHarness(t, Config{})
	h.rec.err = errors.New("disk full")

	require.NoError(t, h.m.FallDetected())
	require.NoError(t, h.m.EndEpisode())
	summary, err := h.m.SubmitReport(context.Background(), models.Checklist{})
	require.NoError(t, err)

	assert.Equal(t, models.PhaseIdle, h.m.Phase())
	assert.Equal(t, 31*time.Second, summary.Duration)
	assert.Len(t, h.rec.saved, 1)
}

func TestMachine_StaleEscalationProgressIsDropped(t *testing.T) {
	h := newHarness(t, Config{})
	h.esc.release = make(chan struct{})

	require.NoError(t, h.m.Start())
	require.Equal(t, models.PhaseStatus, h.tickAt(301*time.Second))
	assert.Equal(t, models.EscalationInProgress, h.m.Escalation().Status)
	assert.ErrorIs(t, h.m.RetryEscalation(), ErrEscalationRunning)

	require.NoError(t, h.m.EndEpisode())
	_, err := h.m.SubmitReport(context.Background(), models.Checklist{})
	require.NoError(t, err)

	close(h.esc.release)
	h.m.Wait()

	assert.Zero(t, h.listener.escalationCount())
	assert.Empty(t, h.m.Escalation().Status)
	assert.Equal(t, models.PhaseIdle, h.m.Phase())
}

func TestMachine_RetryEscalation(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.m.Start())
	h.tickAt(301 * time.Second)
	h.m.Wait()
	require.Equal(t, models.EscalationCompleted, h.m.Escalation().Status)

	require.NoError(t, h.m.RetryEscalation())
	h.m.Wait()
	assert.Equal(t, 2, h.esc.Runs())
	assert.Equal(t, 2, h.listener.escalationCount())
}

func TestMachine_ZeroContactsIsConfigErrorWithoutLookup(t *testing.T) {
	loc := &countingLocator{}
	orch := escalation.NewOrchestrator(escalation.Config{}, escalation.StaticDirectory{}, loc, escalation.SimulatedChannel{})
	h := newHarness(t, Config{}, WithEscalator(orch))

	require.NoError(t, h.m.Start())
	h.tickAt(301 * time.Second)
	h.m.Wait()

	p := h.m.Escalation()
	assert.Equal(t, models.EscalationConfigError, p.Status)
	assert.Equal(t, escalation.MsgNoContacts, p.Message)
	assert.Zero(t, loc.Calls())
}

func TestMachine_NoEscalatorReportsConfigError(t *testing.T) {
	m := NewMachine(Config{}, WithClock(&fakeClock{now: t0}))
	require.NoError(t, m.Start())
	m.Tick(t0.Add(301 * time.Second))

	assert.Equal(t, models.EscalationConfigError, m.Escalation().Status)
	assert.True(t, m.Snapshot().EscalationTriggered)
}

func TestMachine_ListenerSeesOrderedPhases(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.m.Start())
	h.tickAt(31 * time.Second)
	h.tickAt(32 * time.Second)
	require.NoError(t, h.m.EndEpisode())

	var phases []models.Phase
	for _, s := range h.listener.episodes {
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
	}
	assert.Equal(t, []models.Phase{models.PhaseAura, models.PhaseIctal, models.PhaseRecovery}, phases)
}

func TestMachine_RunStopsOnCancel(t *testing.T) {
	m := NewMachine(Config{Tick: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

type countingLocator struct {
	mu    sync.Mutex
	calls int
}

func (l *countingLocator) CurrentLocation(context.Context) (*escalation.Location, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return nil, escalation.ErrLocationUnavailable
}

func (l *countingLocator) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}
