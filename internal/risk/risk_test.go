package risk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synheart/synheart-seizure/internal/episode"
	"github.com/synheart/synheart-seizure/internal/models"
)

var stressed = models.TelemetrySample{HeartRate: 112, HRV: 22, Activity: models.ActivityResting, SleepScore: 60}

func TestHTTPAssessor(t *testing.T) {
	var got predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status_color":"amber","risk_score":61.6,"title":"Risk","message":"Sit","action_required":"BREATHE"}`))
	}))
	defer srv.Close()

	r, err := NewHTTPAssessor(srv.URL, time.Second).Assess(context.Background(), stressed)
	require.NoError(t, err)

	assert.Equal(t, predictRequest{CurrentBPM: 112, HRVMs: 22, ActivityType: "RESTING", SleepScore: 60}, got)
	elevated, ok := r.(models.ElevatedRisk)
	require.True(t, ok, "got %T", r)
	assert.Equal(t, 62, elevated.Score())
	assert.Equal(t, "BREATHE", elevated.Action)
}

func TestHTTPAssessor_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"missing score", http.StatusOK, `{"status_color":"RED"}`},
		{"unknown color", http.StatusOK, `{"status_color":"PURPLE","risk_score":10}`},
		{"not json", http.StatusOK, `oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPAssessor(srv.URL, time.Second).Assess(context.Background(), stressed)
			assert.ErrorIs(t, err, ErrNoPrediction)
		})
	}
}

// echoModule exports assess_risk returning its bpm argument as the score.
var echoModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x09, 0x01, 0x60, 0x04, 0x7c, 0x7c, 0x7f, 0x7c, 0x01, 0x7c,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x0f, 0x01, 0x0b, 'a', 's', 's', 'e', 's', 's', '_', 'r', 'i', 's', 'k', 0x00, 0x00,
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x20, 0x00, 0x0b,
}

func TestWasmAssessor(t *testing.T) {
	ctx := context.Background()
	a, err := NewWasmAssessorFromBytes(ctx, echoModule)
	require.NoError(t, err)
	defer a.Close(ctx)

	r, err := a.Assess(ctx, models.TelemetrySample{HeartRate: 84.6})
	require.NoError(t, err)
	assert.Equal(t, models.BucketCritical, r.Bucket())
	assert.Equal(t, 85, r.Score())
	assert.Equal(t, DefaultGuidance[models.BucketCritical].Title, r.(models.CriticalRisk).Title)

	r, err = a.Assess(ctx, models.TelemetrySample{HeartRate: 10})
	require.NoError(t, err)
	assert.IsType(t, models.StableRisk{}, r)
}

func TestWasmAssessor_RejectsBadModule(t *testing.T) {
	_, err := NewWasmAssessorFromBytes(context.Background(), []byte("not wasm"))
	assert.Error(t, err)
}

type fakeMachine struct {
	mu      sync.Mutex
	phase   models.Phase
	falls   int
	opened  []models.RiskAssessment
	openErr error
}

func (m *fakeMachine) Phase() models.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *fakeMachine) FallDetected() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.falls++
	if m.phase != models.PhaseIdle {
		return &episode.TransitionError{Event: "fall_detected", From: m.phase}
	}
	m.phase = models.PhaseIctal
	return nil
}

func (m *fakeMachine) OpenPrediction(r models.RiskAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = append(m.opened, r)
	return m.openErr
}

type stubAssessor struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	result  models.RiskAssessment
	err     error
}

func (a *stubAssessor) Assess(ctx context.Context, _ models.TelemetrySample) (models.RiskAssessment, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.result, a.err
}

func (a *stubAssessor) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestMonitor_FallOpensEpisode(t *testing.T) {
	m := &fakeMachine{phase: models.PhaseIdle}
	a := &stubAssessor{}
	mon := NewMonitor(a, m)

	samples := make(chan models.TelemetrySample, 2)
	samples <- models.TelemetrySample{FallDetected: true, HeartRate: 130, Activity: models.ActivityResting}
	samples <- models.TelemetrySample{FallDetected: true}
	close(samples)
	require.NoError(t, mon.Run(context.Background(), samples))

	assert.Equal(t, 2, m.falls)
	assert.Equal(t, models.PhaseIctal, m.Phase())
	assert.Zero(t, a.Calls(), "fall samples are not assessed")
}

func TestMonitor_OneAssessmentInFlight(t *testing.T) {
	m := &fakeMachine{phase: models.PhaseIdle}
	a := &stubAssessor{release: make(chan struct{}), result: models.NewElevated(55, time.Now(), models.Guidance{})}
	var seen []models.RiskAssessment
	mon := NewMonitor(a, m, OnRisk(func(r models.RiskAssessment) { seen = append(seen, r) }))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mon.Handle(ctx, stressed)
	}
	close(a.release)
	mon.wg.Wait()

	assert.Equal(t, 1, a.Calls())
	require.Len(t, m.opened, 1)
	assert.Len(t, seen, 1)
}

func TestMonitor_SkipsCalmOrBusy(t *testing.T) {
	m := &fakeMachine{phase: models.PhaseIdle}
	a := &stubAssessor{result: models.NewStable(5, time.Now())}
	mon := NewMonitor(a, m)
	ctx := context.Background()

	mon.Handle(ctx, models.TelemetrySample{HeartRate: 70, HRV: 50, Activity: models.ActivityResting})
	mon.Handle(ctx, models.TelemetrySample{HeartRate: 140, HRV: 50, Activity: models.ActivityExercising})
	mon.wg.Wait()
	assert.Zero(t, a.Calls())

	m.phase = models.PhaseAura
	mon.Handle(ctx, stressed)
	mon.wg.Wait()
	assert.Zero(t, a.Calls())

	NewMonitor(nil, &fakeMachine{phase: models.PhaseIdle}).Handle(ctx, stressed)
}

func TestMonitor_FailureIsNoPrediction(t *testing.T) {
	m := &fakeMachine{phase: models.PhaseIdle}
	a := &stubAssessor{err: errors.New("boom")}
	mon := NewMonitor(a, m)

	mon.Handle(context.Background(), stressed)
	mon.wg.Wait()
	assert.Empty(t, m.opened)

	// the slot is free again
	a.err = nil
	a.result = models.NewCritical(90, time.Now(), models.Guidance{})
	mon.Handle(context.Background(), stressed)
	mon.wg.Wait()
	assert.Len(t, m.opened, 1)
}

func TestMonitor_TimeoutFreesSlot(t *testing.T) {
	m := &fakeMachine{phase: models.PhaseIdle}
	a := &stubAssessor{release: make(chan struct{})}
	mon := NewMonitor(a, m, WithTimeout(10*time.Millisecond))

	mon.Handle(context.Background(), stressed)
	mon.wg.Wait()
	assert.Empty(t, m.opened)
	assert.False(t, mon.inflight.Load())
}
