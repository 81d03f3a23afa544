package episode

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/synheart/synheart-seizure/internal/models"
)

func TestDeterminePhase(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name    string
		elapsed time.Duration
		current models.Phase
		want    models.Phase
	}{
		{"aura stays below threshold", 30 * time.Second, models.PhaseAura, models.PhaseAura},
		{"aura becomes ictal", 30*time.Second + time.Millisecond, models.PhaseAura, models.PhaseIctal},
		{"aura jumps straight to status", 301 * time.Second, models.PhaseAura, models.PhaseStatus},
		{"ictal stays at emergency boundary", 300 * time.Second, models.PhaseIctal, models.PhaseIctal},
		{"ictal becomes status", 300*time.Second + time.Millisecond, models.PhaseIctal, models.PhaseStatus},
		{"ictal never reverts", time.Second, models.PhaseIctal, models.PhaseIctal},
		{"status never reverts", 0, models.PhaseStatus, models.PhaseStatus},
		{"idle ignores time", time.Hour, models.PhaseIdle, models.PhaseIdle},
		{"prediction ignores time", time.Hour, models.PhasePrediction, models.PhasePrediction},
		{"recovery ignores time", time.Hour, models.PhaseRecovery, models.PhaseRecovery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeterminePhase(tt.elapsed, tt.current, th))
		})
	}
}

func TestDeterminePhase_StatusIsAbsorbing(t *testing.T) {
	th := DefaultThresholds()
	for ms := int64(0); ms <= 600000; ms += 7919 {
		got := DeterminePhase(time.Duration(ms)*time.Millisecond, models.PhaseStatus, th)
		if got != models.PhaseStatus {
			t.Fatalf("elapsed %dms moved status to %s", ms, got)
		}
	}
}

func TestDeterminePhase_PastEmergencyIsAlwaysStatus(t *testing.T) {
	th := DefaultThresholds()
	for _, p := range []models.Phase{models.PhaseAura, models.PhaseIctal, models.PhaseStatus} {
		assert.Equal(t, models.PhaseStatus, DeterminePhase(th.Emergency+time.Millisecond, p, th), p)
	}
}

func TestTransitionError(t *testing.T) {
	var err error = &TransitionError{Event: "end", From: models.PhaseAura}
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, "end not allowed from AURA", err.Error())
}
