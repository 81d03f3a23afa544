// Package episode owns the active seizure episode and its clinical
// phase timeline.
package episode

import (
	"errors"
	"fmt"
	"time"

	"github.com/synheart/synheart-seizure/internal/models"
)

// ErrInvalidTransition is wrapped by every rejected event.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError reports an event that is not valid in the current phase.
type TransitionError struct {
	Event string
	From  models.Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed from %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Thresholds are the clinical timing constants.
type Thresholds struct {
	Aura         time.Duration
	Emergency    time.Duration
	FallBackdate time.Duration
}

// DefaultThresholds returns aura 30s, emergency 5m and a 31s fall backdate.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Aura:         30 * time.Second,
		Emergency:    300 * time.Second,
		FallBackdate: 31 * time.Second,
	}
}

// DeterminePhase computes the phase implied by elapsed time. Idle,
// Prediction and Recovery have no timer. Status and Ictal never move
// back, whatever elapsed says.
func DeterminePhase(elapsed time.Duration, current models.Phase, th Thresholds) models.Phase {
	switch current {
	case models.PhaseIdle, models.PhaseRecovery, models.PhasePrediction:
		return current
	}
	if elapsed > th.Emergency {
		return models.PhaseStatus
	}
	switch current {
	case models.PhaseStatus:
		return models.PhaseStatus
	case models.PhaseIctal:
		return models.PhaseIctal
	}
	if current == models.PhaseAura && elapsed > th.Aura {
		return models.PhaseIctal
	}
	return models.PhaseAura
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
