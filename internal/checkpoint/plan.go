// Package checkpoint fires timed one-shot instructions during an episode.
package checkpoint

import (
	"fmt"
	"sort"
	"time"

	"github.com/synheart/synheart-seizure/internal/models"
)

// Pattern names a haptic pattern understood by the watch.
type Pattern string

const (
	PatternWarning  Pattern = "WARNING"
	PatternCritical Pattern = "CRITICAL"
	PatternRhythm   Pattern = "RHYTHM"
)

// Checkpoint is one scheduled instruction. Offset is measured from the
// episode start, so it is compared against elapsed time directly.
type Checkpoint struct {
	Offset time.Duration
	Phases []models.Phase
	Voice  string
	Haptic Pattern
}

// AppliesTo reports whether the checkpoint is armed during phase p.
func (c Checkpoint) AppliesTo(p models.Phase) bool {
	for _, phase := range c.Phases {
		if phase == p {
			return true
		}
	}
	return false
}

// Plan is the ordered checkpoint list for an episode.
type Plan []Checkpoint

// DefaultPlan returns the bystander script.
func DefaultPlan() Plan {
	aura := []models.Phase{models.PhaseAura}
	motor := []models.Phase{models.PhaseIctal, models.PhaseStatus}
	return Plan{
		{Offset: 15 * time.Second, Phases: aura, Voice: "Fifteen seconds. Watch the symptoms carefully.", Haptic: PatternWarning},
		{Offset: 28 * time.Second, Phases: aura, Voice: "Nearly thirty seconds. If convulsions start, confirm the motor phase.", Haptic: PatternWarning},
		{Offset: 60 * time.Second, Phases: motor, Voice: "One minute. Turn the person on their side. Do not hold them down.", Haptic: PatternWarning},
		{Offset: 120 * time.Second, Phases: motor, Voice: "Two minutes. Stay calm and keep timing.", Haptic: PatternWarning},
		{Offset: 180 * time.Second, Phases: motor, Voice: "Three minutes. If it does not stop in two more minutes, call emergency services.", Haptic: PatternWarning},
		{Offset: 290 * time.Second, Phases: motor, Voice: "Almost five minutes. Get ready to call emergency services.", Haptic: PatternCritical},
		{Offset: 300 * time.Second, Phases: []models.Phase{models.PhaseStatus}, Voice: "Five minutes. Status epilepticus. Start the emergency protocol now.", Haptic: PatternCritical},
	}
}

// Sorted returns a copy ordered by offset. Ties keep their declared order.
func (p Plan) Sorted() Plan {
	out := make(Plan, len(p))
	copy(out, p)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// Validate rejects checkpoints that could never fire.
func (p Plan) Validate() error {
	for i, c := range p {
		if c.Offset <= 0 {
			return fmt.Errorf("checkpoint %d: offset must be positive", i)
		}
		if len(c.Phases) == 0 {
			return fmt.Errorf("checkpoint %d: no phases", i)
		}
		for _, ph := range c.Phases {
			if !ph.Timed() {
				return fmt.Errorf("checkpoint %d: phase %s is not timed", i, ph)
			}
		}
		if c.Voice == "" {
			return fmt.Errorf("checkpoint %d: empty voice line", i)
		}
	}
	return nil
}

// Announcements are spoken once on entering a phase, outside the plan.
// Status has none; its checkpoint fires on the same tick.
var Announcements = map[models.Phase]string{
	models.PhasePrediction: "Elevated seizure risk. Sit or lie down somewhere safe.",
	models.PhaseAura:       "Seizure detected. Aura starting. Stay calm and keep timing.",
	models.PhaseIctal:      "Motor phase confirmed. Protect the head. Do not restrain.",
}

// CancelLine is spoken when a prediction or aura is dismissed.
const CancelLine = "False alarm confirmed. No event will be recorded."
