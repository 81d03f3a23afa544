package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phase is the clinical phase of the active episode
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhasePrediction Phase = "PREDICTION"
	PhaseAura       Phase = "AURA"
	PhaseIctal      Phase = "ICTAL"
	PhaseStatus     Phase = "STATUS"
	PhaseRecovery   Phase = "RECOVERY"
)

var phaseSeverity = map[Phase]int{
	PhaseIdle:       0,
	PhasePrediction: 1,
	PhaseAura:       2,
	PhaseIctal:      3,
	PhaseStatus:     4,
	PhaseRecovery:   5,
}

// Severity orders phases along the clinical timeline.
func (p Phase) Severity() int {
	return phaseSeverity[p]
}

// Valid reports whether p is one of the declared phases.
func (p Phase) Valid() bool {
	_, ok := phaseSeverity[p]
	return ok
}

// Timed reports whether the phase is re-evaluated on every tick.
func (p Phase) Timed() bool {
	return p == PhaseAura || p == PhaseIctal || p == PhaseStatus
}

// UnmarshalText rejects unknown phase names.
func (p *Phase) UnmarshalText(b []byte) error {
	v := Phase(b)
	if !v.Valid() {
		return fmt.Errorf("unknown phase %q", string(b))
	}
	*p = v
	return nil
}

// Trigger records how an episode was opened
type Trigger string

const (
	TriggerManual     Trigger = "manual"
	TriggerPrediction Trigger = "prediction"
	TriggerFall       Trigger = "fall"
)

// SeizureEpisode is the aggregate root of one monitored event.
// Only the episode state machine mutates it.
type SeizureEpisode struct {
	ID                  string
	Phase               Phase
	Trigger             Trigger
	StartedAt           time.Time
	EndedAt             time.Time
	FinalDuration       time.Duration
	EscalationTriggered bool
	Prediction          RiskAssessment
}

// Elapsed derives the running duration from StartedAt. It is zero
// before the timed phases start and frozen once the episode has ended.
func (e *SeizureEpisode) Elapsed(now time.Time) time.Duration {
	if e.StartedAt.IsZero() {
		return 0
	}
	if !e.EndedAt.IsZero() {
		return e.FinalDuration
	}
	d := now.Sub(e.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// EpisodeSnapshot is an immutable view of the machine handed to observers
type EpisodeSnapshot struct {
	EpisodeID           string           `json:"episode_id,omitempty"`
	Phase               Phase            `json:"phase"`
	Trigger             Trigger          `json:"trigger,omitempty"`
	StartedAt           time.Time        `json:"started_at"`
	ElapsedMs           int64            `json:"elapsed_ms"`
	FinalDurationMs     int64            `json:"final_duration_ms,omitempty"`
	EscalationTriggered bool             `json:"escalation_triggered"`
	EscalationStatus    EscalationStatus `json:"escalation_status,omitempty"`
	EscalationMessage   string           `json:"escalation_message,omitempty"`
}

// Elapsed returns ElapsedMs as a duration
func (s EpisodeSnapshot) Elapsed() time.Duration {
	return time.Duration(s.ElapsedMs) * time.Millisecond
}

// MarshalJSON omits zero start times instead of printing year one.
func (s EpisodeSnapshot) MarshalJSON() ([]byte, error) {
	type alias EpisodeSnapshot
	out := struct {
		alias
		StartedAt *time.Time `json:"started_at,omitempty"`
	}{alias: alias(s)}
	if !s.StartedAt.IsZero() {
		t := s.StartedAt.UTC()
		out.StartedAt = &t
	}
	return json.Marshal(out)
}
