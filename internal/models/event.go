package models

import "time"

// SchemaVersion identifies the envelope format pushed to caregiver clients.
const SchemaVersion = "seizure.event.v1"

// EventKind tags which payload an Event carries
type EventKind string

const (
	KindTelemetry  EventKind = "telemetry"
	KindEpisode    EventKind = "episode"
	KindCheckpoint EventKind = "checkpoint"
	KindEscalation EventKind = "escalation"
	KindRisk       EventKind = "risk"
)

// Event is the envelope broadcast to UI clients and written to recordings.
// Exactly one payload pointer is set, matching Kind.
type Event struct {
	SchemaVersion string    `json:"schema_version"`
	EventID       string    `json:"event_id"`
	Timestamp     string    `json:"ts"`
	Kind          EventKind `json:"kind"`

	Telemetry  *TelemetrySample    `json:"telemetry,omitempty"`
	Episode    *EpisodeSnapshot    `json:"episode,omitempty"`
	Checkpoint *CheckpointFired    `json:"checkpoint,omitempty"`
	Escalation *EscalationProgress `json:"escalation,omitempty"`
	Risk       *RiskSnapshot       `json:"risk,omitempty"`

	Meta Meta `json:"meta"`
}

// Meta contains additional event metadata
type Meta struct {
	Sequence int64 `json:"sequence"`
}

// CheckpointFired describes one discharged checkpoint
type CheckpointFired struct {
	EpisodeID string `json:"episode_id"`
	Phase     Phase  `json:"phase"`
	OffsetMs  int64  `json:"offset_ms"`
	Voice     string `json:"voice"`
	Haptic    string `json:"haptic,omitempty"`
}

// EscalationProgress is the human-readable progress of an escalation run
type EscalationProgress struct {
	EpisodeID string              `json:"episode_id"`
	Status    EscalationStatus    `json:"status"`
	Message   string              `json:"message"`
	Attempts  []EscalationAttempt `json:"attempts,omitempty"`
}

// RiskSnapshot is the wire form of a RiskAssessment
type RiskSnapshot struct {
	Bucket     RiskBucket `json:"bucket"`
	Score      int        `json:"score"`
	Title      string     `json:"title,omitempty"`
	Message    string     `json:"message,omitempty"`
	Action     string     `json:"action_required,omitempty"`
	ProducedAt time.Time  `json:"produced_at"`
}

// NewEvent creates a new Event with current timestamp
func NewEvent(eventID string, kind EventKind, sequence int64) Event {
	return Event{
		SchemaVersion: SchemaVersion,
		EventID:       eventID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Kind:          kind,
		Meta: Meta{
			Sequence: sequence,
		},
	}
}
