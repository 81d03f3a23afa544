package models

import "time"

// EmergencyContact is one member of the patient's safety circle.
// Primary only affects dispatch order when the primary-first policy is set.
type EmergencyContact struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Phone    string `json:"phone" yaml:"phone"`
	Relation string `json:"relation" yaml:"relation"`
	Primary  bool   `json:"primary,omitempty" yaml:"primary,omitempty"`
}

// AttemptStatus is the outcome of notifying one contact
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "PENDING"
	AttemptSent    AttemptStatus = "SENT"
	AttemptFailed  AttemptStatus = "FAILED"
)

// EscalationAttempt records one dispatch to one contact
type EscalationAttempt struct {
	ContactID   string        `json:"contact_id"`
	ContactName string        `json:"contact_name"`
	Status      AttemptStatus `json:"status"`
	AttemptedAt time.Time     `json:"attempted_at"`
	Error       string        `json:"error,omitempty"`
}

// EscalationStatus is the aggregate state of an escalation run
type EscalationStatus string

const (
	EscalationIdle           EscalationStatus = "IDLE"
	EscalationInProgress     EscalationStatus = "IN_PROGRESS"
	EscalationCompleted      EscalationStatus = "COMPLETED"
	EscalationPartialFailure EscalationStatus = "PARTIAL_FAILURE"
	EscalationConfigError    EscalationStatus = "CONFIG_ERROR"
)

// ReduceAttempts folds per-contact attempts into the aggregate status.
// An empty slice is Idle; the orchestrator reports ConfigError itself
// because only it knows the directory was empty.
func ReduceAttempts(attempts []EscalationAttempt) EscalationStatus {
	if len(attempts) == 0 {
		return EscalationIdle
	}
	failed := false
	for _, a := range attempts {
		switch a.Status {
		case AttemptPending:
			return EscalationInProgress
		case AttemptFailed:
			failed = true
		}
	}
	if failed {
		return EscalationPartialFailure
	}
	return EscalationCompleted
}
