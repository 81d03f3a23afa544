package models

import (
	"strings"
	"time"
)

// LOINC coding used for the seizure-duration observation.
const (
	LOINCSystem  = "http://loinc.org"
	LOINCCode    = "77777-0"
	LOINCDisplay = "Seizure duration"
	UCUMSystem   = "http://unitsofmeasure.org"
)

// Checklist is the post-episode report filled in during Recovery
type Checklist struct {
	MedicationGiven bool `json:"medication_given"`
	BreathingNormal bool `json:"breathing_normal"`
	InjuriesPresent bool `json:"injuries_present"`
}

// EpisodeSummary is what gets persisted once a report is submitted
type EpisodeSummary struct {
	EpisodeID  string              `json:"episode_id"`
	PatientID  string              `json:"patient_id"`
	Trigger    Trigger             `json:"trigger"`
	StartedAt  time.Time           `json:"started_at"`
	EndedAt    time.Time           `json:"ended_at"`
	Duration   time.Duration       `json:"duration_ns"`
	Checklist  Checklist           `json:"checklist"`
	Escalated  bool                `json:"escalated"`
	Attempts   []EscalationAttempt `json:"attempts,omitempty"`
	ReportedAt time.Time           `json:"reported_at"`
}

// DurationSeconds returns the final duration in whole and fractional seconds
func (s *EpisodeSummary) DurationSeconds() float64 {
	return s.Duration.Seconds()
}

// NotifiedContactIDs lists contacts whose dispatch succeeded, in order.
func (s *EpisodeSummary) NotifiedContactIDs() []string {
	ids := make([]string, 0, len(s.Attempts))
	for _, a := range s.Attempts {
		if a.Status == AttemptSent {
			ids = append(ids, a.ContactID)
		}
	}
	return ids
}

// Validate checks that the summary can be stored
func (s *EpisodeSummary) Validate() error {
	if s.EpisodeID == "" {
		return &ValidationError{Field: "episode_id", Message: "is required"}
	}
	if s.StartedAt.IsZero() {
		return &ValidationError{Field: "started_at", Message: "is required"}
	}
	if s.EndedAt.IsZero() {
		return &ValidationError{Field: "ended_at", Message: "is required"}
	}
	if s.EndedAt.Before(s.StartedAt) {
		return &ValidationError{Field: "ended_at", Message: "must not precede started_at"}
	}
	if s.Duration < 0 {
		return &ValidationError{Field: "duration", Message: "must not be negative"}
	}
	return nil
}

// ValidationError represents a report validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Observation is the clinical record of one episode in FHIR R4 shape
type Observation struct {
	ResourceType    string                 `json:"resourceType"`
	ID              string                 `json:"id,omitempty"`
	Status          string                 `json:"status"`
	Code            CodeableConcept        `json:"code"`
	Subject         Reference              `json:"subject"`
	EffectivePeriod Period                 `json:"effectivePeriod"`
	ValueQuantity   Quantity               `json:"valueQuantity"`
	Component       []ObservationComponent `json:"component,omitempty"`
}

// CodeableConcept holds codings or free text
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Coding is a single code from a terminology system
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// Reference points at another resource
type Reference struct {
	Reference string `json:"reference"`
}

// Period is a start/end pair in RFC3339
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Quantity is a measured value with UCUM units
type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	System string  `json:"system"`
	Code   string  `json:"code"`
}

// ObservationComponent carries one checklist answer
type ObservationComponent struct {
	Code         CodeableConcept `json:"code"`
	ValueBoolean bool            `json:"valueBoolean"`
}

// Observation renders the summary as a final seizure-duration observation.
func (s *EpisodeSummary) Observation() Observation {
	subject := "Patient/" + strings.TrimSpace(s.PatientID)
	if s.PatientID == "" {
		subject = "Patient/unknown"
	}
	return Observation{
		ResourceType: "Observation",
		ID:           s.EpisodeID,
		Status:       "final",
		Code: CodeableConcept{
			Coding: []Coding{{System: LOINCSystem, Code: LOINCCode, Display: LOINCDisplay}},
		},
		Subject: Reference{Reference: subject},
		EffectivePeriod: Period{
			Start: s.StartedAt.UTC().Format(time.RFC3339Nano),
			End:   s.EndedAt.UTC().Format(time.RFC3339Nano),
		},
		ValueQuantity: Quantity{
			Value:  s.DurationSeconds(),
			Unit:   "s",
			System: UCUMSystem,
			Code:   "s",
		},
		Component: []ObservationComponent{
			{Code: CodeableConcept{Text: "Medication Given"}, ValueBoolean: s.Checklist.MedicationGiven},
			{Code: CodeableConcept{Text: "Breathing Normal"}, ValueBoolean: s.Checklist.BreathingNormal},
			{Code: CodeableConcept{Text: "Injuries Present"}, ValueBoolean: s.Checklist.InjuriesPresent},
		},
	}
}
