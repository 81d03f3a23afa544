package models

import (
	"fmt"
	"strings"
	"time"
)

// RiskBucket is the coarse outcome of a risk assessment
type RiskBucket string

const (
	BucketStable   RiskBucket = "STABLE"
	BucketCaution  RiskBucket = "CAUTION"
	BucketElevated RiskBucket = "ELEVATED"
	BucketCritical RiskBucket = "CRITICAL"
)

// RiskAssessment is a closed set of variants, one per bucket. Only the
// variants that can open a prediction carry clinical guidance.
type RiskAssessment interface {
	Bucket() RiskBucket
	Score() int
	ProducedAt() time.Time
	isRiskAssessment()
}

type riskBase struct {
	score int
	at    time.Time
}

func (r riskBase) Score() int            { return r.score }
func (r riskBase) ProducedAt() time.Time { return r.at }
func (riskBase) isRiskAssessment()       {}

// Guidance is the user-facing text attached to actionable assessments
type Guidance struct {
	Title   string
	Message string
	Action  string
}

// StableRisk means no action
type StableRisk struct{ riskBase }

func (StableRisk) Bucket() RiskBucket { return BucketStable }

// CautionRisk means the wearer should rest; it never opens a prediction.
type CautionRisk struct {
	riskBase
	Message string
}

func (CautionRisk) Bucket() RiskBucket { return BucketCaution }

// ElevatedRisk opens the prediction phase.
type ElevatedRisk struct {
	riskBase
	Guidance
}

func (ElevatedRisk) Bucket() RiskBucket { return BucketElevated }

// CriticalRisk opens the prediction phase.
type CriticalRisk struct {
	riskBase
	Guidance
}

func (CriticalRisk) Bucket() RiskBucket { return BucketCritical }

// NewStable builds a StableRisk
func NewStable(score int, at time.Time) StableRisk {
	return StableRisk{riskBase{clampScore(score), at}}
}

// NewCaution builds a CautionRisk
func NewCaution(score int, at time.Time, message string) CautionRisk {
	return CautionRisk{riskBase{clampScore(score), at}, message}
}

// NewElevated builds an ElevatedRisk
func NewElevated(score int, at time.Time, g Guidance) ElevatedRisk {
	return ElevatedRisk{riskBase{clampScore(score), at}, g}
}

// NewCritical builds a CriticalRisk
func NewCritical(score int, at time.Time, g Guidance) CriticalRisk {
	return CriticalRisk{riskBase{clampScore(score), at}, g}
}

// OpensPrediction reports whether the assessment may move Idle to Prediction.
func OpensPrediction(r RiskAssessment) bool {
	switch r.(type) {
	case ElevatedRisk, CriticalRisk:
		return true
	default:
		return false
	}
}

// BucketForScore maps a 0..100 score onto a bucket.
func BucketForScore(score int) RiskBucket {
	switch {
	case score < 20:
		return BucketStable
	case score < 40:
		return BucketCaution
	case score < 70:
		return BucketElevated
	default:
		return BucketCritical
	}
}

// AssessmentForScore builds the variant matching score's bucket.
func AssessmentForScore(score int, at time.Time, g Guidance) RiskAssessment {
	switch BucketForScore(score) {
	case BucketStable:
		return NewStable(score, at)
	case BucketCaution:
		return NewCaution(score, at, g.Message)
	case BucketElevated:
		return NewElevated(score, at, g)
	default:
		return NewCritical(score, at, g)
	}
}

// AssessmentFromColor maps the predictor's traffic-light color onto a
// variant. Unknown colors are an error so callers can drop the result.
func AssessmentFromColor(color string, score int, at time.Time, g Guidance) (RiskAssessment, error) {
	switch strings.ToUpper(strings.TrimSpace(color)) {
	case "GREEN":
		return NewStable(score, at), nil
	case "CYAN":
		return NewCaution(score, at, g.Message), nil
	case "AMBER":
		return NewElevated(score, at, g), nil
	case "RED":
		return NewCritical(score, at, g), nil
	default:
		return nil, fmt.Errorf("unknown status color %q", color)
	}
}

// SnapshotRisk converts an assessment into its wire form
func SnapshotRisk(r RiskAssessment) *RiskSnapshot {
	if r == nil {
		return nil
	}
	snap := &RiskSnapshot{
		Bucket:     r.Bucket(),
		Score:      r.Score(),
		ProducedAt: r.ProducedAt(),
	}
	switch v := r.(type) {
	case CautionRisk:
		snap.Message = v.Message
	case ElevatedRisk:
		snap.Title, snap.Message, snap.Action = v.Title, v.Message, v.Action
	case CriticalRisk:
		snap.Title, snap.Message, snap.Action = v.Title, v.Message, v.Action
	}
	return snap
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
