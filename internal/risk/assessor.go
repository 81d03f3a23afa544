// Package risk asks an external or on-device model whether the wearer's
// vitals warrant a seizure prediction.
package risk

import (
	"context"
	"errors"

	"github.com/synheart/synheart-seizure/internal/models"
)

// ErrNoPrediction marks an assessment that failed or came back
// malformed. The sample is treated as if no prediction was made.
var ErrNoPrediction = errors.New("no prediction")

// Assessor scores one telemetry sample.
type Assessor interface {
	Assess(ctx context.Context, s models.TelemetrySample) (models.RiskAssessment, error)
}

// DefaultGuidance is attached to scores produced without model text.
var DefaultGuidance = map[models.RiskBucket]models.Guidance{
	models.BucketCaution: {
		Title:   "Mild stress",
		Message: "Your vitals show some stress. Take a moment to rest.",
		Action:  "REST",
	},
	models.BucketElevated: {
		Title:   "Elevated seizure risk",
		Message: "Your heart rate variability has dropped. Sit down somewhere safe.",
		Action:  "SIT DOWN",
	},
	models.BucketCritical: {
		Title:   "High seizure risk",
		Message: "Strong pre-seizure pattern. Lie down and alert someone nearby.",
		Action:  "LIE DOWN",
	},
}
