package risk

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/synheart/synheart-seizure/internal/models"
)

type predictRequest struct {
	CurrentBPM   float64 `json:"current_bpm"`
	HRVMs        float64 `json:"hrv_ms"`
	ActivityType string  `json:"activity_type"`
	SleepScore   float64 `json:"sleep_score"`
}

type predictResponse struct {
	StatusColor    string   `json:"status_color"`
	RiskScore      *float64 `json:"risk_score"`
	Title          string   `json:"title"`
	Message        string   `json:"message"`
	ActionRequired string   `json:"action_required"`
}

// HTTPAssessor posts samples to a prediction service.
type HTTPAssessor struct {
	client *resty.Client
	url    string
	now    func() time.Time
}

// NewHTTPAssessor creates an assessor posting to url.
func NewHTTPAssessor(url string, timeout time.Duration) *HTTPAssessor {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPAssessor{client: client, url: url, now: time.Now}
}

func (a *HTTPAssessor) Assess(ctx context.Context, s models.TelemetrySample) (models.RiskAssessment, error) {
	var out predictResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(predictRequest{
			CurrentBPM:   s.HeartRate,
			HRVMs:        s.HRV,
			ActivityType: string(s.Activity),
			SleepScore:   s.SleepScore,
		}).
		SetResult(&out).
		Post(a.url)
	if err != nil {
		return nil, fmt.Errorf("%w: predict: %v", ErrNoPrediction, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: predict returned %d", ErrNoPrediction, resp.StatusCode())
	}
	if out.StatusColor == "" || out.RiskScore == nil {
		return nil, fmt.Errorf("%w: response missing status_color or risk_score", ErrNoPrediction)
	}

	g := models.Guidance{
		Title:   strings.TrimSpace(out.Title),
		Message: strings.TrimSpace(out.Message),
		Action:  strings.TrimSpace(out.ActionRequired),
	}
	r, err := models.AssessmentFromColor(out.StatusColor, int(math.Round(*out.RiskScore)), a.now(), g)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPrediction, err)
	}
	return r, nil
}
