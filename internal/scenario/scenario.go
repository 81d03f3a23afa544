// Package scenario describes scripted telemetry for the simulator.
package scenario

import (
	"fmt"
	"time"

	"github.com/synheart/synheart-seizure/internal/models"
)

// Signal names understood by the simulator.
const (
	SignalHeartRate  = "heart_rate"
	SignalHRV        = "hrv"
	SignalSleepScore = "sleep_score"
	SignalActivity   = "activity"
)

// Scenario defines a complete scenario with phases and signal configurations
type Scenario struct {
	Name        string                   `yaml:"name"`
	Description string                   `yaml:"description"`
	Duration    string                   `yaml:"duration"` // e.g. "8m", "unlimited"
	Signals     map[string]*SignalConfig `yaml:"signals"`
	Phases      []Phase                  `yaml:"phases"`
}

// Phase is a time-bounded stage of a scenario. Fall marks an impact
// reported once when the phase is entered.
type Phase struct {
	Name      string                   `yaml:"name"`
	Duration  string                   `yaml:"duration"`
	Fall      bool                     `yaml:"fall,omitempty"`
	Overrides map[string]*SignalConfig `yaml:"overrides,omitempty"`
}

// SignalConfig defines the configuration for a signal
type SignalConfig struct {
	Baseline float64 `yaml:"baseline,omitempty"`
	Noise    float64 `yaml:"noise,omitempty"`
	Unit     string  `yaml:"unit,omitempty"`

	// Override modifiers
	Add      float64 `yaml:"add,omitempty"`
	Multiply float64 `yaml:"multiply,omitempty"`
	Value    string  `yaml:"value,omitempty"` // discrete values such as the activity type
}

// Target is the value the signal drifts toward.
func (c *SignalConfig) Target() float64 {
	v := c.Baseline
	if c.Multiply != 0 {
		v *= c.Multiply
	}
	return v + c.Add
}

// ParseDuration parses duration strings like "8m", "30s", "unlimited"
func ParseDuration(s string) (time.Duration, bool) {
	if s == "unlimited" || s == "" {
		return 0, true // 0 means unlimited
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, false
}

// Validate checks durations, signal names and activity values.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario has no name")
	}
	if _, unlimited := ParseDuration(s.Duration); !unlimited {
		if _, err := time.ParseDuration(s.Duration); err != nil {
			return fmt.Errorf("scenario %s: invalid duration %q", s.Name, s.Duration)
		}
	}
	if err := validateSignals(s.Signals); err != nil {
		return fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	for i, p := range s.Phases {
		if _, unlimited := ParseDuration(p.Duration); !unlimited {
			if _, err := time.ParseDuration(p.Duration); err != nil {
				return fmt.Errorf("scenario %s: phase %d: invalid duration %q", s.Name, i, p.Duration)
			}
		}
		if err := validateSignals(p.Overrides); err != nil {
			return fmt.Errorf("scenario %s: phase %s: %w", s.Name, p.Name, err)
		}
	}
	return nil
}

func validateSignals(signals map[string]*SignalConfig) error {
	for name, cfg := range signals {
		switch name {
		case SignalHeartRate, SignalHRV, SignalSleepScore:
		case SignalActivity:
			if cfg != nil && cfg.Value != "" {
				switch models.Activity(cfg.Value) {
				case models.ActivityResting, models.ActivityWalking, models.ActivityExercising, models.ActivitySleeping:
				default:
					return fmt.Errorf("unknown activity %q", cfg.Value)
				}
			}
		default:
			return fmt.Errorf("unknown signal %q", name)
		}
	}
	return nil
}

// GetEffectiveConfig returns the signal config for a given signal name at a specific time
func (s *Scenario) GetEffectiveConfig(signalName string, elapsed time.Duration) *SignalConfig {
	baseConfig := s.Signals[signalName]
	if baseConfig == nil {
		return nil
	}

	currentPhase, _ := s.PhaseAt(elapsed)
	if currentPhase == nil {
		return baseConfig
	}

	if override, ok := currentPhase.Overrides[signalName]; ok && override != nil {
		merged := *baseConfig
		if override.Add != 0 {
			merged.Add = override.Add
		}
		if override.Multiply != 0 {
			merged.Multiply = override.Multiply
		}
		if override.Value != "" {
			merged.Value = override.Value
		}
		if override.Baseline != 0 {
			merged.Baseline = override.Baseline
		}
		if override.Noise != 0 {
			merged.Noise = override.Noise
		}
		return &merged
	}

	return baseConfig
}

// PhaseAt returns the phase active at elapsed and its index. Past the
// total duration the last phase stays active.
func (s *Scenario) PhaseAt(elapsed time.Duration) (*Phase, int) {
	if len(s.Phases) == 0 {
		return nil, -1
	}

	var currentTime time.Duration
	for i := range s.Phases {
		phaseDuration, unlimited := ParseDuration(s.Phases[i].Duration)
		if unlimited {
			return &s.Phases[i], i
		}

		if elapsed < currentTime+phaseDuration {
			return &s.Phases[i], i
		}
		currentTime += phaseDuration
	}

	last := len(s.Phases) - 1
	return &s.Phases[last], last
}
