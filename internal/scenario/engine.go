package scenario

import (
	"sync"
	"time"
)

// Engine tracks progression through a scenario's phases. Time is passed
// in by the caller so the simulator and its tests share one clock.
type Engine struct {
	scenario  *Scenario
	startTime time.Time
	mu        sync.RWMutex
}

// NewEngine creates a new scenario engine starting at start
func NewEngine(scenario *Scenario, start time.Time) *Engine {
	return &Engine{
		scenario:  scenario,
		startTime: start,
	}
}

// Elapsed returns the time elapsed since scenario start
func (e *Engine) Elapsed(now time.Time) time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d := now.Sub(e.startTime)
	if d < 0 {
		return 0
	}
	return d
}

// CurrentPhase returns the phase active at now and its index
func (e *Engine) CurrentPhase(now time.Time) (*Phase, int) {
	return e.scenario.PhaseAt(e.Elapsed(now))
}

// SignalConfig returns the effective signal configuration at now
func (e *Engine) SignalConfig(signalName string, now time.Time) *SignalConfig {
	return e.scenario.GetEffectiveConfig(signalName, e.Elapsed(now))
}

// IsComplete returns true if the scenario has finished
func (e *Engine) IsComplete(now time.Time) bool {
	duration, unlimited := ParseDuration(e.scenario.Duration)
	if unlimited {
		return false
	}
	return e.Elapsed(now) >= duration
}

// Scenario returns the underlying scenario
func (e *Engine) Scenario() *Scenario {
	return e.scenario
}

// Reset restarts the scenario at now
func (e *Engine) Reset(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startTime = now
}
