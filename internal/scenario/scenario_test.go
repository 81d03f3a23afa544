package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input     string
		expected  time.Duration
		unlimited bool
	}{
		{"unlimited", 0, true},
		{"", 0, true},
		{"5m", 5 * time.Minute, false},
		{"30s", 30 * time.Second, false},
		{"1h", time.Hour, false},
	}

	for _, test := range tests {
		duration, unlimited := ParseDuration(test.input)
		if unlimited != test.unlimited {
			t.Errorf("ParseDuration(%s): expected unlimited=%v, got %v", test.input, test.unlimited, unlimited)
		}
		if !unlimited && duration != test.expected {
			t.Errorf("ParseDuration(%s): expected %v, got %v", test.input, test.expected, duration)
		}
	}
}

func stressScenario() *Scenario {
	return &Scenario{
		Name:     "test",
		Duration: "5m",
		Signals: map[string]*SignalConfig{
			SignalHeartRate: {Baseline: 72, Noise: 3},
			SignalHRV:       {Baseline: 50},
		},
		Phases: []Phase{
			{Name: "baseline", Duration: "2m"},
			{
				Name:     "spike",
				Duration: "30s",
				Fall:     true,
				Overrides: map[string]*SignalConfig{
					SignalHeartRate: {Add: 35},
					SignalHRV:       {Multiply: 0.5},
				},
			},
		},
	}
}

func TestGetEffectiveConfig(t *testing.T) {
	s := stressScenario()

	cfg := s.GetEffectiveConfig(SignalHeartRate, time.Minute)
	assert.Zero(t, cfg.Add)
	assert.Equal(t, 72.0, cfg.Target())

	cfg = s.GetEffectiveConfig(SignalHeartRate, 2*time.Minute+15*time.Second)
	assert.Equal(t, 35.0, cfg.Add)
	assert.Equal(t, 3.0, cfg.Noise, "unset override fields keep the base value")
	assert.Equal(t, 107.0, cfg.Target())

	assert.Equal(t, 25.0, s.GetEffectiveConfig(SignalHRV, 2*time.Minute+time.Second).Target())
	assert.Nil(t, s.GetEffectiveConfig(SignalSleepScore, 0))
}

func TestPhaseAt_LastPhaseSticks(t *testing.T) {
	s := stressScenario()

	p, i := s.PhaseAt(0)
	assert.Equal(t, "baseline", p.Name)
	assert.Equal(t, 0, i)

	p, i = s.PhaseAt(time.Hour)
	assert.Equal(t, "spike", p.Name)
	assert.Equal(t, 1, i)
	assert.True(t, p.Fall)
}

func TestScenarioEngine(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(stressScenario(), start)

	assert.False(t, engine.IsComplete(start))
	assert.True(t, engine.IsComplete(start.Add(5*time.Minute)))
	assert.Equal(t, time.Duration(0), engine.Elapsed(start.Add(-time.Second)))

	cfg := engine.SignalConfig(SignalHeartRate, start)
	require.NotNil(t, cfg)
	assert.Equal(t, 72.0, cfg.Baseline)

	_, idx := engine.CurrentPhase(start.Add(2*time.Minute + time.Second))
	assert.Equal(t, 1, idx)

	engine.Reset(start.Add(time.Hour))
	_, idx = engine.CurrentPhase(start.Add(time.Hour))
	assert.Equal(t, 0, idx)
}

func TestValidate(t *testing.T) {
	s := stressScenario()
	require.NoError(t, s.Validate())

	s.Signals["skin_temp"] = &SignalConfig{Baseline: 33}
	assert.ErrorContains(t, s.Validate(), `unknown signal "skin_temp"`)

	s = stressScenario()
	s.Signals[SignalActivity] = &SignalConfig{Value: "SWIMMING"}
	assert.ErrorContains(t, s.Validate(), "unknown activity")

	s = stressScenario()
	s.Phases[0].Duration = "soon"
	assert.Error(t, s.Validate())
}

func TestDefaults_LoadsBuiltins(t *testing.T) {
	r, err := Defaults("")
	require.NoError(t, err)
	assert.Equal(t, []string{"baseline", "fall", "preictal"}, r.List())

	fall, err := r.Get("fall")
	require.NoError(t, err)
	p, _ := fall.PhaseAt(31 * time.Second)
	assert.True(t, p.Fall)

	_, err = r.Get("nope")
	assert.Error(t, err)
}

func TestDefaults_DirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	doc := "name: baseline\ndescription: custom\nduration: 1m\nsignals:\n  heart_rate:\n    baseline: 60\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "baseline.yaml"), []byte(doc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	r, err := Defaults(dir)
	require.NoError(t, err)
	assert.Equal(t, "custom", r.ListWithDescriptions()["baseline"])
}

func TestLoadFromFS_RejectsUnknownKeys(t *testing.T) {
	fsys := fstest.MapFS{
		"bad.yaml": {Data: []byte("name: bad\ncolour: red\n")},
	}
	err := NewRegistry().LoadFromFS(fsys, ".")
	assert.ErrorContains(t, err, "bad.yaml")
}
