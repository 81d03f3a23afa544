package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	event := NewEvent("test-event-id", KindEpisode, 123)

	if event.SchemaVersion != "seizure.event.v1" {
		t.Errorf("Expected schema version 'seizure.event.v1', got %s", event.SchemaVersion)
	}
	if event.EventID != "test-event-id" {
		t.Errorf("Expected event ID 'test-event-id', got %s", event.EventID)
	}
	if event.Meta.Sequence != 123 {
		t.Errorf("Expected sequence 123, got %d", event.Meta.Sequence)
	}
	if _, err := time.Parse(time.RFC3339Nano, event.Timestamp); err != nil {
		t.Errorf("Expected RFC3339 timestamp, got %q", event.Timestamp)
	}
}

func TestEventJSONMarshaling(t *testing.T) {
	event := NewEvent("evt-1", KindEpisode, 1)
	event.Episode = &EpisodeSnapshot{
		EpisodeID: "ep-1",
		Phase:     PhaseAura,
		Trigger:   TriggerManual,
		StartedAt: time.Date(2026, 1, 16, 12, 0, 0, 0, time.UTC),
		ElapsedMs: 15000,
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}

	if decoded["kind"] != "episode" {
		t.Errorf("Expected kind 'episode', got %v", decoded["kind"])
	}
	if _, ok := decoded["telemetry"]; ok {
		t.Error("Expected telemetry payload to be omitted")
	}
	ep := decoded["episode"].(map[string]any)
	if ep["phase"] != "AURA" {
		t.Errorf("Expected phase AURA, got %v", ep["phase"])
	}
	if ep["started_at"] != "2026-01-16T12:00:00Z" {
		t.Errorf("Expected started_at, got %v", ep["started_at"])
	}
}

func TestEpisodeSnapshotOmitsZeroStart(t *testing.T) {
	data, err := json.Marshal(EpisodeSnapshot{Phase: PhaseIdle})
	if err != nil {
		t.Fatalf("Failed to marshal snapshot: %v", err)
	}
	if strings.Contains(string(data), "started_at") {
		t.Errorf("Expected started_at to be omitted, got %s", data)
	}
}

func TestPhaseUnmarshalText(t *testing.T) {
	var p Phase
	if err := json.Unmarshal([]byte(`"ICTAL"`), &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != PhaseIctal {
		t.Errorf("Expected ICTAL, got %s", p)
	}
	if err := json.Unmarshal([]byte(`"SEIZING"`), &p); err == nil {
		t.Error("Expected error for unknown phase")
	}
}

func TestPhaseSeverityOrder(t *testing.T) {
	order := []Phase{PhaseIdle, PhasePrediction, PhaseAura, PhaseIctal, PhaseStatus, PhaseRecovery}
	for i := 1; i < len(order); i++ {
		if order[i-1].Severity() >= order[i].Severity() {
			t.Errorf("Expected %s < %s", order[i-1], order[i])
		}
	}
}

func TestEpisodeElapsed(t *testing.T) {
	start := time.Date(2026, 1, 16, 12, 0, 0, 0, time.UTC)
	ep := &SeizureEpisode{StartedAt: start}

	if got := ep.Elapsed(start.Add(42 * time.Second)); got != 42*time.Second {
		t.Errorf("Expected 42s, got %v", got)
	}
	if got := ep.Elapsed(start.Add(-time.Second)); got != 0 {
		t.Errorf("Expected clamp to 0, got %v", got)
	}

	ep.EndedAt = start.Add(90 * time.Second)
	ep.FinalDuration = 90 * time.Second
	if got := ep.Elapsed(start.Add(time.Hour)); got != 90*time.Second {
		t.Errorf("Expected frozen 90s, got %v", got)
	}

	if got := (&SeizureEpisode{}).Elapsed(start); got != 0 {
		t.Errorf("Expected 0 for unstarted episode, got %v", got)
	}
}

func TestTelemetryStressed(t *testing.T) {
	tests := []struct {
		name   string
		sample TelemetrySample
		want   bool
	}{
		{"calm", TelemetrySample{HeartRate: 70, HRV: 55, Activity: ActivityResting}, false},
		{"low hrv", TelemetrySample{HeartRate: 70, HRV: 25, Activity: ActivityWalking}, true},
		{"resting tachycardia", TelemetrySample{HeartRate: 110, HRV: 45, Activity: ActivityResting}, true},
		{"exercise tachycardia", TelemetrySample{HeartRate: 140, HRV: 45, Activity: ActivityExercising}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sample.Stressed(); got != tt.want {
				t.Errorf("Stressed() = %v, want %v", got, tt.want)
			}
		})
	}
}
