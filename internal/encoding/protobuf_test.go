package encoding

import (
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/synheart/synheart-seizure/internal/models"
)

func TestProtobufEncoder_TelemetryEvent(t *testing.T) {
	enc := NewProtobufEncoder()

	event := models.Event{
		SchemaVersion: models.SchemaVersion,
		EventID:       "test-123",
		Timestamp:     "2025-01-02T10:00:00Z",
		Kind:          models.KindTelemetry,
		Telemetry: &models.TelemetrySample{
			HeartRate:  72.5,
			HRV:        48,
			Activity:   models.ActivityResting,
			Connection: models.Connected,
		},
		Meta: models.Meta{Sequence: 1},
	}

	data, err := enc.Encode(event)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var pb structpb.Struct
	if err := proto.Unmarshal(data, &pb); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if got := pb.Fields["schema_version"].GetStringValue(); got != models.SchemaVersion {
		t.Errorf("schema_version = %q, want %s", got, models.SchemaVersion)
	}
	if got := pb.Fields["event_id"].GetStringValue(); got != "test-123" {
		t.Errorf("event_id = %q, want test-123", got)
	}
	tel := pb.Fields["telemetry"].GetStructValue()
	if tel == nil {
		t.Fatal("telemetry payload missing")
	}
	if got := tel.Fields["heart_rate"].GetNumberValue(); got != 72.5 {
		t.Errorf("telemetry.heart_rate = %v, want 72.5", got)
	}
	if got := tel.Fields["activity_type"].GetStringValue(); got != "RESTING" {
		t.Errorf("telemetry.activity_type = %q, want RESTING", got)
	}
	if _, ok := pb.Fields["episode"]; ok {
		t.Error("episode payload should be absent")
	}
}

func TestProtobufEncoder_EscalationEvent(t *testing.T) {
	enc := NewProtobufEncoder()

	event := models.NewEvent("esc-1", models.KindEscalation, 7)
	event.Escalation = &models.EscalationProgress{
		EpisodeID: "ep-1",
		Status:    models.EscalationPartialFailure,
		Message:   "All contacts notified.",
		Attempts: []models.EscalationAttempt{
			{ContactID: "c1", ContactName: "Sam", Status: models.AttemptSent, AttemptedAt: time.Unix(0, 0).UTC()},
			{ContactID: "c2", ContactName: "Ana", Status: models.AttemptFailed, Error: "timeout"},
		},
	}

	data, err := enc.Encode(event)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var pb structpb.Struct
	if err := proto.Unmarshal(data, &pb); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	esc := pb.Fields["escalation"].GetStructValue()
	attempts := esc.Fields["attempts"].GetListValue().GetValues()
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	if got := attempts[1].GetStructValue().Fields["status"].GetStringValue(); got != "FAILED" {
		t.Errorf("attempts[1].status = %q, want FAILED", got)
	}
	if got := pb.Fields["meta"].GetStructValue().Fields["sequence"].GetNumberValue(); got != 7 {
		t.Errorf("meta.sequence = %v, want 7", got)
	}
}

func TestNewEncoder(t *testing.T) {
	if NewEncoder(FormatProtobuf).ContentType() != "application/x-protobuf" {
		t.Error("expected protobuf content type")
	}
	if NewEncoder(FormatJSON).ContentType() != "application/json" {
		t.Error("expected json content type")
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
