package nats

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"fermentctl/internal/domain"
)

func TestDecode_Schedule(t *testing.T) {
	sessionID := uuid.New()
	payload := []byte(`{
		"id": "` + uuid.New().String() + `",
		"sent_at": "2026-01-01T00:00:00Z",
		"version": 1,
		"type": "schedule",
		"session_id": "` + sessionID.String() + `",
		"hardwares": [
			{"hardware_type": "heating", "id": "heater-1"},
			{"hardware_type": "cooling", "id": "cooler-1"}
		],
		"steps": [
			{"position": 0, "target_temperature": 20.0, "duration": 96},
			{"position": 1, "target_temperature": 24.0, "duration": 72, "rate": {"value": 2, "duration": 1}}
		]
	}`)

	msg, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	sched, ok := msg.(domain.ScheduleMessageData)
	if !ok {
		t.Fatalf("got %T, want domain.ScheduleMessageData", msg)
	}
	if sched.SessionID != sessionID {
		t.Errorf("session_id = %v, want %v", sched.SessionID, sessionID)
	}
	if len(sched.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(sched.Steps))
	}
	if sched.Steps[1].Rate == nil || sched.Steps[1].Rate.Value != 2 {
		t.Errorf("step 1 rate = %+v, want {Value:2}", sched.Steps[1].Rate)
	}
	if sched.Steps[0].Duration != 96*time.Hour {
		t.Errorf("step 0 duration = %v, want 96h", sched.Steps[0].Duration)
	}

	heating, ok := sched.HardwareOfType(domain.HardwareHeating)
	if !ok || heating.ID != "heater-1" {
		t.Errorf("got %+v, %v, want {ID:heater-1}, true", heating, ok)
	}
}

func TestDecode_Tracking(t *testing.T) {
	sessionID := uuid.New()
	payload := []byte(`{
		"id": "` + uuid.New().String() + `",
		"sent_at": "2026-01-01T00:00:00Z",
		"version": 1,
		"type": "tracking",
		"session_id": "` + sessionID.String() + `",
		"temperature": 19.5
	}`)

	msg, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tracking, ok := msg.(domain.TrackingMessageData)
	if !ok {
		t.Fatalf("got %T, want domain.TrackingMessageData", msg)
	}
	if tracking.Temperature != 19.5 {
		t.Errorf("temperature = %v, want 19.5", tracking.Temperature)
	}
	if tracking.SessionID != sessionID {
		t.Errorf("session_id = %v, want %v", tracking.SessionID, sessionID)
	}
}

func TestDecode_TrackingMissingTemperature(t *testing.T) {
	payload := []byte(`{
		"id": "` + uuid.New().String() + `",
		"sent_at": "2026-01-01T00:00:00Z",
		"version": 1,
		"type": "tracking",
		"session_id": "` + uuid.New().String() + `"
	}`)
	if _, err := Decode(payload); err == nil {
		t.Errorf("expected error for missing temperature")
	}
}

func TestDecode_UnknownType(t *testing.T) {
	payload := []byte(`{
		"id": "` + uuid.New().String() + `",
		"sent_at": "2026-01-01T00:00:00Z",
		"version": 1,
		"type": "bogus",
		"session_id": "` + uuid.New().String() + `"
	}`)
	if _, err := Decode(payload); err == nil {
		t.Errorf("expected error for unknown message type")
	}
}

func TestDecode_InvalidSessionID(t *testing.T) {
	payload := []byte(`{
		"id": "` + uuid.New().String() + `",
		"type": "tracking",
		"session_id": "not-a-uuid",
		"temperature": 1.0
	}`)
	if _, err := Decode(payload); err == nil {
		t.Errorf("expected error for invalid session_id")
	}
}

func TestDecode_InvalidHardwareType(t *testing.T) {
	payload := []byte(`{
		"id": "` + uuid.New().String() + `",
		"type": "schedule",
		"session_id": "` + uuid.New().String() + `",
		"hardwares": [{"hardware_type": "bogus", "id": "x"}],
		"steps": [{"position": 0, "target_temperature": 20.0, "duration": 1}]
	}`)
	if _, err := Decode(payload); err == nil {
		t.Errorf("expected error for invalid hardware type")
	}
}
