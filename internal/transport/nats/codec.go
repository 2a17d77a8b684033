// Package nats adapts fermentctl's Ingress and Publisher driven ports onto
// NATS JetStream: a durable pull consumer for inbound schedule/tracking
// envelopes, and subject-templated publish for outbound hardware actuation.
package nats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fermentctl/internal/domain"
)

// rawEnvelope is the wire format described in spec §6: a thin header with
// type-specific fields flattened alongside it rather than nested under a
// "data" key (see original_source's inbound event model).
type rawEnvelope struct {
	ID      uuid.UUID `json:"id"`
	SentAt  time.Time `json:"sent_at"`
	Version uint32    `json:"version"`
	Type    string    `json:"type"`

	SessionID string `json:"session_id"`

	Hardwares []hardwareWire `json:"hardwares"`
	Steps     []stepWire     `json:"steps"`

	Temperature *float64 `json:"temperature"`
}

type hardwareWire struct {
	HardwareType string `json:"hardware_type"`
	ID           string `json:"id"`
}

type rateWire struct {
	Value    int `json:"value"`
	Duration int `json:"duration"`
}

type stepWire struct {
	Position          int       `json:"position"`
	TargetTemperature float64   `json:"target_temperature"`
	Duration          int       `json:"duration"`
	Rate              *rateWire `json:"rate"`
}

// Decode parses a raw JSON payload into a domain.Message, implementing
// port.Ingress's Decode method.
func Decode(payload []byte) (domain.Message, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("nats: decode envelope: %w", err)
	}

	sessionID, err := uuid.Parse(raw.SessionID)
	if err != nil {
		return nil, fmt.Errorf("nats: invalid session_id %q: %w", raw.SessionID, err)
	}

	switch strings.ToLower(raw.Type) {
	case "schedule":
		return decodeSchedule(raw, sessionID)
	case "tracking":
		return decodeTracking(raw, sessionID)
	default:
		return nil, fmt.Errorf("nats: unknown message type %q", raw.Type)
	}
}

func decodeSchedule(raw rawEnvelope, sessionID uuid.UUID) (domain.Message, error) {
	hardwares := make([]domain.Hardware, 0, len(raw.Hardwares))
	for _, h := range raw.Hardwares {
		hw, err := domain.ParseHardwareType(h.HardwareType)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		hardwares = append(hardwares, domain.Hardware{Type: hw, ID: h.ID})
	}

	steps := make([]domain.FermentationStep, 0, len(raw.Steps))
	for _, s := range raw.Steps {
		step := domain.FermentationStep{
			Position:          s.Position,
			TargetTemperature: s.TargetTemperature,
			Duration:          time.Duration(s.Duration) * time.Hour,
		}
		if s.Rate != nil {
			step.Rate = &domain.Rate{
				Value:    s.Rate.Value,
				Duration: time.Duration(s.Rate.Duration) * time.Hour,
			}
		}
		steps = append(steps, step)
	}

	return domain.ScheduleMessageData{
		ID:        raw.ID,
		SentAt:    raw.SentAt,
		Version:   raw.Version,
		SessionID: sessionID,
		Hardwares: hardwares,
		Steps:     steps,
	}, nil
}

func decodeTracking(raw rawEnvelope, sessionID uuid.UUID) (domain.Message, error) {
	if raw.Temperature == nil {
		return nil, fmt.Errorf("nats: tracking message missing temperature")
	}
	return domain.TrackingMessageData{
		ID:          raw.ID,
		SentAt:      raw.SentAt,
		Version:     raw.Version,
		SessionID:   sessionID,
		Temperature: *raw.Temperature,
	}, nil
}
