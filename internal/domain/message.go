package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind discriminates the inbound Message variant.
type MessageKind string

const (
	MessageSchedule MessageKind = "schedule"
	MessageTracking MessageKind = "tracking"
)

// Message is the decoded form of one inbound event envelope.
type Message interface {
	Kind() MessageKind
}

// Rate controls an incremental ramp between two fermentation steps: Value
// degrees per tick, held for Duration before the next tick.
type Rate struct {
	Value    int
	Duration time.Duration
}

// FermentationStep is one phase of an inbound schedule.
type FermentationStep struct {
	Position          int
	TargetTemperature float64
	Duration          time.Duration
	Rate              *Rate
}

// ScheduleMessageData is the decoded "schedule" message payload.
type ScheduleMessageData struct {
	ID        uuid.UUID
	SentAt    time.Time
	Version   uint32
	SessionID uuid.UUID
	Hardwares []Hardware
	Steps     []FermentationStep
}

func (ScheduleMessageData) Kind() MessageKind { return MessageSchedule }

// HardwareOfType returns the single hardware entry of the given type, if
// present.
func (s ScheduleMessageData) HardwareOfType(h HardwareType) (Hardware, bool) {
	for _, hw := range s.Hardwares {
		if hw.Type == h {
			return hw, true
		}
	}
	return Hardware{}, false
}

// TrackingMessageData is the decoded "tracking" message payload.
type TrackingMessageData struct {
	ID          uuid.UUID
	SentAt      time.Time
	Version     uint32
	SessionID   uuid.UUID
	Temperature float64
}

func (TrackingMessageData) Kind() MessageKind { return MessageTracking }
