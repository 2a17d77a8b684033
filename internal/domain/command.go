package domain

import (
	"time"

	"github.com/google/uuid"
)

// StatusKind is the discriminator of CommandStatus.
type StatusKind uint8

const (
	StatusPlanned StatusKind = iota
	StatusRunning
	StatusExecuted
)

func (k StatusKind) String() string {
	switch k {
	case StatusPlanned:
		return "Planned"
	case StatusRunning:
		return "Running"
	case StatusExecuted:
		return "Executed"
	default:
		return "Unknown"
	}
}

// CommandStatus is the tagged Planned|Running{since}|Executed{at} variant
// from spec §3. Since is only meaningful when Kind == StatusRunning; At is
// only meaningful when Kind == StatusExecuted.
type CommandStatus struct {
	Kind  StatusKind
	Since time.Time
	At    time.Time
}

// Planned builds the initial status of a freshly scheduled command.
func Planned() CommandStatus {
	return CommandStatus{Kind: StatusPlanned}
}

// Running builds a Running{since} status.
func Running(since time.Time) CommandStatus {
	return CommandStatus{Kind: StatusRunning, Since: since}
}

// Executed builds an Executed{at} status.
func Executed(at time.Time) CommandStatus {
	return CommandStatus{Kind: StatusExecuted, At: at}
}

// SessionData links a command back to its owning session and the
// fermentation step position it was generated from.
type SessionData struct {
	SessionID    uuid.UUID
	StepPosition int
}

// NewCommand is the Scheduler's output: an atomic set-point command not
// yet persisted.
type NewCommand struct {
	ID                   uuid.UUID
	SessionData          SessionData
	Status               CommandStatus
	Value                float64
	ValueHoldingDuration time.Duration
}

// TemperatureData is the mutable set-point tracking state of a persisted
// Command.
type TemperatureData struct {
	Value                float64
	ValueReachedAt       *time.Time
	ValueHoldingDuration time.Duration
}

// Command is a persisted command, as read back from the store.
type Command struct {
	UUID               uuid.UUID
	FermentationStepID int64
	SessionID          int64
	Status             CommandStatus
	TemperatureData    TemperatureData
	UpdatedAt          time.Time
}

// Reached reports whether temperature t has reached this command's target
// value for the given active hardware type — ≤ for cooling, ≥ for heating.
func (c Command) Reached(hardware HardwareType, t float64) bool {
	switch hardware {
	case HardwareCooling:
		return t <= c.TemperatureData.Value
	case HardwareHeating:
		return t >= c.TemperatureData.Value
	default:
		return false
	}
}

// Session is one fermentation run, bound to exactly one heating and one
// cooling device.
type Session struct {
	ID                 int64
	UUID               uuid.UUID
	HeatingID          string
	CoolingID          string
	ActiveHardwareType *HardwareType
}

// HardwareID returns the device id bound to the given hardware type.
func (s Session) HardwareID(h HardwareType) string {
	if h == HardwareHeating {
		return s.HeatingID
	}
	return s.CoolingID
}
