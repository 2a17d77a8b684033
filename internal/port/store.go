// Package port declares the driven-port interfaces the Scheduler and
// Executor services depend on: the command store, the hardware action
// publisher, and the event ingress decoder. No implementation lives here —
// adapters are under internal/store, internal/transport.
package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fermentctl/internal/domain"
)

// Sorting is the ordering direction for FetchCommands.
type Sorting int

const (
	SortAscending Sorting = iota
	SortDescending
)

// FetchOptions narrows a FetchCommands query.
type FetchOptions struct {
	// Limit caps the number of rows returned. Zero means unbounded.
	Limit int
	// Sorting orders by the store's "last updated" timestamp.
	Sorting Sorting
}

// CommandStore is the driven port for session/command persistence
// (spec §4.3).
type CommandStore interface {
	// Insert creates the session row and all derived command rows in one
	// logical batch. Must fail if commands is empty.
	Insert(ctx context.Context, sessionID uuid.UUID, heating, cooling domain.Hardware, commands []domain.NewCommand) (count int, err error)

	// FetchCommands returns commands for a session filtered by status
	// kind, honoring opts.
	FetchCommands(ctx context.Context, sessionID uuid.UUID, status domain.StatusKind, opts FetchOptions) ([]domain.Command, error)

	// FetchHardwareID returns the device id bound to hardware for the
	// session.
	FetchHardwareID(ctx context.Context, sessionID uuid.UUID, hardware domain.HardwareType) (string, error)

	// FetchActiveHardwareType returns the session's active hardware type,
	// or (nil, nil) if none is set (covering both "unknown session" and
	// "session with null active type" — both fold to nil for the
	// Executor's purposes).
	FetchActiveHardwareType(ctx context.Context, sessionID uuid.UUID) (*domain.HardwareType, error)

	// UpdateStatus writes a new status for the command. Rejects
	// domain.StatusPlanned as a target status.
	UpdateStatus(ctx context.Context, commandUUID uuid.UUID, status domain.CommandStatus) error

	// UpdateValueReachedAt sets the field unconditionally.
	UpdateValueReachedAt(ctx context.Context, commandUUID uuid.UUID, at time.Time) error

	// UpdateActiveHardwareType sets or clears the session's active
	// hardware type.
	UpdateActiveHardwareType(ctx context.Context, sessionID uuid.UUID, hardware *domain.HardwareType) error
}
