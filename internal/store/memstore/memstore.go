// Package memstore is an in-memory port.CommandStore, used by tests that
// need a store without a Postgres instance.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fermentctl/internal/domain"
	"fermentctl/internal/port"
)

type sessionRow struct {
	id                 int64
	uuid               uuid.UUID
	heatingID          string
	coolingID          string
	activeHardwareType *domain.HardwareType
}

type commandRow struct {
	uuid           uuid.UUID
	sessionID      int64
	stepPosition   int
	status         domain.CommandStatus
	value          float64
	valueReachedAt *time.Time
	holding        time.Duration
	updatedAt      time.Time
	seq            int64
}

// Store is a mutex-guarded, map-backed port.CommandStore.
type Store struct {
	mu sync.RWMutex

	nextSessionID int64
	nextSeq       int64

	sessionsByUUID map[uuid.UUID]*sessionRow
	sessionsByID   map[int64]*sessionRow
	commands       map[uuid.UUID]*commandRow
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		sessionsByUUID: make(map[uuid.UUID]*sessionRow),
		sessionsByID:   make(map[int64]*sessionRow),
		commands:       make(map[uuid.UUID]*commandRow),
	}
}

var _ port.CommandStore = (*Store)(nil)

// Insert creates the session row, if absent, and all command rows for it.
func (s *Store) Insert(ctx context.Context, sessionID uuid.UUID, heating, cooling domain.Hardware, commands []domain.NewCommand) (int, error) {
	if len(commands) == 0 {
		return 0, fmt.Errorf("memstore: no commands to insert")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessionsByUUID[sessionID]
	if !ok {
		s.nextSessionID++
		sess = &sessionRow{
			id:        s.nextSessionID,
			uuid:      sessionID,
			heatingID: heating.ID,
			coolingID: cooling.ID,
		}
		s.sessionsByUUID[sessionID] = sess
		s.sessionsByID[sess.id] = sess
	}

	now := time.Now()
	for _, c := range commands {
		s.nextSeq++
		s.commands[c.ID] = &commandRow{
			uuid:         c.ID,
			sessionID:    sess.id,
			stepPosition: c.SessionData.StepPosition,
			status:       c.Status,
			value:        c.Value,
			holding:      c.ValueHoldingDuration,
			updatedAt:    now,
			seq:          s.nextSeq,
		}
	}
	return len(commands), nil
}

// FetchCommands returns the session's commands filtered by status, ordered
// by insertion sequence only, standing in for the store's "last updated"
// ordering; updatedAt is not consulted.
func (s *Store) FetchCommands(ctx context.Context, sessionID uuid.UUID, status domain.StatusKind, opts port.FetchOptions) ([]domain.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessionsByUUID[sessionID]
	if !ok {
		return nil, nil
	}

	var rows []*commandRow
	for _, c := range s.commands {
		if c.sessionID == sess.id && c.status.Kind == status {
			rows = append(rows, c)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if opts.Sorting == port.SortDescending {
			return rows[i].seq > rows[j].seq
		}
		return rows[i].seq < rows[j].seq
	})

	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}

	out := make([]domain.Command, 0, len(rows))
	for _, c := range rows {
		out = append(out, toDomainCommand(sess, c))
	}
	return out, nil
}

func toDomainCommand(sess *sessionRow, c *commandRow) domain.Command {
	return domain.Command{
		UUID:                c.uuid,
		FermentationStepID:  int64(c.stepPosition),
		SessionID:           sess.id,
		Status:              c.status,
		UpdatedAt:           c.updatedAt,
		TemperatureData: domain.TemperatureData{
			Value:                c.value,
			ValueReachedAt:       c.valueReachedAt,
			ValueHoldingDuration: c.holding,
		},
	}
}

// FetchHardwareID returns the device id bound to the hardware type.
func (s *Store) FetchHardwareID(ctx context.Context, sessionID uuid.UUID, hardware domain.HardwareType) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessionsByUUID[sessionID]
	if !ok {
		return "", fmt.Errorf("memstore: session %s not found", sessionID)
	}
	return sess.HardwareID(hardware), nil
}

// HardwareID mirrors domain.Session.HardwareID for the store's internal row type.
func (sess *sessionRow) HardwareID(h domain.HardwareType) string {
	if h == domain.HardwareHeating {
		return sess.heatingID
	}
	return sess.coolingID
}

// FetchActiveHardwareType returns the session's active hardware type, or
// nil if unset or the session is unknown.
func (s *Store) FetchActiveHardwareType(ctx context.Context, sessionID uuid.UUID) (*domain.HardwareType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessionsByUUID[sessionID]
	if !ok || sess.activeHardwareType == nil {
		return nil, nil
	}
	h := *sess.activeHardwareType
	return &h, nil
}

// UpdateStatus writes a new status for the command.
func (s *Store) UpdateStatus(ctx context.Context, commandUUID uuid.UUID, status domain.CommandStatus) error {
	if status.Kind == domain.StatusPlanned {
		return fmt.Errorf("memstore: cannot update status back to planned")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commands[commandUUID]
	if !ok {
		return fmt.Errorf("memstore: command %s not found", commandUUID)
	}
	c.status = status
	c.updatedAt = time.Now()
	return nil
}

// UpdateValueReachedAt sets the field unconditionally.
func (s *Store) UpdateValueReachedAt(ctx context.Context, commandUUID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commands[commandUUID]
	if !ok {
		return fmt.Errorf("memstore: command %s not found", commandUUID)
	}
	t := at
	c.valueReachedAt = &t
	return nil
}

// UpdateActiveHardwareType sets or clears the session's active hardware type.
func (s *Store) UpdateActiveHardwareType(ctx context.Context, sessionID uuid.UUID, hardware *domain.HardwareType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessionsByUUID[sessionID]
	if !ok {
		return fmt.Errorf("memstore: session %s not found", sessionID)
	}
	if hardware == nil {
		sess.activeHardwareType = nil
		return nil
	}
	h := *hardware
	sess.activeHardwareType = &h
	return nil
}
