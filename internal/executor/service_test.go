package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"fermentctl/internal/domain"
	"fermentctl/internal/port"
	"fermentctl/internal/store/memstore"
)

type fakePublisher struct {
	actions []domain.HardwareAction
	failing bool
}

func (p *fakePublisher) Publish(ctx context.Context, action domain.HardwareAction) error {
	if p.failing {
		return errors.New("publish: connection refused")
	}
	p.actions = append(p.actions, action)
	return nil
}

func newSession(t *testing.T, store *memstore.Store, heatingID, coolingID string, commands ...domain.NewCommand) uuid.UUID {
	t.Helper()
	sessionID := commands[0].SessionData.SessionID
	heating := domain.Hardware{Type: domain.HardwareHeating, ID: heatingID}
	cooling := domain.Hardware{Type: domain.HardwareCooling, ID: coolingID}
	if _, err := store.Insert(context.Background(), sessionID, heating, cooling, commands); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return sessionID
}

func planned(sessionID uuid.UUID, position int, value float64, holding time.Duration) domain.NewCommand {
	return domain.NewCommand{
		ID:                   uuid.New(),
		SessionData:          domain.SessionData{SessionID: sessionID, StepPosition: position},
		Status:               domain.Planned(),
		Value:                value,
		ValueHoldingDuration: holding,
	}
}

// P3/S4 — activation picks heating when the target is above ambient.
func TestProcess_ActivatesHeating(t *testing.T) {
	store := memstore.New()
	sessionID := uuid.New()
	cmd := planned(sessionID, 0, 24.0, time.Hour)
	newSession(t, store, "heater-1", "cooler-1", cmd)

	pub := &fakePublisher{}
	svc := New(store, pub, nil, nil)

	if err := svc.Process(context.Background(), domain.TrackingMessageData{SessionID: sessionID, Temperature: 18.0}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(pub.actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(pub.actions))
	}
	if pub.actions[0].Kind != domain.ActionStart || pub.actions[0].DeviceID != "heater-1" {
		t.Errorf("got %+v, want Start(heater-1)", pub.actions[0])
	}

	running, err := store.FetchCommands(context.Background(), sessionID, domain.StatusRunning, port.FetchOptions{Limit: 1})
	if err != nil {
		t.Fatalf("fetch running: %v", err)
	}
	if len(running) != 1 {
		t.Fatalf("expected command to be running, got %d", len(running))
	}
}

// P3/S4 — activation picks cooling when the target is below ambient.
func TestProcess_ActivatesCooling(t *testing.T) {
	store := memstore.New()
	sessionID := uuid.New()
	cmd := planned(sessionID, 0, 4.0, time.Hour)
	newSession(t, store, "heater-1", "cooler-1", cmd)

	pub := &fakePublisher{}
	svc := New(store, pub, nil, nil)

	if err := svc.Process(context.Background(), domain.TrackingMessageData{SessionID: sessionID, Temperature: 20.0}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(pub.actions) != 1 || pub.actions[0].DeviceID != "cooler-1" {
		t.Fatalf("got %+v, want Start(cooler-1)", pub.actions)
	}
}

// P7/S7 — no planned or running commands: profile complete, no-op.
func TestProcess_ProfileComplete_NoOp(t *testing.T) {
	store := memstore.New()
	sessionID := uuid.New()
	cmd := planned(sessionID, 0, 20.0, time.Hour)
	newSession(t, store, "heater-1", "cooler-1", cmd)

	// Directly mark the only command Executed so nothing is Planned/Running.
	running, _ := store.FetchCommands(context.Background(), sessionID, domain.StatusPlanned, port.FetchOptions{Limit: 1})
	if err := store.UpdateStatus(context.Background(), running[0].UUID, domain.Executed(time.Now())); err != nil {
		t.Fatalf("update status: %v", err)
	}

	pub := &fakePublisher{}
	svc := New(store, pub, nil, nil)

	if err := svc.Process(context.Background(), domain.TrackingMessageData{SessionID: sessionID, Temperature: 20.0}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(pub.actions) != 0 {
		t.Errorf("expected no actions, got %+v", pub.actions)
	}
}

// P4/S5 — target reached but not yet held long enough: no stop, no advance.
func TestProcess_TargetReached_HoldNotElapsed(t *testing.T) {
	store := memstore.New()
	sessionID := uuid.New()
	cmd := planned(sessionID, 0, 20.0, time.Hour)
	newSession(t, store, "heater-1", "cooler-1", cmd)

	pub := &fakePublisher{}
	svc := New(store, pub, nil, nil)

	// Activate first (ambient below target -> heating).
	if err := svc.Process(context.Background(), domain.TrackingMessageData{SessionID: sessionID, Temperature: 10.0}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	pub.actions = nil

	// Reached target now.
	if err := svc.Process(context.Background(), domain.TrackingMessageData{SessionID: sessionID, Temperature: 20.0}); err != nil {
		t.Fatalf("process reached: %v", err)
	}
	if len(pub.actions) != 0 {
		t.Errorf("expected no stop actions yet, got %+v", pub.actions)
	}

	running, err := store.FetchCommands(context.Background(), sessionID, domain.StatusRunning, port.FetchOptions{Limit: 1})
	if err != nil || len(running) != 1 {
		t.Fatalf("expected command still running, got %v err=%v", running, err)
	}
	if running[0].TemperatureData.ValueReachedAt == nil {
		t.Errorf("expected value_reached_at to be set")
	}
}

// P4/S5/S6 — once the hold duration elapses, the command executes and
// hardware stops.
func TestProcess_HoldElapsed_StopsAndExecutes(t *testing.T) {
	store := memstore.New()
	sessionID := uuid.New()
	cmd := planned(sessionID, 0, 20.0, 30*time.Minute)
	newSession(t, store, "heater-1", "cooler-1", cmd)

	pub := &fakePublisher{}

	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := New(store, pub, nil, nil)
	svc.now = func() time.Time { return current }

	if err := svc.Process(context.Background(), domain.TrackingMessageData{SessionID: sessionID, Temperature: 10.0}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	pub.actions = nil

	if err := svc.Process(context.Background(), domain.TrackingMessageData{SessionID: sessionID, Temperature: 20.0}); err != nil {
		t.Fatalf("mark reached: %v", err)
	}

	current = current.Add(31 * time.Minute)
	if err := svc.Process(context.Background(), domain.TrackingMessageData{SessionID: sessionID, Temperature: 20.0}); err != nil {
		t.Fatalf("process elapsed: %v", err)
	}

	if len(pub.actions) != 2 {
		t.Fatalf("got %d stop actions, want 2 (heating+cooling)", len(pub.actions))
	}
	for _, a := range pub.actions {
		if a.Kind != domain.ActionStop {
			t.Errorf("action %+v: want Stop", a)
		}
	}

	executed, err := store.FetchCommands(context.Background(), sessionID, domain.StatusExecuted, port.FetchOptions{Limit: 1})
	if err != nil || len(executed) != 1 {
		t.Fatalf("expected command executed, got %v err=%v", executed, err)
	}

	active, err := store.FetchActiveHardwareType(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("fetch active hardware: %v", err)
	}
	if active != nil {
		t.Errorf("expected active hardware type cleared, got %v", *active)
	}
}

// I3 — a Running command but no active hardware id recorded is a
// breach; surfaced as a transient, retryable ErrNotFound.
func TestProcess_RunningWithoutActiveHardware_IsNotFound(t *testing.T) {
	store := memstore.New()
	sessionID := uuid.New()
	cmd := planned(sessionID, 0, 20.0, time.Hour)
	newSession(t, store, "heater-1", "cooler-1", cmd)

	planned, err := store.FetchCommands(context.Background(), sessionID, domain.StatusPlanned, port.FetchOptions{Limit: 1})
	if err != nil || len(planned) != 1 {
		t.Fatalf("fetch planned: %v", err)
	}
	if err := store.UpdateStatus(context.Background(), planned[0].UUID, domain.Running(time.Now())); err != nil {
		t.Fatalf("update status: %v", err)
	}

	pub := &fakePublisher{}
	svc := New(store, pub, nil, nil)

	err = svc.Process(context.Background(), domain.TrackingMessageData{SessionID: sessionID, Temperature: 20.0})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

// ErrTechnicalError wraps a publish failure; state does not advance.
func TestProcess_PublishFailure_IsTechnicalError(t *testing.T) {
	store := memstore.New()
	sessionID := uuid.New()
	cmd := planned(sessionID, 0, 20.0, time.Hour)
	newSession(t, store, "heater-1", "cooler-1", cmd)

	pub := &fakePublisher{failing: true}
	svc := New(store, pub, nil, nil)

	err := svc.Process(context.Background(), domain.TrackingMessageData{SessionID: sessionID, Temperature: 10.0})
	if !errors.Is(err, ErrTechnicalError) {
		t.Fatalf("got %v, want ErrTechnicalError", err)
	}

	// Command must remain Planned since the publish aborted before the
	// status transition.
	still, err := store.FetchCommands(context.Background(), sessionID, domain.StatusPlanned, port.FetchOptions{Limit: 1})
	if err != nil || len(still) != 1 {
		t.Fatalf("expected command still planned, got %v err=%v", still, err)
	}
}

// ACTIVATE on a command that is not Planned is a permanent ErrStatusError,
// never a silent re-activation.
func TestActivate_NonPlannedCommand_IsStatusError(t *testing.T) {
	store := memstore.New()
	pub := &fakePublisher{}
	svc := New(store, pub, nil, nil)

	sessionID := uuid.New()
	cmd := domain.Command{
		UUID:            uuid.New(),
		Status:          domain.Running(time.Now()),
		TemperatureData: domain.TemperatureData{Value: 20.0},
	}

	err := svc.activate(context.Background(), sessionID, cmd, 10.0)
	if !errors.Is(err, ErrStatusError) {
		t.Fatalf("got %v, want ErrStatusError", err)
	}
	if len(pub.actions) != 0 {
		t.Fatalf("expected no publish, got %v", pub.actions)
	}
}
