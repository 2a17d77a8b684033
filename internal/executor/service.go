// Package executor implements the tracking-driven state machine described
// in spec §4.2: on each tracking sample it selects the next command,
// picks heating vs. cooling, emits hardware actuation, detects "target
// reached + held long enough", and advances the plan.
//
// The service is intentionally stateless across calls — every decision is
// re-derived from the store on each Process call, so the hold-timer
// survives a restart with no in-process timer (spec §9).
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fermentctl/internal/domain"
	"fermentctl/internal/observability"
	"fermentctl/internal/port"
)

// Service implements the Executor driver port.
type Service struct {
	store     port.CommandStore
	publisher port.Publisher
	log       *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// New builds an Executor Service over the given store and publisher.
// metrics may be nil, in which case no counters are recorded.
func New(store port.CommandStore, publisher port.Publisher, log *zap.Logger, metrics *observability.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, publisher: publisher, log: log, metrics: metrics, now: time.Now}
}

// Process advances the plan for one tracking sample (spec §4.2).
func (s *Service) Process(ctx context.Context, tracking domain.TrackingMessageData) error {
	sessionID := tracking.SessionID

	if s.metrics != nil {
		s.metrics.TrackingProcessedTotal.Inc()
	}

	running, err := s.store.FetchCommands(ctx, sessionID, domain.StatusRunning, port.FetchOptions{Limit: 1, Sorting: port.SortAscending})
	if err != nil {
		s.recordError("technical_error")
		return fmt.Errorf("%w: fetch running commands: %v", ErrTechnicalError, err)
	}

	if len(running) == 0 {
		return s.activateNext(ctx, sessionID, tracking.Temperature)
	}

	return s.advance(ctx, sessionID, running[0], tracking.Temperature)
}

// recordError increments ExecutorErrorsTotal by class, if metrics are wired.
func (s *Service) recordError(class string) {
	if s.metrics != nil {
		s.metrics.ExecutorErrorsTotal.WithLabelValues(class).Inc()
	}
}

// activateNext picks the oldest Planned command, if any, and activates it.
// If there is no planned command left, the profile is complete and this
// is a no-op (spec S7).
func (s *Service) activateNext(ctx context.Context, sessionID uuid.UUID, temperature float64) error {
	planned, err := s.store.FetchCommands(ctx, sessionID, domain.StatusPlanned, port.FetchOptions{Limit: 1, Sorting: port.SortAscending})
	if err != nil {
		s.recordError("technical_error")
		return fmt.Errorf("%w: fetch planned commands: %v", ErrTechnicalError, err)
	}
	if len(planned) == 0 {
		s.log.Debug("no running or planned command, profile complete", zap.String("session_id", sessionID.String()))
		return nil
	}
	return s.activate(ctx, sessionID, planned[0], temperature)
}

// activate implements ACTIVATE(cmd, T) from spec §4.2.
func (s *Service) activate(ctx context.Context, sessionID uuid.UUID, cmd domain.Command, temperature float64) error {
	if cmd.Status.Kind != domain.StatusPlanned {
		s.recordError("status_error")
		return fmt.Errorf("%w: command %s is %s, not Planned", ErrStatusError, cmd.UUID, cmd.Status.Kind)
	}

	hardware := domain.HardwareCooling
	if cmd.TemperatureData.Value > temperature {
		hardware = domain.HardwareHeating
	}

	deviceID, err := s.store.FetchHardwareID(ctx, sessionID, hardware)
	if err != nil {
		s.recordError("technical_error")
		return fmt.Errorf("%w: fetch hardware id: %v", ErrTechnicalError, err)
	}

	if err := s.publisher.Publish(ctx, domain.Start(deviceID)); err != nil {
		s.recordError("technical_error")
		if s.metrics != nil {
			s.metrics.PublishErrorsTotal.Inc()
		}
		return fmt.Errorf("%w: publish start: %v", ErrTechnicalError, err)
	}

	if err := s.store.UpdateActiveHardwareType(ctx, sessionID, &hardware); err != nil {
		s.recordError("technical_error")
		return fmt.Errorf("%w: update active hardware type: %v", ErrTechnicalError, err)
	}

	if err := s.store.UpdateStatus(ctx, cmd.UUID, domain.Running(s.now())); err != nil {
		s.recordError("technical_error")
		return fmt.Errorf("%w: update status to running: %v", ErrTechnicalError, err)
	}

	if s.metrics != nil {
		s.metrics.CommandsActivatedTotal.WithLabelValues(hardware.String()).Inc()
	}

	s.log.Info("command activated",
		zap.String("session_id", sessionID.String()),
		zap.String("command_uuid", cmd.UUID.String()),
		zap.String("hardware", hardware.String()),
		zap.Float64("value", cmd.TemperatureData.Value))
	return nil
}

// advance implements the "R is non-empty" branch of the §4.2 state
// machine: check whether the target has been reached and, if so, whether
// the hold duration has elapsed.
func (s *Service) advance(ctx context.Context, sessionID uuid.UUID, running domain.Command, temperature float64) error {
	hardware, err := s.store.FetchActiveHardwareType(ctx, sessionID)
	if err != nil {
		s.recordError("technical_error")
		return fmt.Errorf("%w: fetch active hardware type: %v", ErrTechnicalError, err)
	}
	if hardware == nil {
		// I3 breach: a Running command exists but no active hardware is
		// recorded. Transient — log and let the next tracking event retry.
		s.recordError("not_found")
		return fmt.Errorf("%w: active hardware id for session %s", ErrNotFound, sessionID)
	}

	if !running.Reached(*hardware, temperature) {
		s.log.Debug("target not yet reached",
			zap.String("session_id", sessionID.String()),
			zap.String("command_uuid", running.UUID.String()),
			zap.Float64("temperature", temperature),
			zap.Float64("target", running.TemperatureData.Value))
		return nil
	}

	reachedAt := running.TemperatureData.ValueReachedAt
	if reachedAt == nil {
		now := s.now()
		if err := s.store.UpdateValueReachedAt(ctx, running.UUID, now); err != nil {
			s.recordError("technical_error")
			return fmt.Errorf("%w: update value reached at: %v", ErrTechnicalError, err)
		}
		reachedAt = &now
	}

	if s.now().Before(reachedAt.Add(running.TemperatureData.ValueHoldingDuration)) {
		// Reached, but not held long enough yet.
		return nil
	}

	return s.stopAll(ctx, sessionID, running)
}

// stopAll implements STOP_ALL(session, R) from spec §4.2.
func (s *Service) stopAll(ctx context.Context, sessionID uuid.UUID, running domain.Command) error {
	heatingID, err := s.store.FetchHardwareID(ctx, sessionID, domain.HardwareHeating)
	if err != nil {
		s.recordError("technical_error")
		return fmt.Errorf("%w: fetch heating hardware id: %v", ErrTechnicalError, err)
	}
	coolingID, err := s.store.FetchHardwareID(ctx, sessionID, domain.HardwareCooling)
	if err != nil {
		s.recordError("technical_error")
		return fmt.Errorf("%w: fetch cooling hardware id: %v", ErrTechnicalError, err)
	}

	if err := s.publisher.Publish(ctx, domain.Stop(heatingID)); err != nil {
		s.recordError("technical_error")
		if s.metrics != nil {
			s.metrics.PublishErrorsTotal.Inc()
		}
		return fmt.Errorf("%w: publish stop heating: %v", ErrTechnicalError, err)
	}
	if err := s.publisher.Publish(ctx, domain.Stop(coolingID)); err != nil {
		s.recordError("technical_error")
		if s.metrics != nil {
			s.metrics.PublishErrorsTotal.Inc()
		}
		return fmt.Errorf("%w: publish stop cooling: %v", ErrTechnicalError, err)
	}

	if err := s.store.UpdateActiveHardwareType(ctx, sessionID, nil); err != nil {
		s.recordError("technical_error")
		return fmt.Errorf("%w: clear active hardware type: %v", ErrTechnicalError, err)
	}
	if err := s.store.UpdateStatus(ctx, running.UUID, domain.Executed(s.now())); err != nil {
		s.recordError("technical_error")
		return fmt.Errorf("%w: update status to executed: %v", ErrTechnicalError, err)
	}

	if s.metrics != nil {
		s.metrics.CommandsExecutedTotal.Inc()
	}

	s.log.Info("command executed, hardware stopped",
		zap.String("session_id", sessionID.String()),
		zap.String("command_uuid", running.UUID.String()))
	return nil
}
