package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"fermentctl/internal/domain"
	"fermentctl/internal/observability"
	"fermentctl/internal/port"
)

// Service implements the Scheduler driver port (spec §4.1): validate a
// schedule, expand it into atomic set-point commands, and insert the
// session and its commands as one logical batch.
type Service struct {
	store   port.CommandStore
	log     *zap.Logger
	metrics *observability.Metrics
	limits  Limits
}

// New builds a Scheduler Service over the given command store. metrics may
// be nil, in which case no counters are recorded. limits.MaxSteps <= 0
// means that bound is unenforced; limits.MinRampRate below 1 is raised to 1.
func New(store port.CommandStore, log *zap.Logger, metrics *observability.Metrics, limits Limits) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, metrics: metrics, limits: limits}
}

// Schedule validates data, expands its steps into commands, and persists
// the session and commands atomically. Returns the number of command rows
// inserted.
func (s *Service) Schedule(ctx context.Context, data domain.ScheduleMessageData) (int, error) {
	if err := validate(data.Steps, s.limits); err != nil {
		s.rejected("invalid_step_configuration")
		return 0, err
	}

	heating, ok := data.HardwareOfType(domain.HardwareHeating)
	if !ok {
		s.rejected("not_found")
		return 0, fmt.Errorf("%w: heating hardware", ErrNotFound)
	}
	cooling, ok := data.HardwareOfType(domain.HardwareCooling)
	if !ok {
		s.rejected("not_found")
		return 0, fmt.Errorf("%w: cooling hardware", ErrNotFound)
	}

	commands, err := expand(data.SessionID, data.Steps)
	if err != nil {
		s.rejected("invalid_step_configuration")
		return 0, err
	}

	count, err := s.store.Insert(ctx, data.SessionID, heating, cooling, commands)
	if err != nil {
		s.rejected("technical_error")
		s.log.Error("schedule insert failed",
			zap.String("session_id", data.SessionID.String()),
			zap.Error(err))
		return 0, fmt.Errorf("%w: %v", ErrTechnicalError, err)
	}

	if s.metrics != nil {
		s.metrics.SchedulesAcceptedTotal.Inc()
		s.metrics.CommandsExpandedTotal.Add(float64(count))
	}

	s.log.Info("schedule expanded and persisted",
		zap.String("session_id", data.SessionID.String()),
		zap.Int("steps", len(data.Steps)),
		zap.Int("commands", count))
	return count, nil
}

// rejected increments SchedulesRejectedTotal by reason, if metrics are wired.
func (s *Service) rejected(reason string) {
	if s.metrics != nil {
		s.metrics.SchedulesRejectedTotal.WithLabelValues(reason).Inc()
	}
}
