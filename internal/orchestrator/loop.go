// Package orchestrator runs the event loop described in spec §5: pull
// envelopes from Ingress, decode them, route Schedule messages to the
// Scheduler and Tracking messages to the Executor, and unconditionally
// acknowledge once the service call returns — regardless of outcome,
// matching the error taxonomy in spec §7.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fermentctl/internal/domain"
	"fermentctl/internal/observability"
	"fermentctl/internal/port"
)

// Scheduler is the subset of scheduler.Service the loop depends on.
type Scheduler interface {
	Schedule(ctx context.Context, data domain.ScheduleMessageData) (int, error)
}

// Executor is the subset of executor.Service the loop depends on.
type Executor interface {
	Process(ctx context.Context, tracking domain.TrackingMessageData) error
}

// Loop pulls from an Ingress and dispatches to a Scheduler and Executor.
type Loop struct {
	ingress   port.Ingress
	scheduler Scheduler
	executor  Executor
	log       *zap.Logger
	metrics   *observability.Metrics

	// idleBackoff bounds how long Run sleeps after an empty Fetch, so an
	// idle stream doesn't spin the loop.
	idleBackoff time.Duration
}

// New builds a Loop. log defaults to zap.NewNop() if nil; metrics may be
// nil, in which case no counters are recorded.
func New(ingress port.Ingress, scheduler Scheduler, executor Executor, log *zap.Logger, metrics *observability.Metrics) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{ingress: ingress, scheduler: scheduler, executor: executor, log: log, metrics: metrics, idleBackoff: 200 * time.Millisecond}
}

// Run pulls and dispatches events until ctx is cancelled, then returns nil.
// It never returns an error: individual message failures are logged per
// spec §7's error taxonomy, and a Fetch failure is logged and the loop
// fetches again.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		events, err := l.ingress.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			l.log.Error("ingress fetch failed", zap.Error(err))
			continue
		}

		if len(events) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.idleBackoff):
			}
			continue
		}

		for _, event := range events {
			l.dispatch(ctx, event)
		}
	}
}

// dispatch decodes and routes one inbound event, then acknowledges it
// unconditionally — ack-after-service-call is the rule for every error
// class in spec §7 (permanent errors are logged and acked; technical
// errors abort the current step but still ack, relying on re-delivery of
// a later, unchanged tracking event to retry).
func (l *Loop) dispatch(ctx context.Context, event port.InboundEvent) {
	defer func() {
		if err := event.Ack(); err != nil {
			l.log.Warn("ack failed", zap.Error(err))
		}
	}()

	msg, err := l.ingress.Decode(event.Payload)
	if err != nil {
		if l.metrics != nil {
			l.metrics.MessagesDecodeErrorsTotal.Inc()
		}
		l.log.Warn("decode failed, message dropped", zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case domain.ScheduleMessageData:
		l.countReceived(string(domain.MessageSchedule))
		if _, err := l.scheduler.Schedule(ctx, m); err != nil {
			l.log.Error("schedule failed",
				zap.String("session_id", m.SessionID.String()),
				zap.Error(err))
		}
	case domain.TrackingMessageData:
		l.countReceived(string(domain.MessageTracking))
		if err := l.executor.Process(ctx, m); err != nil {
			l.log.Error("tracking processing failed",
				zap.String("session_id", m.SessionID.String()),
				zap.Error(err))
		}
	default:
		l.log.Warn("unhandled message kind", zap.String("kind", string(msg.Kind())))
	}
}

func (l *Loop) countReceived(kind string) {
	if l.metrics != nil {
		l.metrics.MessagesReceivedTotal.WithLabelValues(kind).Inc()
	}
}
