package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"fermentctl/internal/domain"
)

// Limits bounds schedule validation with the fermentation-model constants
// from config (min_ramp_rate, max_steps_per_schedule) — enforced here
// rather than left as decorative config knobs.
type Limits struct {
	// MinRampRate is the smallest rate.value a ramp step may carry. A
	// rate below this (including the zero value the wire format can't
	// rule out on its own) would make rampSteps divide by a
	// near-zero/non-positive rate and silently produce a corrupt plan.
	MinRampRate int

	// MaxSteps caps the number of fermentation steps accepted per
	// schedule, bounding expansion size. Zero means unbounded.
	MaxSteps int
}

// validate checks schedule steps in the order mandated by spec §4.1:
// non-empty, no more than limits.MaxSteps, no rate on position 0, every
// rate.value >= limits.MinRampRate, positions form the exact set
// {0..N-1}. The caller checks hardware presence separately, since that
// requires the schedule message's Hardwares list.
func validate(steps []domain.FermentationStep, limits Limits) error {
	if len(steps) == 0 {
		return ErrNoFermentationStep
	}
	if limits.MaxSteps > 0 && len(steps) > limits.MaxSteps {
		return fmt.Errorf("%w: %d steps exceeds max_steps_per_schedule %d", ErrInvalidStepConfiguration, len(steps), limits.MaxSteps)
	}

	// rate.value must be a positive integer regardless of configured
	// limits — rampSteps divides by it, and a zero or negative rate
	// would silently expand to zero commands instead of erroring.
	minRate := limits.MinRampRate
	if minRate < 1 {
		minRate = 1
	}

	for _, s := range steps {
		if s.Position == 0 && s.Rate != nil {
			return fmt.Errorf("%w: position 0 must not have a rate", ErrInvalidStepConfiguration)
		}
	}
	for _, s := range steps {
		if s.Rate != nil && s.Rate.Value < minRate {
			return fmt.Errorf("%w: position %d rate value %d below minimum %d", ErrInvalidStepConfiguration, s.Position, s.Rate.Value, minRate)
		}
	}

	byPosition := make(map[int]domain.FermentationStep, len(steps))
	for _, s := range steps {
		if _, dup := byPosition[s.Position]; dup {
			return fmt.Errorf("%w: duplicate position %d", ErrInvalidStepConfiguration, s.Position)
		}
		byPosition[s.Position] = s
	}

	for p := 0; p < len(steps); p++ {
		if _, ok := byPosition[p]; !ok {
			return fmt.Errorf("%w: positions must form {0..%d} exactly, missing %d", ErrInvalidStepConfiguration, len(steps)-1, p)
		}
	}

	return nil
}

// expand turns a validated step list into the ordered NewCommand list
// described by spec §4.1's expansion algorithm: one command per
// rate-less step, or a ceil(delta/rate)-sized ramp of atomic commands
// with the last one clamped exactly to the step's target temperature.
func expand(sessionID uuid.UUID, steps []domain.FermentationStep) ([]domain.NewCommand, error) {
	byPosition := make(map[int]domain.FermentationStep, len(steps))
	for _, s := range steps {
		byPosition[s.Position] = s
	}

	var commands []domain.NewCommand
	for _, s := range steps {
		if s.Rate == nil {
			commands = append(commands, newCommand(sessionID, s.Position, s.TargetTemperature, s.Duration))
			continue
		}

		prev, ok := byPosition[s.Position-1]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrInvalidStepConfiguration, s.Position-1)
		}

		// A step is never dropped for want of a ramp: even a rate step
		// whose target equals the previous step's target still emits one
		// command (delta=0 -> ceil(0/rate)=0, floored to 1 here).
		n := rampSteps(prev.TargetTemperature, s.TargetTemperature, s.Rate.Value)
		if n < 1 {
			n = 1
		}
		ascending := s.TargetTemperature > prev.TargetTemperature
		for k := 0; k < n; k++ {
			delta := float64(k+1) * float64(s.Rate.Value)
			value := prev.TargetTemperature + delta
			if !ascending {
				value = prev.TargetTemperature - delta
			}
			if k == n-1 {
				// Clamp the final tick so it equals the step's target
				// exactly, even though ceil() may have overshot it.
				value = s.TargetTemperature
			}
			commands = append(commands, newCommand(sessionID, s.Position, value, s.Rate.Duration))
		}
	}
	return commands, nil
}

// rampSteps returns ceil(|prev-next| / rate), the number of atomic
// commands a ramp step expands into.
func rampSteps(prevTemp, nextTemp float64, rate int) int {
	delta := math.Abs(prevTemp - nextTemp)
	return int(math.Ceil(delta / float64(rate)))
}

func newCommand(sessionID uuid.UUID, position int, value float64, holding time.Duration) domain.NewCommand {
	return domain.NewCommand{
		ID: uuid.New(),
		SessionData: domain.SessionData{
			SessionID:    sessionID,
			StepPosition: position,
		},
		Status:               domain.Planned(),
		Value:                value,
		ValueHoldingDuration: holding,
	}
}
