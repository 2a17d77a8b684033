package scheduler

import "errors"

// Sentinel errors for the Scheduler's validation and expansion path
// (spec §4.1, §7). Wrap with fmt.Errorf("...: %w", ErrX) to attach detail
// while staying errors.Is-matchable.
var (
	// ErrNoFermentationStep is returned when the schedule has no steps.
	ErrNoFermentationStep = errors.New("no fermentation step")

	// ErrInvalidStepConfiguration is returned when positions don't form a
	// bijection over {0..N-1}, the first step carries a rate, a rate value
	// is below the minimum, or the schedule has more steps than allowed.
	ErrInvalidStepConfiguration = errors.New("invalid step configuration")

	// ErrNotFound is returned when a required hardware entry is missing.
	ErrNotFound = errors.New("not found")

	// ErrTechnicalError wraps a store failure.
	ErrTechnicalError = errors.New("technical error")
)
