package executor

import "errors"

// Sentinel errors for the Executor's state machine (spec §4.2, §7).
var (
	// ErrNotFound signals an I3 invariant breach: a Running command
	// exists but the session's active hardware id could not be read.
	// Treated as a transient inconsistency by callers — log and retry
	// on the next tracking event.
	ErrNotFound = errors.New("not found")

	// ErrStatusError is returned when ACTIVATE is attempted on a command
	// that is not Planned. Permanent for the triggering message.
	ErrStatusError = errors.New("status error")

	// ErrTechnicalError wraps a store or publisher failure. The current
	// processing step aborts without advancing state; the next tracking
	// event naturally retries because R is unchanged.
	ErrTechnicalError = errors.New("technical error")
)
