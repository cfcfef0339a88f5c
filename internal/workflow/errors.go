package workflow

import (
	"errors"
	"fmt"
)

// Engine error classes. Every engine operation returns exactly one of these
// (possibly wrapped); the handler layer maps them to HTTP statuses. None of
// them is fatal to the process — the engine keeps serving other visits after
// any single-visit failure.
var (
	// ErrInvalidTransition: the command is not legal from the visit's
	// current stage. Usually means the calling station holds a stale view
	// and should re-read the registry.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrAlreadyFilled: a fill attempt hit a line another station filled
	// first.
	ErrAlreadyFilled = errors.New("prescription line already filled")

	// ErrAlreadyCompleted: a terminal per-entity operation was repeated.
	ErrAlreadyCompleted = errors.New("already completed")

	// ErrNotFound: unknown visit, patient, lab order, or line id.
	ErrNotFound = errors.New("not found")

	// ErrStorage: the durable store is unavailable. The transition was not
	// applied; callers retry with backoff.
	ErrStorage = errors.New("storage unavailable")
)

// ValidationError reports malformed or missing input, surfaced to the calling
// station for correction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func validationf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// invalidTransition annotates ErrInvalidTransition with the offending stages.
func invalidTransition(from, attempted string) error {
	return fmt.Errorf("%w: %s from stage %s", ErrInvalidTransition, attempted, from)
}
