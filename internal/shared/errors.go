package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks bad input; always recoverable.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState marks an operation that the current state forbids.
	ErrInvalidState = errors.New("invalid state")
	// ErrRemote marks a failed or timed out call to the ledger service.
	ErrRemote = errors.New("remote ledger call failed")
)

// ValidationError carries every problem found in one input so callers can
// render them together.
type ValidationError struct {
	Problems []string
}

// NewValidationError returns nil when there are no problems.
func NewValidationError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// Is lets errors.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Problems collects validation messages in order.
type Problems []string

// Addf appends a formatted problem.
func (p *Problems) Addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Err converts the collected problems into a ValidationError, or nil.
func (p Problems) Err() error {
	return NewValidationError(p)
}

// StateError explains why an operation is not allowed in the current state.
type StateError struct {
	Op     string
	State  string
	Reason string
}

func (e *StateError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s (state %s)", e.Op, e.Reason, e.State)
}

// Is lets errors.Is match ErrInvalidState.
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// RemoteFailure wraps a failed ledger service call. Prior local state must be
// left untouched by whoever receives it.
type RemoteFailure struct {
	Op      string
	Timeout bool
	Status  int
	Err     error
}

func (e *RemoteFailure) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: ledger service timed out", e.Op)
	case e.Status != 0:
		return fmt.Sprintf("%s: ledger service returned status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": ledger service call failed"
	}
}

func (e *RemoteFailure) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrRemote.
func (e *RemoteFailure) Is(target error) bool {
	return target == ErrRemote
}

// UserSafeMessage returns the message shown to an operator. Validation and
// state errors keep their specific reason; anything else is generic.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return strings.Join(verr.Problems, "; ")
	}
	var serr *StateError
	if errors.As(err, &serr) {
		return serr.Reason
	}
	var rerr *RemoteFailure
	if errors.As(err, &rerr) {
		if rerr.Timeout {
			return "The ledger service did not respond in time. Nothing was changed; try again."
		}
		return "The ledger service is unavailable. Nothing was changed; try again."
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrIdempotencyConflict):
		return "This request was already submitted."
	case errors.Is(err, ErrLockHeld):
		return "Another request for this record is still in progress."
	}
	return "Something went wrong. Please try again."
}
