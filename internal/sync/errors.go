package sync

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or insufficient input. It is raised
// before any external call and never retried; the message is surfaced
// verbatim to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation: %s", e.Reason)
}

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvariantViolation reports a request that would break a quantity or
// identity guarantee, such as packaging more plants than a batch holds. It is
// rejected before any external I/O and never retried.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Reason)
}

func invariantf(format string, args ...any) error {
	return &InvariantViolation{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvariantViolation reports whether err is an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

// ErrSyncInProgress is returned when a create-or-link caller loses the
// status race and the winner's outcome does not resolve within the bounded
// wait.
var ErrSyncInProgress = errors.New("sync already in progress for this entity")
