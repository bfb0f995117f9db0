package ledger

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the five-way classification of external ledger call outcomes.
// Callers never see raw HTTP status codes, only this classification.
type ErrorKind string

const (
	// KindValidation covers 4xx responses other than auth, rate limit and
	// conflict. Never retried; the ledger's message is surfaced verbatim.
	KindValidation ErrorKind = "validation"

	// KindAuth covers 401/403. Never retried; the orchestrator disables
	// sync for the site until an operator fixes the credentials.
	KindAuth ErrorKind = "auth"

	// KindRateLimited covers 429. Retried with exponential backoff up to a
	// bounded number of attempts.
	KindRateLimited ErrorKind = "rate_limited"

	// KindTransient covers 5xx, timeouts and connection resets. Retried the
	// same way as rate-limited.
	KindTransient ErrorKind = "transient"

	// KindConflict means the ledger reports the resource already exists.
	// Not a failure: it signals the caller to switch from create to link.
	KindConflict ErrorKind = "conflict"
)

// Error is the classified result of a failed external ledger call.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ledger: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ledger: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the adapter may retry the call transparently.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// classifyStatus maps an HTTP status code to an ErrorKind.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusConflict:
		return KindConflict
	case code >= 400 && code < 500:
		return KindValidation
	default:
		return KindTransient
	}
}

// KindOf returns the classification of err, or KindTransient when err is not
// a ledger error (treated as an unknown transport failure).
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindTransient
}

// IsConflict reports whether err is classified as a conflict.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsAuth reports whether err is classified as an auth failure.
func IsAuth(err error) bool {
	var le *Error
	return errors.As(err, &le) && le.Kind == KindAuth
}
