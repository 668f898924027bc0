package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers operations on notifications or subscriptions the
	// caller cannot see (including rows that simply do not exist).
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized covers missing, malformed or expired credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError rejects malformed input before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// TransportError is a failed push delivery attempt. Permanent means the
// endpoint is gone and its subscription should be removed; anything else is
// transient and the next notification is the retry vehicle.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *TransportError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s push failure for %s: %v", kind, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s push failure for %s: status %d", kind, e.Endpoint, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }
