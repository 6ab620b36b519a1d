package learning

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the caller identity is missing or
// malformed. It is checked before any domain logic runs.
var ErrUnauthorized = errors.New("unauthorized")

// ValidationError reports malformed or missing input. Nothing was mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced entity that does not exist or is not
// visible to learners.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ConflictError reports an idempotency key replayed with a different answer
// set than the one it was first used with.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("idempotency key %q was already used with different answers", e.Key)
}
