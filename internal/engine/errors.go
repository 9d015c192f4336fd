package engine

import "fmt"

// InvalidTransitionError rejects an operation that would break a lifecycle
// invariant. No state is changed.
type InvalidTransitionError struct {
	Entity string
	ID     string
	Reason string
}

func (e InvalidTransitionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid %s transition: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("invalid %s transition for %s: %s", e.Entity, e.ID, e.Reason)
}

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return ValidationError{Field: field, Reason: reason}
}
