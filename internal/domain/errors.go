package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAdapterCall          = errors.New("call control adapter call failed")
	ErrUnknownPresence      = errors.New("presence has no mapping")
	ErrMalformedContact     = errors.New("malformed contact")
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrScenarioNotFound     = errors.New("scenario not found")
	ErrNoAgent              = errors.New("agent not subscribed yet")
	ErrContactNotFound      = errors.New("contact not found")
)

// TransitionError reports a reducer transition that could not be applied.
type TransitionError struct {
	Action ActionType
	ID     string
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s for %q: %v", e.Action, e.ID, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// AdapterError wraps a failed call-platform or channel-hub invocation with the
// operation name and the contact it concerned.
type AdapterError struct {
	Op        string
	ContactID string
	Err       error
}

func (e *AdapterError) Error() string {
	if e.ContactID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s (contact %s): %v", e.Op, e.ContactID, e.Err)
}

func (e *AdapterError) Unwrap() []error {
	return []error{ErrAdapterCall, e.Err}
}

// Malformed returns an error wrapping ErrMalformedContact with detail.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedContact, fmt.Sprintf(format, args...))
}
