// Package apperr defines the error taxonomy shared by services and handlers.
// Services return these typed errors; the HTTP layer maps them to status codes.
package apperr

import "fmt"

// ValidationError reports bad input to a creation or transition call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// InvalidStateError reports a transition that is not legal from the current status.
type InvalidStateError struct {
	Entity    string
	Current   string
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: cannot move from %s to %s", e.Entity, e.Current, e.Attempted)
}

// AlreadyClaimedError is returned to the losing sitter of an accept race.
type AlreadyClaimedError struct {
	SessionID string
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("session %s is no longer available", e.SessionID)
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// PermissionDeniedError reports a denied device capability (location, microphone).
type PermissionDeniedError struct {
	Capability string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("%s permission denied", e.Capability)
}

// TransportError wraps a store or bus failure. Transition callers may retry it
// with backoff; monitoring loops log it and continue.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ClassificationError wraps a failed distress-classification call. The detection
// cycle treats it as "no detection" rather than raising a spurious alert.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }
