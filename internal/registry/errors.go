package registry

import "errors"

// The registry surfaces a closed set of error kinds. Every mutating call
// either applies completely or fails with one of these; nothing is retried
// internally. The HTTP layer maps them to status codes.
var (
	// ErrInvalidInput covers empty identifiers and zero-valued hashes.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyRegistered is returned when a patient identifier was ever
	// registered before, active or not.
	ErrAlreadyRegistered = errors.New("patient already registered")

	// ErrUnknownPatient is returned when an operation references a patient
	// identifier that is not registered, or requires an active patient and
	// the patient has been deactivated.
	ErrUnknownPatient = errors.New("unknown patient")

	// ErrNotAuthorized is returned when the caller lacks the role or
	// per-patient authorization edge an operation requires.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrDuplicateRecord is returned when a record hash already exists in
	// the ledger, regardless of which patient it belongs to.
	ErrDuplicateRecord = errors.New("duplicate record hash")

	// ErrLastAdmin is returned when a role revocation would leave the
	// system with zero administrators.
	ErrLastAdmin = errors.New("cannot revoke the last administrator")

	// ErrSystemPaused is returned by every mutating operation while the
	// circuit breaker is engaged. It is checked before any other guard.
	ErrSystemPaused = errors.New("system paused")
)
