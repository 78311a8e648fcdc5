// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., reminder already recorded).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation")

	// ErrDerived indicates a user edit that would move a system-managed event.
	ErrDerived = errors.New("derived event is managed by the system")

	// ErrLocked indicates a client is temporarily locked out after repeated bad secrets.
	ErrLocked = errors.New("too many failed attempts")
)
