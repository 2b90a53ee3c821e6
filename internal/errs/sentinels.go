// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., plan id reused).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidTime indicates a malformed time of day ("HH:MM" / "HH:MM:SS").
	ErrInvalidTime = errors.New("invalid time of day")

	// ErrInvalidWeekday indicates a weekday outside 0 (Sunday) .. 6 (Saturday).
	ErrInvalidWeekday = errors.New("invalid weekday")

	// ErrValidation indicates a request rejected by service-level validation.
	ErrValidation = errors.New("validation")
)
