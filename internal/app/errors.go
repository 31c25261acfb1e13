package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("activity store unavailable")
	ErrNoOpenBlocker    = errors.New("no open blocker")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidSnapshot  = errors.New("invalid snapshot")
)
