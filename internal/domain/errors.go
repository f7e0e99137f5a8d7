package domain

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid input")
	ErrConflict  = errors.New("conflict")
	// ErrUnauthenticated is returned when no principal is attached to a request.
	ErrUnauthenticated = errors.New("unauthenticated")
)
