package store

import "errors"

var (
	// ErrNotFound indicates an unknown article or feedback id.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a malformed mutation payload or an
	// unrecognized recommendation action.
	ErrValidation = errors.New("validation failed")
)
