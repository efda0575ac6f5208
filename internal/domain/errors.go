package domain

import "errors"

var (
	// ErrValidation marks caller input that fails domain validation.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups for jobs or results that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks operations that clash with the current job state.
	ErrConflict = errors.New("conflict")
)
