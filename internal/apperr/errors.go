// Package apperr holds the sentinel errors shared across Lectern packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation marks user input that was rejected (empty title, bad scores).
	ErrValidation = errors.New("validation failed")
	// ErrPermission marks a capture device that refused or is unavailable.
	ErrPermission        = errors.New("permission denied")
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidState marks an operation that is not a legal transition
	// from the current recording or job state.
	ErrInvalidState = errors.New("invalid state")
	ErrExport       = errors.New("export failed")
)
