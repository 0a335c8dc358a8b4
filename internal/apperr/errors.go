// Package apperr holds the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrUnsupportedFormat marks a file whose extension has no loader.
	// The watcher drops such events without further action.
	ErrUnsupportedFormat = errors.New("unsupported format")

	ErrExtraction = errors.New("metadata extraction failed")
	ErrStorage    = errors.New("index storage failed")
	ErrGeneration = errors.New("generation failed")
)
