package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDataIntegrity is returned for identifier collisions with differing
	// content and for references to records that do not exist.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrConcurrencyConflict is returned when a conditional cache write
	// loses a race with another writer.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrUnsupportedMimeType is returned for attachment types that cannot be
	// served.
	ErrUnsupportedMimeType = errors.New("unsupported attachment mime type")
)
