package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist. Soft-deleted
	// records are reported distinctly: lookups return them with their
	// Deleted flag set rather than this error, unless the lookup excludes
	// deleted records by contract.
	ErrNotFound = errors.New("record not found")
)
