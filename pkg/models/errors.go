package models

import "errors"

var (
	// ErrInvalidInput reports malformed arguments: empty or too-short sample
	// sequences, non-positive window size or fan-out, mismatched list lengths.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound reports a song or fingerprint that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoMatch is used by front ends to report a query with zero database hits.
	ErrNoMatch = errors.New("no match found")

	// ErrPersist reports that a mutation was applied in memory but the
	// automatic save afterwards failed. The returned song id is valid.
	ErrPersist = errors.New("database not persisted")

	// ErrCorruptSnapshot reports persisted data that fails validation.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)
