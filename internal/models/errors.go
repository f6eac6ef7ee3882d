package models

import "errors"

var (
	// ErrInvalidMeasurement is returned when a reading has no positive
	// temperature, or when a group's recomputed temperature mean is not positive.
	ErrInvalidMeasurement = errors.New("invalid measurement")

	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a station is already a member of another group.
	ErrConflict = errors.New("conflict")

	// ErrTransactionAborted is returned when the transaction itself could not be
	// started or committed, or its deadline expired.
	ErrTransactionAborted = errors.New("transaction aborted")
)
