package ingest

import "errors"

var (
	// ErrDeviceNotFound is returned when the reading's device does not
	// resolve. Nothing is persisted.
	ErrDeviceNotFound = errors.New("ingest: device not found")

	// ErrInvalidReading is returned for a malformed reading.
	ErrInvalidReading = errors.New("ingest: invalid reading")

	// ErrPersistence is returned when the reading or a triggered action
	// cannot be stored.
	ErrPersistence = errors.New("ingest: persistence failed")

	// ErrRuleStore is returned when the rule store cannot be read. The
	// reading has already been stored.
	ErrRuleStore = errors.New("ingest: rule store unavailable")
)
