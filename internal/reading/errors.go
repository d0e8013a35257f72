package reading

import "errors"

var (
	// ErrInvalidReading is returned when a reading fails validation.
	ErrInvalidReading = errors.New("reading: invalid")

	// ErrInvalidDate is returned for a day filter that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("reading: invalid date, want YYYY-MM-DD")
)
