package reading

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// History limits for list queries.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// DayLayout is the format of the daily history filter.
const DayLayout = "2006-01-02"

// Reading is one sample reported by a sensor device.
type Reading struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	OwnerID     string    `json:"owner_id"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Moisture    *float64  `json:"moisture,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Validate checks a reading before it is stored. Absent measurements are
// allowed; present ones must be finite.
func Validate(r *Reading) error {
	if strings.TrimSpace(r.DeviceID) == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidReading)
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidReading)
	}
	for name, v := range map[string]*float64{
		"temperature": r.Temperature,
		"humidity":    r.Humidity,
		"moisture":    r.Moisture,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%w: %s must be a finite number", ErrInvalidReading, name)
		}
	}
	return nil
}

// ClampLimit maps a requested page size onto [1, MaxLimit], using
// DefaultLimit for zero or negative requests.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// ParseDay parses a YYYY-MM-DD filter as a UTC day.
func ParseDay(s string) (time.Time, error) {
	day, err := time.ParseInLocation(DayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return day, nil
}

// GenerateID returns a new reading id.
func GenerateID() string {
	return "rdg-" + uuid.NewString()
}
