package camera

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// ProcessedTimeLayout renders Result.ProcessedTime, e.g. "02 March 2026, 14:05:09".
const ProcessedTimeLayout = "02 January 2006, 15:04:05"

const (
	maxLocationLength = 200
	maxFilenameLength = 255
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Camera is one traffic camera.
type Camera struct {
	ID           string    `json:"camera_id"`
	LocationName string    `json:"location_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// Result is one batch of traffic analytics for a camera.
type Result struct {
	ID              string    `json:"id"`
	CameraID        string    `json:"camera_id"`
	TotalCar        int       `json:"total_car"`
	TotalMotorcycle int       `json:"total_motorcycle"`
	TotalBus        int       `json:"total_bus"`
	TotalTruck      int       `json:"total_truck"`
	AverageSpeed    float64   `json:"average_speed"`
	FilenameResult  string    `json:"filename_result,omitempty"`
	ProcessedAt     time.Time `json:"processed_at"`

	// ProcessedTime is ProcessedAt in ProcessedTimeLayout, UTC.
	ProcessedTime string `json:"processed_time"`
}

// ValidateCamera checks a camera before it is stored.
func ValidateCamera(c *Camera) error {
	if !idPattern.MatchString(c.ID) {
		return fmt.Errorf("%w: camera_id must be 1-64 letters, digits, '-' or '_'", ErrInvalidCamera)
	}
	name := strings.TrimSpace(c.LocationName)
	if name == "" {
		return fmt.Errorf("%w: location_name is required", ErrInvalidCamera)
	}
	if len(name) > maxLocationLength {
		return fmt.Errorf("%w: location_name exceeds %d characters", ErrInvalidCamera, maxLocationLength)
	}
	return nil
}

// ValidateResult checks a result before it is stored.
func ValidateResult(r *Result) error {
	for name, n := range map[string]int{
		"total_car":        r.TotalCar,
		"total_motorcycle": r.TotalMotorcycle,
		"total_bus":        r.TotalBus,
		"total_truck":      r.TotalTruck,
	} {
		if n < 0 {
			return fmt.Errorf("%w: %s cannot be negative", ErrInvalidCamera, name)
		}
	}
	if math.IsNaN(r.AverageSpeed) || math.IsInf(r.AverageSpeed, 0) || r.AverageSpeed < 0 {
		return fmt.Errorf("%w: average_speed must be a non-negative number", ErrInvalidCamera)
	}
	if len(r.FilenameResult) > maxFilenameLength || strings.ContainsAny(r.FilenameResult, "\x00") {
		return fmt.Errorf("%w: invalid filename_result", ErrInvalidCamera)
	}
	return nil
}
