package farm

import (
	"fmt"
	"math"
	"strings"
)

const (
	maxNameLength        = 100
	maxLocationLength    = 200
	maxDescriptionLength = 1024
)

// Validate checks a farm before it is written.
func Validate(f *Farm) error {
	if strings.TrimSpace(f.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidFarm)
	}

	name := strings.TrimSpace(f.Name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidFarm)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidFarm, maxNameLength)
	}
	if len(f.Location) > maxLocationLength {
		return fmt.Errorf("%w: location exceeds %d characters", ErrInvalidFarm, maxLocationLength)
	}
	if len(f.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidFarm, maxDescriptionLength)
	}

	if err := checkRange("latitude", f.Latitude, -90, 90); err != nil {
		return err
	}
	if err := checkRange("longitude", f.Longitude, -180, 180); err != nil {
		return err
	}
	if err := checkRange("area_ha", f.AreaHa, 0, math.MaxFloat64); err != nil {
		return err
	}
	return nil
}

func checkRange(field string, v *float64, lo, hi float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v < lo || *v > hi {
		return fmt.Errorf("%w: %s out of range", ErrInvalidFarm, field)
	}
	return nil
}
