package farm

import "errors"

var (
	// ErrFarmNotFound is returned when no farm with the id exists for the owner.
	ErrFarmNotFound = errors.New("farm: not found")

	// ErrFarmHasDevices is returned when deleting a farm that still has devices.
	ErrFarmHasDevices = errors.New("farm: has devices, move or delete them first")

	// ErrInvalidFarm wraps every validation failure.
	ErrInvalidFarm = errors.New("farm: invalid")
)
