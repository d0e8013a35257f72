package device

import "errors"

// Domain errors for the device package. Check with errors.Is.
var (
	// ErrDeviceNotFound is returned when a device id does not exist, or
	// belongs to a different owner.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with a taken id.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidType is returned for a type other than sensor or actuator.
	ErrInvalidType = errors.New("device: invalid type")

	// ErrInvalidTopic is returned for an unusable command topic.
	ErrInvalidTopic = errors.New("device: invalid topic")
)
