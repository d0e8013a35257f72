package device

import "time"

// Type classifies what a device does.
type Type string

const (
	// TypeSensor reports temperature, humidity and moisture readings.
	TypeSensor Type = "sensor"

	// TypeActuator accepts commands (pumps, valves, sprinklers).
	TypeActuator Type = "actuator"
)

// Valid reports whether t is a known device type.
func (t Type) Valid() bool {
	switch t {
	case TypeSensor, TypeActuator:
		return true
	default:
		return false
	}
}

// StatusOff is the status of a device that has never been commanded.
const StatusOff = "off"

// Device is one registered sensor or actuator.
type Device struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	FarmID      *string `json:"farm_id,omitempty"`
	Name        string  `json:"name"`
	Type        Type    `json:"type"`
	Description string  `json:"description,omitempty"`

	// Topic is where commands for this device are published. It is used
	// verbatim as the MQTT topic.
	Topic string `json:"topic"`

	// Status is the last command issued to the device.
	Status          string     `json:"status"`
	StatusUpdatedAt *time.Time `json:"status_updated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy safe to hand out of the cache.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.FarmID != nil {
		farm := *d.FarmID
		cpy.FarmID = &farm
	}
	if d.StatusUpdatedAt != nil {
		at := *d.StatusUpdatedAt
		cpy.StatusUpdatedAt = &at
	}
	return &cpy
}

// Filter narrows ListDevices. Zero fields match everything.
type Filter struct {
	FarmID string
	Type   Type
}

func (f Filter) matches(d *Device) bool {
	if f.FarmID != "" && (d.FarmID == nil || *d.FarmID != f.FarmID) {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	return true
}
