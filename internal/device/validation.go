package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 1024
	maxTopicLength       = 256
	maxStatusLength      = 64
	maxIDLength          = 64
)

// ValidateDevice checks a device before it is written.
//
// Actuators must have a command topic. Sensors may leave it empty; they
// report on smartwatering/sensor/{id} instead.
func ValidateDevice(d *Device) error {
	if d.ID == "" || len(d.ID) > maxIDLength || strings.ContainsAny(d.ID, "/+# \t\n\x00") {
		return fmt.Errorf("%w: id %q must be 1-%d characters without '/', '+', '#' or whitespace", ErrInvalidDevice, d.ID, maxIDLength)
	}
	if strings.TrimSpace(d.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidDevice)
	}

	name := strings.TrimSpace(d.Name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDevice)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	if len(d.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidDevice, maxDescriptionLength)
	}

	if !d.Type.Valid() {
		return fmt.Errorf("%w: %q (must be sensor or actuator)", ErrInvalidType, d.Type)
	}

	if err := ValidateTopic(d.Topic); err != nil {
		return err
	}
	if d.Type == TypeActuator && d.Topic == "" {
		return fmt.Errorf("%w: actuators need a command topic", ErrInvalidTopic)
	}

	if err := ValidateStatus(d.Status); err != nil {
		return err
	}
	return nil
}

// ValidateTopic accepts an empty topic or one that can be published to.
func ValidateTopic(topic string) error {
	if topic == "" {
		return nil
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidTopic, maxTopicLength)
	}
	if strings.ContainsAny(topic, "+# \t\n\x00") {
		return fmt.Errorf("%w: %q contains wildcards or whitespace", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateStatus checks a status/command word.
func ValidateStatus(status string) error {
	if status == "" {
		return nil
	}
	if len(status) > maxStatusLength || strings.TrimSpace(status) != status {
		return fmt.Errorf("%w: invalid status %q", ErrInvalidDevice, status)
	}
	return nil
}

// GenerateID returns a new device id.
func GenerateID() string {
	return "dev-" + uuid.NewString()[:8]
}
