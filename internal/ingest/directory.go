package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/smart-watering-core/internal/automation"
	"github.com/nerrad567/smart-watering-core/internal/device"
)

// DeviceGetter is the part of device.Registry the directory needs.
type DeviceGetter interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
}

// RegistryDirectory serves the device registry as the rule engine's
// device directory.
type RegistryDirectory struct {
	devices DeviceGetter
}

// NewRegistryDirectory wraps a device registry.
func NewRegistryDirectory(devices DeviceGetter) *RegistryDirectory {
	return &RegistryDirectory{devices: devices}
}

// Lookup implements automation.DeviceDirectory.
func (d *RegistryDirectory) Lookup(ctx context.Context, deviceID string) (automation.DeviceInfo, error) {
	dev, err := d.devices.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return automation.DeviceInfo{}, fmt.Errorf("%w: %w", automation.ErrDeviceNotFound, err)
		}
		return automation.DeviceInfo{}, err
	}
	return automation.DeviceInfo{ID: dev.ID, OwnerID: dev.OwnerID, Topic: dev.Topic}, nil
}
