package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/smart-watering-core/internal/automation"
	"github.com/nerrad567/smart-watering-core/internal/device"
)

type stubDevices map[string]*device.Device

func (s stubDevices) GetDevice(_ context.Context, id string) (*device.Device, error) {
	if d, ok := s[id]; ok {
		return d, nil
	}
	return nil, device.ErrDeviceNotFound
}

func TestRegistryDirectory_Lookup(t *testing.T) {
	dir := NewRegistryDirectory(stubDevices{
		"dev-1": {ID: "dev-1", OwnerID: "owner-1", Topic: "farm/pump", Type: device.TypeActuator},
	})

	info, err := dir.Lookup(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	want := automation.DeviceInfo{ID: "dev-1", OwnerID: "owner-1", Topic: "farm/pump"}
	if info != want {
		t.Errorf("Lookup() = %+v, want %+v", info, want)
	}

	_, err = dir.Lookup(context.Background(), "missing")
	if !errors.Is(err, automation.ErrDeviceNotFound) || !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("Lookup(missing) = %v, want both not-found errors", err)
	}
}
