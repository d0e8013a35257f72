package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smart-watering-core/internal/audit"
	"github.com/nerrad567/smart-watering-core/internal/automation"
	"github.com/nerrad567/smart-watering-core/internal/device"
	"github.com/nerrad567/smart-watering-core/internal/farm"
	"github.com/nerrad567/smart-watering-core/internal/reading"
)

// handleListDevices returns the owner's devices.
//
// Query parameters:
//   - farm_id: filter by farm
//   - type: filter by type (sensor, actuator)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	filter := device.Filter{
		FarmID: r.URL.Query().Get("farm_id"),
		Type:   device.Type(r.URL.Query().Get("type")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		writeBadRequest(w, "type must be sensor or actuator")
		return
	}

	devices := s.devices.ListDevices(ownerID(r), filter)
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns one of the owner's devices.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.GetOwnedDevice(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDeviceError(w, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice registers a device for the owner. Status starts as
// "off" whatever the body says.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	dev.OwnerID = ownerID(r)
	dev.Status = ""
	dev.StatusUpdatedAt = nil

	if err := s.checkFarm(r.Context(), &dev); err != nil {
		s.writeDeviceError(w, err, "failed to check farm")
		return
	}

	if err := s.devices.CreateDevice(r.Context(), &dev); err != nil {
		s.writeDeviceError(w, err, "failed to create device")
		return
	}

	s.auditLog(audit.ActionCreate, audit.EntityDevice, dev.ID, dev.OwnerID, map[string]any{
		"name": dev.Name,
		"type": dev.Type,
	})
	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice partially updates one of the owner's devices. Status
// is only changed by commands.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	owner, id := ownerID(r), chi.URLParam(r, "id")

	existing, err := s.devices.GetOwnedDevice(r.Context(), owner, id)
	if err != nil {
		s.writeDeviceError(w, err, "failed to get device")
		return
	}

	// Decode partial update onto existing device
	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id
	existing.OwnerID = owner

	if err := s.checkFarm(r.Context(), existing); err != nil {
		s.writeDeviceError(w, err, "failed to check farm")
		return
	}

	if err := s.devices.UpdateDevice(r.Context(), existing); err != nil {
		s.writeDeviceError(w, err, "failed to update device")
		return
	}

	s.auditLog(audit.ActionUpdate, audit.EntityDevice, id, owner, nil)
	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteDevice removes one of the owner's devices together with its
// rules. Readings and triggered actions are kept as history.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	owner, id := ownerID(r), chi.URLParam(r, "id")

	if err := s.devices.DeleteDevice(r.Context(), owner, id); err != nil {
		s.writeDeviceError(w, err, "failed to delete device")
		return
	}
	removed := s.rules.ForgetDevice(id)

	s.auditLog(audit.ActionDelete, audit.EntityDevice, id, owner, map[string]any{"rules_removed": removed})
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceReadings returns the latest readings of one device, newest
// first.
//
// Query parameters:
//   - limit: max results (default 50, max 200)
func (s *Server) handleDeviceReadings(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.GetOwnedDevice(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDeviceError(w, err, "failed to get device")
		return
	}

	readings, err := s.readings.ListByDevice(r.Context(), dev.ID, queryLimit(r))
	if err != nil {
		s.logger.Error("failed to list device readings", "device_id", dev.ID, "error", err)
		writeInternalError(w, "failed to list readings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings, "count": len(readings)})
}

// handleLatestReadings returns the newest reading of each of the owner's
// devices.
func (s *Server) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := s.readings.LatestByOwner(r.Context(), ownerID(r))
	if err != nil {
		s.logger.Error("failed to list latest readings", "error", err)
		writeInternalError(w, "failed to list readings")
		return
	}

	latest := make(map[string]reading.Reading, len(readings))
	for _, rd := range readings {
		latest[rd.DeviceID] = rd
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": latest, "count": len(latest)})
}

// commandResponse is the body of a manual command response.
type commandResponse struct {
	Success bool                        `json:"success"`
	Message string                      `json:"message"`
	Warning string                      `json:"warning,omitempty"`
	Action  *automation.TriggeredAction `json:"action,omitempty"`
}

// handleDeviceCommand sends a manual command to one of the owner's devices.
//
// The command is published, recorded as the device status, and logged as a
// triggered action with source "manual". If the broker refuses the command
// nothing is recorded and 502 is returned. A recording failure after the
// command left is returned as a warning.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	owner, id, command := ownerID(r), chi.URLParam(r, "id"), chi.URLParam(r, "command")

	action, err := s.commands.Command(r.Context(), owner, id, command)
	if err != nil && action == nil {
		switch {
		case errors.Is(err, automation.ErrInvalidCommand):
			writeValidationError(w, err)
		case errors.Is(err, automation.ErrDeviceNotFound), errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, automation.ErrDispatch):
			writeBadGateway(w, err.Error())
		default:
			s.logger.Error("manual command failed", "device_id", id, "command", command, "error", err)
			writeInternalError(w, "failed to send command")
		}
		return
	}

	resp := commandResponse{
		Success: true,
		Message: fmt.Sprintf("command %s sent", command),
		Action:  action,
	}
	if err != nil {
		resp.Warning = err.Error()
	}

	s.auditLog(audit.ActionCommand, audit.EntityDevice, id, owner, map[string]any{"command": command})
	writeJSON(w, http.StatusOK, resp)
}

// checkFarm rejects a farm id the owner does not have. An empty id clears
// the farm.
func (s *Server) checkFarm(ctx context.Context, dev *device.Device) error {
	if dev.FarmID == nil {
		return nil
	}
	if *dev.FarmID == "" {
		dev.FarmID = nil
		return nil
	}
	if _, err := s.farms.Get(ctx, dev.OwnerID, *dev.FarmID); err != nil {
		if errors.Is(err, farm.ErrFarmNotFound) {
			return fmt.Errorf("%w: farm %s not found", device.ErrInvalidDevice, *dev.FarmID)
		}
		return err
	}
	return nil
}

func (s *Server) writeDeviceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDeviceExists):
		writeConflict(w, "device already exists")
	case isValidationError(err):
		writeValidationError(w, err)
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
