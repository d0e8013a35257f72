package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/smart-watering-core/internal/automation"
	"github.com/nerrad567/smart-watering-core/internal/ingest"
)

// sensorDataResponse is the body of POST /sensor_data.
type sensorDataResponse struct {
	Success    bool                        `json:"success"`
	Message    string                      `json:"message"`
	ReadingID  string                      `json:"reading_id,omitempty"`
	Dispatches []automation.DispatchResult `json:"dispatches"`
}

// handleSensorData ingests one sensor reading and reports the dispatch of
// every rule it fired.
//
// Status codes:
//   - 200: the reading was stored; per-rule failures are in dispatches
//   - 400: malformed body or reading
//   - 404: the device does not exist; nothing was stored
//   - 500: the reading, the rule store or a triggered action record failed;
//     dispatches already made are still reported
func (s *Server) handleSensorData(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSensorData(w, http.StatusBadRequest, "invalid JSON body", nil)
		return
	}

	result, err := s.ingest.Ingest(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrInvalidReading):
			writeSensorData(w, http.StatusBadRequest, err.Error(), result)
		case errors.Is(err, ingest.ErrDeviceNotFound):
			writeSensorData(w, http.StatusNotFound, "device not found", result)
		case result != nil && errors.Is(err, ingest.ErrPersistence):
			s.logger.Error("triggered action not recorded", "device_id", req.DeviceID, "error", err)
			writeSensorData(w, http.StatusInternalServerError, "failed to record triggered action", result)
		default:
			s.logger.Error("sensor data ingest failed", "device_id", req.DeviceID, "error", err)
			writeSensorData(w, http.StatusInternalServerError, err.Error(), result)
		}
		return
	}

	msg := fmt.Sprintf("reading stored, %d rule(s) fired", len(result.Dispatches))
	if failed := result.Failed(); failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	writeSensorData(w, http.StatusOK, msg, result)
}

func writeSensorData(w http.ResponseWriter, status int, message string, result *ingest.Result) {
	resp := sensorDataResponse{
		Success:    status == http.StatusOK,
		Message:    message,
		Dispatches: []automation.DispatchResult{},
	}
	if result != nil {
		resp.ReadingID = result.Reading.ID
		if result.Dispatches != nil {
			resp.Dispatches = result.Dispatches
		}
	}
	writeJSON(w, status, resp)
}
