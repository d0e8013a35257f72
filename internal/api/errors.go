package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/smart-watering-core/internal/automation"
	"github.com/nerrad567/smart-watering-core/internal/camera"
	"github.com/nerrad567/smart-watering-core/internal/device"
	"github.com/nerrad567/smart-watering-core/internal/farm"
	"github.com/nerrad567/smart-watering-core/internal/reading"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeBadGateway   = "bad_gateway"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeValidationError writes a 400 error response for a rejected entity.
func writeValidationError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
}

// isValidationError reports whether err is a domain validation failure.
func isValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidType) ||
		errors.Is(err, device.ErrInvalidTopic) ||
		errors.Is(err, farm.ErrInvalidFarm) ||
		errors.Is(err, camera.ErrInvalidCamera) ||
		errors.Is(err, automation.ErrInvalidRule) ||
		errors.Is(err, automation.ErrInvalidCommand) ||
		errors.Is(err, reading.ErrInvalidReading) ||
		errors.Is(err, reading.ErrInvalidDate)
}

// writeBadGateway writes a 502 error response for a command the broker
// did not accept.
func writeBadGateway(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadGateway, ErrCodeBadGateway, message)
}
