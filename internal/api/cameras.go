package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smart-watering-core/internal/camera"
)

// handleListCameras returns every camera ordered by id.
func (s *Server) handleListCameras(w http.ResponseWriter, r *http.Request) {
	cameras, err := s.cameras.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list cameras", "error", err)
		writeInternalError(w, "failed to list cameras")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cameras": cameras, "count": len(cameras)})
}

// handleGetCamera returns one camera.
func (s *Server) handleGetCamera(w http.ResponseWriter, r *http.Request) {
	c, err := s.cameras.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeCameraError(w, err, "failed to get camera")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleCreateCamera registers a camera. The id is chosen by the caller.
func (s *Server) handleCreateCamera(w http.ResponseWriter, r *http.Request) {
	var c camera.Camera
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.cameras.Create(r.Context(), &c); err != nil {
		s.writeCameraError(w, err, "failed to create camera")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleCreateCameraResult stores one analytics result reported by the
// video processor.
func (s *Server) handleCreateCameraResult(w http.ResponseWriter, r *http.Request) {
	var res camera.Result
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	res.ID = ""
	res.CameraID = chi.URLParam(r, "id")

	if err := s.cameras.AppendResult(r.Context(), &res); err != nil {
		s.writeCameraError(w, err, "failed to store camera result")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleLatestCameraResult returns the camera's newest result, or an empty
// object when it has none.
func (s *Server) handleLatestCameraResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.cameras.LatestResult(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, camera.ErrNoResult):
		writeJSON(w, http.StatusOK, struct{}{})
	case err != nil:
		s.writeCameraError(w, err, "failed to get latest camera result")
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) writeCameraError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, camera.ErrCameraNotFound):
		writeNotFound(w, "camera not found")
	case errors.Is(err, camera.ErrCameraExists):
		writeConflict(w, err.Error())
	case isValidationError(err):
		writeValidationError(w, err)
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
