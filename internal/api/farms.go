package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smart-watering-core/internal/audit"
	"github.com/nerrad567/smart-watering-core/internal/farm"
)

// handleListFarms returns the owner's farms.
func (s *Server) handleListFarms(w http.ResponseWriter, r *http.Request) {
	farms, err := s.farms.List(r.Context(), ownerID(r))
	if err != nil {
		s.logger.Error("failed to list farms", "error", err)
		writeInternalError(w, "failed to list farms")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"farms": farms, "count": len(farms)})
}

// handleGetFarm returns one of the owner's farms.
func (s *Server) handleGetFarm(w http.ResponseWriter, r *http.Request) {
	f, err := s.farms.Get(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFarmError(w, err, "failed to get farm")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleCreateFarm creates a farm for the owner.
func (s *Server) handleCreateFarm(w http.ResponseWriter, r *http.Request) {
	var f farm.Farm
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	f.ID = ""
	f.OwnerID = ownerID(r)

	if err := s.farms.Create(r.Context(), &f); err != nil {
		s.writeFarmError(w, err, "failed to create farm")
		return
	}

	s.auditLog(audit.ActionCreate, audit.EntityFarm, f.ID, f.OwnerID, map[string]any{"name": f.Name})
	writeJSON(w, http.StatusCreated, f)
}

// handleUpdateFarm partially updates one of the owner's farms.
func (s *Server) handleUpdateFarm(w http.ResponseWriter, r *http.Request) {
	owner, id := ownerID(r), chi.URLParam(r, "id")

	existing, err := s.farms.Get(r.Context(), owner, id)
	if err != nil {
		s.writeFarmError(w, err, "failed to get farm")
		return
	}

	// Decode partial update onto existing farm
	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id
	existing.OwnerID = owner

	if err := s.farms.Update(r.Context(), existing); err != nil {
		s.writeFarmError(w, err, "failed to update farm")
		return
	}

	s.auditLog(audit.ActionUpdate, audit.EntityFarm, id, owner, nil)
	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteFarm removes one of the owner's farms. A farm with devices
// is refused with 409.
func (s *Server) handleDeleteFarm(w http.ResponseWriter, r *http.Request) {
	owner, id := ownerID(r), chi.URLParam(r, "id")

	if err := s.farms.Delete(r.Context(), owner, id); err != nil {
		s.writeFarmError(w, err, "failed to delete farm")
		return
	}

	s.auditLog(audit.ActionDelete, audit.EntityFarm, id, owner, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeFarmError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, farm.ErrFarmNotFound):
		writeNotFound(w, "farm not found")
	case errors.Is(err, farm.ErrFarmHasDevices):
		writeConflict(w, err.Error())
	case isValidationError(err):
		writeValidationError(w, err)
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
