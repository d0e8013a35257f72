package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smart-watering-core/internal/audit"
	"github.com/nerrad567/smart-watering-core/internal/automation"
)

// handleListRules returns the owner's rules in creation order.
//
// Query parameters:
//   - device_id: filter by device
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.ListRules(r.Context(), ownerID(r), r.URL.Query().Get("device_id"))
	if err != nil {
		s.writeRuleError(w, err, "failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

// handleGetRule returns one of the owner's rules.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.GetRule(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeRuleError(w, err, "failed to get rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleCreateRule creates a rule for one of the owner's devices. Rules
// are enabled unless the body says otherwise.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	rule := automation.Rule{Enabled: true}
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	rule.ID = ""
	rule.OwnerID = ownerID(r)

	if err := s.rules.CreateRule(r.Context(), &rule); err != nil {
		s.writeRuleError(w, err, "failed to create rule")
		return
	}

	s.auditLog(audit.ActionCreate, audit.EntityRule, rule.ID, rule.OwnerID, map[string]any{
		"device_id":      rule.DeviceID,
		"condition_type": rule.ConditionType,
		"threshold":      rule.Threshold,
		"action":         rule.Action,
	})
	writeJSON(w, http.StatusCreated, rule)
}

// handleUpdateRule partially updates one of the owner's rules.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	owner, id := ownerID(r), chi.URLParam(r, "id")

	existing, err := s.rules.GetRule(r.Context(), owner, id)
	if err != nil {
		s.writeRuleError(w, err, "failed to get rule")
		return
	}

	// Decode partial update onto existing rule
	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id
	existing.OwnerID = owner

	if err := s.rules.UpdateRule(r.Context(), existing); err != nil {
		s.writeRuleError(w, err, "failed to update rule")
		return
	}

	s.auditLog(audit.ActionUpdate, audit.EntityRule, id, owner, nil)
	writeJSON(w, http.StatusOK, existing)
}

// handleToggleRule flips a rule between enabled and disabled.
func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	owner, id := ownerID(r), chi.URLParam(r, "id")

	rule, err := s.rules.ToggleRule(r.Context(), owner, id)
	if err != nil {
		s.writeRuleError(w, err, "failed to toggle rule")
		return
	}

	s.auditLog(audit.ActionToggle, audit.EntityRule, id, owner, map[string]any{"enabled": rule.Enabled})
	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteRule removes one of the owner's rules.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	owner, id := ownerID(r), chi.URLParam(r, "id")

	if err := s.rules.DeleteRule(r.Context(), owner, id); err != nil {
		s.writeRuleError(w, err, "failed to delete rule")
		return
	}

	s.auditLog(audit.ActionDelete, audit.EntityRule, id, owner, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeRuleError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, automation.ErrRuleNotFound):
		writeNotFound(w, "rule not found")
	case errors.Is(err, automation.ErrRuleExists):
		writeConflict(w, "rule already exists")
	case errors.Is(err, automation.ErrDeviceNotFound):
		// The device is named in the body, not the path.
		writeValidationError(w, err)
	case isValidationError(err):
		writeValidationError(w, err)
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
