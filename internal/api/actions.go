package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/smart-watering-core/internal/automation"
)

// handleListActions returns the owner's triggered actions, newest first.
//
// Query parameters:
//   - device_id: filter by device
//   - limit: max results (default 50, max 200)
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	filter := automation.ActionFilter{DeviceID: r.URL.Query().Get("device_id")}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	actions, err := s.actions.List(r.Context(), ownerID(r), filter)
	if err != nil {
		s.logger.Error("failed to list triggered actions", "error", err)
		writeInternalError(w, "failed to list actions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions, "count": len(actions)})
}

// Stats is the owner's dashboard summary.
type Stats struct {
	FarmCount       int `json:"farm_count"`
	DeviceCount     int `json:"device_count"`
	ActiveRuleCount int `json:"active_rule_count"`
}

// handleStats returns farm, device and enabled rule counts for the owner.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)

	farms, err := s.farms.Count(r.Context(), owner)
	if err != nil {
		s.logger.Error("failed to count farms", "error", err)
		writeInternalError(w, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, Stats{
		FarmCount:       farms,
		DeviceCount:     s.devices.CountByOwner(owner),
		ActiveRuleCount: s.rules.CountActive(owner),
	})
}
