package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/smart-watering-core/internal/reading"
)

// handleListReadings returns the owner's latest readings across all
// devices, newest first.
//
// Query parameters:
//   - limit: max results (default 50, max 200)
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := s.readings.ListByOwner(r.Context(), ownerID(r), queryLimit(r))
	if err != nil {
		s.logger.Error("failed to list readings", "error", err)
		writeInternalError(w, "failed to list readings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings, "count": len(readings)})
}

// handleDailyReadings returns every reading the owner received on one UTC
// day, newest first.
//
// Query parameters:
//   - date: YYYY-MM-DD (default today)
func (s *Server) handleDailyReadings(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format(reading.DayLayout)
	}
	day, err := reading.ParseDay(date)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	readings, err := s.readings.ListByOwnerDay(r.Context(), ownerID(r), day)
	if err != nil {
		s.logger.Error("failed to list daily readings", "date", date, "error", err)
		writeInternalError(w, "failed to list readings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":     day.Format(reading.DayLayout),
		"readings": readings,
		"count":    len(readings),
	})
}

// queryLimit reads the limit query parameter, clamped to the history
// bounds. Unparseable values fall back to the default.
func queryLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit")) //nolint:errcheck // zero selects the default
	return reading.ClampLimit(n)
}
