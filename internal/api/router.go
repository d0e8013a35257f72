package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Unscoped endpoints
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Sensors only know their device id; the owner comes from the device.
		r.Post("/sensor_data", s.handleSensorData)

		// Traffic cameras are shared, not owned.
		r.Route("/cameras", func(r chi.Router) {
			r.Get("/", s.handleListCameras)
			r.Post("/", s.handleCreateCamera)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCamera)
				r.Get("/latest-result", s.handleLatestCameraResult)
				r.Post("/results", s.handleCreateCameraResult)
			})
		})

		// Owner-scoped routes
		r.Group(func(r chi.Router) {
			r.Use(s.ownerMiddleware)

			r.Get("/stats", s.handleStats)

			r.Route("/farms", func(r chi.Router) {
				r.Get("/", s.handleListFarms)
				r.Post("/", s.handleCreateFarm)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetFarm)
					r.Patch("/", s.handleUpdateFarm)
					r.Delete("/", s.handleDeleteFarm)
				})
			})

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)
				r.Get("/latest-readings", s.handleLatestReadings)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Get("/readings", s.handleDeviceReadings)
					r.Post("/command/{command}", s.handleDeviceCommand)
				})
			})

			r.Route("/rules", func(r chi.Router) {
				r.Get("/", s.handleListRules)
				r.Post("/", s.handleCreateRule)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRule)
					r.Patch("/", s.handleUpdateRule)
					r.Delete("/", s.handleDeleteRule)
					r.Post("/toggle", s.handleToggleRule)
				})
			})

			r.Route("/readings", func(r chi.Router) {
				r.Get("/", s.handleListReadings)
				r.Get("/daily", s.handleDailyReadings)
			})

			r.Get("/actions", s.handleListActions)
			r.Get("/audit", s.handleListAuditLogs)

			// WebSocket events are scoped to the same owner
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
