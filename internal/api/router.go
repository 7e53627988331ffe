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

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)
			r.Get("/stats", s.handleDeviceStats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Patch("/", s.handleUpdateDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Post("/acknowledge", s.handleAcknowledgeDevice)
			})
		})

		// Alarm endpoints
		r.Route("/alarms", func(r chi.Router) {
			r.Get("/", s.handleListAlarms)
			r.Post("/test", s.handleTestAlarm)
			r.Post("/{id}/acknowledge", s.handleAcknowledgeAlarm)
		})

		// Broker connection endpoints
		r.Route("/connection", func(r chi.Router) {
			r.Get("/", s.handleGetConnection)
			r.Put("/", s.handleUpdateConnection)
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
		})

		// WebSocket alarm notification feed
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"connected": s.session.IsConnected(),
	})
}
