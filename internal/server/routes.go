package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (live job status and screenshots)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.SubmitJobHandler)  // POST - submit
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.JobRoutesHandler) // GET /{id}, POST /{id}/cancel

	// API routes - Targets
	mux.HandleFunc("/api/targets/", s.app.JobHandler.TargetJobsHandler) // GET /{id}/jobs

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	return mux
}
