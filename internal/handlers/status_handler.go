package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/common"
)

// StatsProvider exposes runtime counters for the status endpoint
type StatsProvider interface {
	Stats() map[string]interface{}
}

// StatusHandler serves health, version and runtime stats
type StatusHandler struct {
	queueStats   StatsProvider
	browserStats StatsProvider
	wsHandler    *WebSocketHandler
	startTime    time.Time
	logger       arbor.ILogger
}

// NewStatusHandler creates the status API handler
func NewStatusHandler(queueStats, browserStats StatsProvider, wsHandler *WebSocketHandler, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		queueStats:   queueStats,
		browserStats: browserStats,
		wsHandler:    wsHandler,
		startTime:    time.Now(),
		logger:       logger,
	}
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
	})
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status := map[string]interface{}{
		"status":         "running",
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"viewers":        h.wsHandler.ClientCount(),
	}
	if h.queueStats != nil {
		status["queue"] = h.queueStats.Stats()
	}
	if h.browserStats != nil {
		status["browser"] = h.browserStats.Stats()
	}

	WriteJSON(w, http.StatusOK, status)
}
