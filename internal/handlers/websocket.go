// -----------------------------------------------------------------------
// WebSocket Handler - Live job status and screenshot broadcasting
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/common"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/models"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsClient is one connected viewer. Writes are serialized through the mutex;
// subscription fields are only read/written under the handler's lock.
type wsClient struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	sessionID string

	subscribed bool
	tenantID   string
	targetID   string // Empty = all of the tenant's targets
}

// WSMessage is the wire envelope for all server-to-client messages
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// JobUpdatePayload mirrors a job's state for viewer consoles
type JobUpdatePayload struct {
	JobID      string               `json:"job_id"`
	TenantID   string               `json:"tenant_id"`
	TargetID   string               `json:"target_id"`
	ActionName string               `json:"action_name"`
	Status     string               `json:"status"`
	Reason     string               `json:"reason,omitempty"`
	Progress   int                  `json:"progress"`
	Message    string               `json:"message,omitempty"`
	Result     *models.ActionResult `json:"result,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// ScreenshotPayload carries one live page capture. Data is base64 PNG.
type ScreenshotPayload struct {
	JobID      string    `json:"job_id"`
	TenantID   string    `json:"tenant_id"`
	TargetID   string    `json:"target_id"`
	ActionName string    `json:"action_name"`
	Data       []byte    `json:"data"`
	Timestamp  time.Time `json:"timestamp"`
}

// subscribeRequest is the client-to-server subscription message
type subscribeRequest struct {
	Type     string `json:"type"`
	TenantID string `json:"tenant_id"`
	TargetID string `json:"target_id,omitempty"`
}

// WebSocketHandler owns all live viewer connections. Tenant isolation is
// enforced server-side: a client only ever receives events for the tenant it
// subscribed to, regardless of what it asks for afterwards.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*wsClient
	mu               sync.RWMutex
	eventService     interfaces.EventService
	shotInterval     time.Duration
	shotMu           sync.Mutex
	shotLimiters     map[string]*rate.Limiter
	serverInstanceID string
}

// NewWebSocketHandler creates the handler and subscribes it to the event bus
func NewWebSocketHandler(eventService interfaces.EventService, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*wsClient),
		eventService:     eventService,
		shotLimiters:     make(map[string]*rate.Limiter),
		serverInstanceID: uuid.New().String(),
	}

	// Screenshot frames are high-frequency; throttle only if configured
	if config != nil {
		if intervalStr, ok := config.ThrottleIntervals["screenshot"]; ok {
			if duration, err := time.ParseDuration(intervalStr); err == nil {
				h.shotInterval = duration
				logger.Debug().
					Str("interval", intervalStr).
					Msg("Throttler initialized for screenshot frames")
			} else {
				logger.Warn().
					Err(err).
					Str("interval", intervalStr).
					Msg("Failed to parse screenshot throttle interval - throttler disabled")
			}
		}
	}

	if eventService != nil {
		h.subscribeToQueueEvents()
	}

	logger.Info().
		Str("server_instance_id", h.serverInstanceID).
		Msg("WebSocket handler initialized")

	return h
}

// subscribeToQueueEvents wires the event bus into the broadcaster
func (h *WebSocketHandler) subscribeToQueueEvents() {
	jobEvents := []interfaces.EventType{
		interfaces.EventJobWaiting,
		interfaces.EventJobActive,
		interfaces.EventJobCompleted,
		interfaces.EventJobFailed,
		interfaces.EventJobCancelled,
	}
	for _, eventType := range jobEvents {
		if err := h.eventService.Subscribe(eventType, h.handleJobEvent); err != nil {
			h.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe to job events")
		}
	}
	if err := h.eventService.Subscribe(interfaces.EventScreenshotCaptured, h.handleScreenshotEvent); err != nil {
		h.logger.Error().Err(err).Msg("Failed to subscribe to screenshot events")
	}
}

func (h *WebSocketHandler) handleJobEvent(ctx context.Context, event interfaces.Event) error {
	job, ok := event.Payload.(*models.Job)
	if !ok {
		return nil
	}

	payload := JobUpdatePayload{
		JobID:      job.ID,
		TenantID:   job.TenantID,
		TargetID:   job.TargetID,
		ActionName: job.ActionName,
		Status:     string(job.Status),
		Reason:     string(job.Reason),
		Progress:   job.Progress,
		Message:    job.Message,
		Timestamp:  time.Now(),
	}
	if job.Status.IsTerminal() {
		payload.Result = job.Result
	}

	h.broadcastFiltered(WSMessage{Type: "job_update", Payload: payload}, job.TenantID, job.TargetID)
	return nil
}

func (h *WebSocketHandler) handleScreenshotEvent(ctx context.Context, event interfaces.Event) error {
	frame, ok := event.Payload.(*models.ScreenshotFrame)
	if !ok {
		return nil
	}

	if h.shotInterval > 0 && !h.shotLimiter(frame.TenantID, frame.TargetID).Allow() {
		return nil
	}

	payload := ScreenshotPayload{
		JobID:      frame.JobID,
		TenantID:   frame.TenantID,
		TargetID:   frame.TargetID,
		ActionName: frame.ActionName,
		Data:       frame.PNG,
		Timestamp:  frame.CapturedAt,
	}

	h.broadcastFiltered(WSMessage{Type: "screenshot", Payload: payload}, frame.TenantID, frame.TargetID)
	return nil
}

// shotLimiter returns the frame-rate limiter for one (tenant, target) pair.
// Limiters are keyed per pair so one job's capture cadence cannot consume
// the tokens of another tenant's stream.
func (h *WebSocketHandler) shotLimiter(tenantID, targetID string) *rate.Limiter {
	key := tenantID + "|" + targetID

	h.shotMu.Lock()
	defer h.shotMu.Unlock()

	limiter, ok := h.shotLimiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.shotInterval), 1)
		h.shotLimiters[key] = limiter
	}
	return limiter
}

// HandleWebSocket upgrades the connection and runs the read loop
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{
		conn:      conn,
		sessionID: uuid.New().String(),
	}

	h.mu.Lock()
	h.clients[conn] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendToClient(client, WSMessage{
		Type: "connection",
		Payload: map[string]interface{}{
			"sessionId":        client.sessionID,
			"serverInstanceId": h.serverInstanceID,
		},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
		h.handleClientMessage(client, data)
	}
}

// handleClientMessage processes subscribe and ping messages from a viewer
func (h *WebSocketHandler) handleClientMessage(client *wsClient, data []byte) {
	var req subscribeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Debug().Err(err).Msg("Ignoring malformed client message")
		return
	}

	switch req.Type {
	case "subscribe":
		if req.TenantID == "" {
			h.sendToClient(client, WSMessage{
				Type:    "error",
				Payload: map[string]interface{}{"message": "tenant_id is required to subscribe"},
			})
			return
		}
		h.mu.Lock()
		client.subscribed = true
		client.tenantID = req.TenantID
		client.targetID = req.TargetID
		h.mu.Unlock()

		h.logger.Debug().
			Str("tenant_id", req.TenantID).
			Str("target_id", req.TargetID).
			Msg("Client subscribed")

		h.sendToClient(client, WSMessage{
			Type: "subscribed",
			Payload: map[string]interface{}{
				"tenant_id": req.TenantID,
				"target_id": req.TargetID,
			},
		})

	case "ping":
		h.sendToClient(client, WSMessage{Type: "pong", Payload: map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		}})
	}
}

// broadcastFiltered sends a message to every client subscribed to the event's
// tenant (and target, when the client narrowed its subscription)
func (h *WebSocketHandler) broadcastFiltered(msg WSMessage, tenantID, targetID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal broadcast message")
		return
	}

	h.mu.RLock()
	recipients := make([]*wsClient, 0, len(h.clients))
	for _, client := range h.clients {
		if !client.subscribed || client.tenantID != tenantID {
			continue
		}
		if client.targetID != "" && client.targetID != targetID {
			continue
		}
		recipients = append(recipients, client)
	}
	h.mu.RUnlock()

	for _, client := range recipients {
		h.writeRaw(client, data)
	}
}

// BroadcastHeartbeat sends a heartbeat to every connected client
func (h *WebSocketHandler) BroadcastHeartbeat() {
	msg := WSMessage{Type: "heartbeat", Payload: map[string]interface{}{
		"timestamp":        time.Now().Format(time.RFC3339),
		"serverInstanceId": h.serverInstanceID,
	}}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	recipients := make([]*wsClient, 0, len(h.clients))
	for _, client := range h.clients {
		recipients = append(recipients, client)
	}
	h.mu.RUnlock()

	for _, client := range recipients {
		h.writeRaw(client, data)
	}
}

// StartHeartbeat broadcasts heartbeats until the context is cancelled
func (h *WebSocketHandler) StartHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	common.SafeGoWithContext(ctx, h.logger, "ws-heartbeat", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.BroadcastHeartbeat()
			}
		}
	})
}

// ClientCount returns the number of connected viewers
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHandler) sendToClient(client *wsClient, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal message")
		return
	}
	h.writeRaw(client, data)
}

func (h *WebSocketHandler) writeRaw(client *wsClient, data []byte) {
	client.writeMu.Lock()
	err := client.conn.WriteMessage(websocket.TextMessage, data)
	client.writeMu.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send message to client")
	}
}
