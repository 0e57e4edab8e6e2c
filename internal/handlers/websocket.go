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
	"github.com/ternarybob/pactum/internal/common"
	"github.com/ternarybob/pactum/internal/interfaces"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every frame pushed to clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler streams dispatch lifecycle events to connected clients.
type WebSocketHandler struct {
	logger             arbor.ILogger
	clients            map[*websocket.Conn]bool
	clientMutex        map[*websocket.Conn]*sync.Mutex
	mu                 sync.RWMutex
	eventService       interfaces.EventService
	heartbeatThrottler *rate.Limiter   // Rate limiter for heartbeat events
	allowedEvents      map[string]bool // Whitelist of events to broadcast (empty = allow all)
	serverInstanceID   string          // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		serverInstanceID: uuid.New().String(),
	}

	// Empty whitelist means broadcast everything.
	h.allowedEvents = make(map[string]bool)
	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		logger.Debug().
			Int("allowed_events", len(h.allowedEvents)).
			Msg("Initialized event whitelist for WebSocketHandler")
	}

	// Heartbeats arrive once per working worker per interval, so they are
	// the one event class worth throttling.
	if config != nil && config.HeartbeatThrottle != "" {
		if duration, err := time.ParseDuration(config.HeartbeatThrottle); err == nil {
			h.heartbeatThrottler = rate.NewLimiter(rate.Every(duration), 1)
			logger.Debug().
				Str("interval", config.HeartbeatThrottle).
				Msg("Throttler initialized for heartbeat events")
		} else {
			logger.Warn().
				Err(err).
				Str("interval", config.HeartbeatThrottle).
				Msg("Failed to parse heartbeat throttle interval - throttler disabled")
		}
	}

	if eventService != nil {
		h.subscribeToDispatchEvents()
	}

	return h
}

// subscribeToDispatchEvents fans every lifecycle event out to connected
// clients, subject to the whitelist and the heartbeat throttle.
func (h *WebSocketHandler) subscribeToDispatchEvents() {
	eventTypes := []interfaces.EventType{
		interfaces.EventJobCreated,
		interfaces.EventContractClaimed,
		interfaces.EventContractCompleted,
		interfaces.EventJobPaused,
		interfaces.EventJobRetried,
		interfaces.EventHeartbeat,
	}

	for _, eventType := range eventTypes {
		et := eventType
		handler := func(ctx context.Context, event interfaces.Event) error {
			h.broadcastEvent(string(et), event.Payload)
			return nil
		}
		if err := h.eventService.Subscribe(et, handler); err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(et)).Msg("Failed to subscribe WebSocket broadcaster")
		}
	}

	h.logger.Info().
		Str("server_instance_id", h.serverInstanceID).
		Int("event_types", len(eventTypes)).
		Msg("WebSocket broadcaster subscribed to dispatch events")
}

// broadcastEvent pushes one event frame to every connected client.
func (h *WebSocketHandler) broadcastEvent(eventType string, payload interface{}) {
	if len(h.allowedEvents) > 0 && !h.allowedEvents[eventType] {
		return
	}

	if eventType == string(interfaces.EventHeartbeat) && h.heartbeatThrottler != nil {
		if !h.heartbeatThrottler.Allow() {
			return
		}
	}

	msg := WSMessage{
		Type:    eventType,
		Payload: payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", eventType).Msg("Failed to marshal event message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send event to client")
		}
	}
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendHello(conn)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// sendHello tells a fresh client which server instance it reached so it can
// reset local state after a restart.
func (h *WebSocketHandler) sendHello(conn *websocket.Conn) {
	msg := WSMessage{
		Type: "hello",
		Payload: map[string]string{
			"server_instance_id": h.serverInstanceID,
			"version":            common.GetVersion(),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal hello message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex != nil {
		mutex.Lock()
		conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
