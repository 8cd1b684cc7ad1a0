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
	"golang.org/x/time/rate"

	"github.com/placepin/placepin/internal/common"
	"github.com/placepin/placepin/internal/interfaces"
	"github.com/placepin/placepin/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// SurfaceNotifier receives display-surface readiness reports from clients
type SurfaceNotifier interface {
	NotifySurfaceReady(surfaceID string, width, height int) error
}

// WSMessage is the envelope for every websocket frame in either direction
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// surfaceReadyPayload is the inbound surface announcement from the browser
type surfaceReadyPayload struct {
	SurfaceID string `json:"surface_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// WebSocketHandler streams state events to browser clients and carries map
// commands to the display surface. It implements interfaces.MapController:
// each controller call becomes a map_command frame broadcast to clients.
type WebSocketHandler struct {
	logger       arbor.ILogger
	clients      map[*websocket.Conn]bool
	clientMutex  map[*websocket.Conn]*sync.Mutex
	mu           sync.RWMutex
	eventService interfaces.EventService
	notifier     SurfaceNotifier

	suggestionsThrottler *rate.Limiter   // Rate limiter for suggestions_updated events
	allowedEvents        map[string]bool // Whitelist of events to broadcast (empty = allow all)

	surfaces map[string]bool // Display surfaces announced by clients

	serverInstanceID string // Unique ID generated on startup - clients use to detect server restart
}

// NewWebSocketHandler creates the websocket hub and subscribes it to the
// event bus.
func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		surfaces:         make(map[string]bool),
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	// Empty whitelist allows all events
	h.allowedEvents = make(map[string]bool)
	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		logger.Debug().
			Int("allowed_events", len(h.allowedEvents)).
			Msg("Initialized event whitelist for WebSocketHandler")
	}

	// Throttle suggestion pushes only if configured; nil = no throttling
	if config != nil {
		if intervalStr, ok := config.ThrottleIntervals["suggestions_updated"]; ok {
			if duration, err := time.ParseDuration(intervalStr); err == nil {
				h.suggestionsThrottler = rate.NewLimiter(rate.Every(duration), 1)
				logger.Debug().
					Str("event_type", "suggestions_updated").
					Str("interval", intervalStr).
					Msg("Throttler initialized for suggestions_updated events")
			} else {
				logger.Warn().
					Err(err).
					Str("interval", intervalStr).
					Msg("Failed to parse suggestions_updated throttle interval - throttler disabled")
			}
		}
	}

	if eventService != nil {
		h.subscribeToStateEvents()
	}

	return h
}

// SetSurfaceNotifier wires the map binder in after construction. The binder
// depends on this handler as its MapController, so the reverse link cannot
// be set in the constructor.
func (h *WebSocketHandler) SetSurfaceNotifier(notifier SurfaceNotifier) {
	h.notifier = notifier
}

// subscribeToStateEvents forwards committed state changes to clients
func (h *WebSocketHandler) subscribeToStateEvents() {
	forward := func(eventType interfaces.EventType) interfaces.EventHandler {
		return func(ctx context.Context, event interfaces.Event) error {
			h.broadcastEvent(string(eventType), event.Payload)
			return nil
		}
	}

	h.eventService.Subscribe(interfaces.EventSuggestionsUpdated, func(ctx context.Context, event interfaces.Event) error {
		if h.suggestionsThrottler != nil && !h.suggestionsThrottler.Allow() {
			return nil
		}
		h.broadcastEvent(string(interfaces.EventSuggestionsUpdated), event.Payload)
		return nil
	})
	h.eventService.Subscribe(interfaces.EventPlaceSelected, forward(interfaces.EventPlaceSelected))
	h.eventService.Subscribe(interfaces.EventHistoryUpdated, forward(interfaces.EventHistoryUpdated))
	h.eventService.Subscribe(interfaces.EventSearchFailed, forward(interfaces.EventSearchFailed))
	h.eventService.Subscribe(interfaces.EventMapInitFailed, forward(interfaces.EventMapInitFailed))
	h.eventService.Subscribe(interfaces.EventMapReady, forward(interfaces.EventMapReady))
}

// broadcastEvent sends an event frame to all clients, subject to the
// configured whitelist
func (h *WebSocketHandler) broadcastEvent(eventType string, payload interface{}) {
	if len(h.allowedEvents) > 0 && !h.allowedEvents[eventType] {
		return
	}
	h.broadcast(WSMessage{Type: eventType, Payload: payload})
}

// broadcast sends one frame to every connected client
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
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
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
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

	h.sendToClient(conn, WSMessage{
		Type: "connected",
		Payload: map[string]string{
			"server_instance_id": h.serverInstanceID,
		},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
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
		h.handleClientMessage(conn, data)
	}
}

// handleClientMessage dispatches one inbound frame from a client
func (h *WebSocketHandler) handleClientMessage(conn *websocket.Conn, data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn().Err(err).Msg("Ignoring malformed client message")
		return
	}

	switch msg.Type {
	case "surface_ready":
		var payload surfaceReadyPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.logger.Warn().Err(err).Msg("Ignoring malformed surface_ready payload")
			return
		}
		h.registerSurface(conn, payload)
	case "ping":
		h.sendToClient(conn, WSMessage{Type: "pong", Payload: time.Now().Format(time.RFC3339)})
	default:
		h.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown client message type")
	}
}

// registerSurface records an announced display surface and forwards the
// readiness report to the map binder
func (h *WebSocketHandler) registerSurface(conn *websocket.Conn, payload surfaceReadyPayload) {
	if payload.SurfaceID == "" {
		h.sendToClient(conn, WSMessage{Type: "error", Payload: "surface_ready requires a surface_id"})
		return
	}

	h.mu.Lock()
	h.surfaces[payload.SurfaceID] = true
	h.mu.Unlock()

	if h.notifier != nil {
		if err := h.notifier.NotifySurfaceReady(payload.SurfaceID, payload.Width, payload.Height); err != nil {
			h.logger.Warn().
				Err(err).
				Str("surface_id", payload.SurfaceID).
				Msg("Surface readiness rejected")
			h.sendToClient(conn, WSMessage{Type: "error", Payload: err.Error()})
		}
	}
}

// sendToClient sends one frame to a single client
func (h *WebSocketHandler) sendToClient(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
		return
	}

	h.mu.RLock()
	mutex, exists := h.clientMutex[conn]
	h.mu.RUnlock()
	if !exists {
		return
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
	}
}

// hasSurface reports whether a display surface was announced by any client
func (h *WebSocketHandler) hasSurface(surfaceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.surfaces[surfaceID]
}

// sendMapCommand broadcasts one map command frame to all clients
func (h *WebSocketHandler) sendMapCommand(cmd models.MapCommand) error {
	h.broadcast(WSMessage{Type: "map_command", Payload: cmd})
	return nil
}

// CreateMap implements interfaces.MapController. Construction fails when no
// client has announced the requested display surface.
func (h *WebSocketHandler) CreateMap(surfaceID string, center models.LatLng) error {
	if !h.hasSurface(surfaceID) {
		return &models.SurfaceNotFoundError{SurfaceID: surfaceID}
	}

	return h.sendMapCommand(models.MapCommand{
		Action:    "create_map",
		SurfaceID: surfaceID,
		Position:  &center,
	})
}

// ClearMarkers implements interfaces.MapController
func (h *WebSocketHandler) ClearMarkers() error {
	return h.sendMapCommand(models.MapCommand{Action: "clear_markers"})
}

// AddMarker implements interfaces.MapController
func (h *WebSocketHandler) AddMarker(marker models.Marker) error {
	m := marker
	return h.sendMapCommand(models.MapCommand{Action: "add_marker", Marker: &m})
}

// SetCenter implements interfaces.MapController
func (h *WebSocketHandler) SetCenter(position models.LatLng) error {
	p := position
	return h.sendMapCommand(models.MapCommand{Action: "center", Position: &p})
}

// SetZoom implements interfaces.MapController
func (h *WebSocketHandler) SetZoom(level int) error {
	return h.sendMapCommand(models.MapCommand{Action: "zoom", Zoom: level})
}
