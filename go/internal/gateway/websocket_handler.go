package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for session watchers
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	controller        Controller
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, controller Controller) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		controller:        controller,
	}
}

// HandleSessionConnection upgrades the request and sends the current
// snapshot before any broadcast.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	initial, err := newEvent(EventTypeSnapshot, h.controller.Snapshot())
	if err != nil {
		log.Error().Err(err).Msg("failed to encode initial snapshot")
		initial = nil
	}

	if err := h.connectionManager.UpgradeConnection(w, r, initial); err != nil {
		// the upgrader already replied to the client
		log.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/session", h.HandleSessionConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
