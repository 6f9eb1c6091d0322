package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service is the presentation gateway: it serves the session view over HTTP
// and pushes every snapshot change to WebSocket clients.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	controller        Controller
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service. cm is shared with the machine's
// feedback hooks so cues reach the same clients.
func NewService(cm *ConnectionManager, controller Controller) *Service {
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, controller),
		stateHandler:      NewStateHandler(controller),
		controller:        controller,
	}
}

// Start runs the connection manager and relays snapshots until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting session gateway service")

	go s.connectionManager.Start(ctx)

	snapshots, stop := s.controller.Watch()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session gateway service shutting down")
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				log.Info().Msg("session machine closed, gateway relay stopped")
				<-ctx.Done()
				return nil
			}
			event, err := newEvent(EventTypeSnapshot, snap)
			if err != nil {
				log.Error().Err(err).Msg("failed to encode snapshot")
				continue
			}
			s.connectionManager.Broadcast(event)
		}
	}
}

// RegisterRoutes registers the WebSocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("session gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "session_gateway"
	stats["state"] = string(s.controller.Snapshot().State)
	return stats
}
