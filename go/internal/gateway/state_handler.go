package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/apperr"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/session"
	"github.com/rs/zerolog/log"
)

// Controller is the part of the session machine the gateway drives.
type Controller interface {
	Snapshot() session.Snapshot
	Watch() (<-chan session.Snapshot, func())
	Start(ctx context.Context) error
	Eject(ctx context.Context) error
	PlayAgain(ctx context.Context) error
}

// ErrorResponse is the body written for a failed intent.
type ErrorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind,omitempty"`
}

// StateHandler handles HTTP requests for the session view and player intents
type StateHandler struct {
	controller Controller
}

// NewStateHandler creates a new state handler
func NewStateHandler(controller Controller) *StateHandler {
	return &StateHandler{
		controller: controller,
	}
}

// HandleGetSession handles GET /api/session
func (h *StateHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

// HandleStart handles POST /api/session/start
func (h *StateHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.intent(w, r, "start", h.controller.Start, http.StatusAccepted)
}

// HandleEject handles POST /api/session/eject
func (h *StateHandler) HandleEject(w http.ResponseWriter, r *http.Request) {
	h.intent(w, r, "eject", h.controller.Eject, http.StatusAccepted)
}

// HandlePlayAgain handles POST /api/session/play-again
func (h *StateHandler) HandlePlayAgain(w http.ResponseWriter, r *http.Request) {
	h.intent(w, r, "play_again", h.controller.PlayAgain, http.StatusOK)
}

// HandleMultiplayer answers the multiplayer entry point, which is not offered yet.
func (h *StateHandler) HandleMultiplayer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "multiplayer mode coming soon"})
}

func (h *StateHandler) intent(w http.ResponseWriter, r *http.Request, name string, fn func(context.Context) error, okStatus int) {
	if err := fn(r.Context()); err != nil {
		status := StatusFor(err)
		ev := log.Warn()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Err(err).Str("intent", name).Int("status", status).Msg("intent failed")
		writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: apperr.KindOf(err)})
		return
	}
	writeJSON(w, okStatus, h.controller.Snapshot())
}

// StatusFor maps an intent error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict
	}
	switch apperr.KindOf(err) {
	case apperr.KindRejected:
		return http.StatusUnprocessableEntity
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RegisterStateRoutes registers state and intent routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/session", h.HandleGetSession)
	mux.HandleFunc("POST /api/session/start", h.HandleStart)
	mux.HandleFunc("POST /api/session/eject", h.HandleEject)
	mux.HandleFunc("POST /api/session/play-again", h.HandlePlayAgain)
	mux.HandleFunc("/api/multiplayer", h.HandleMultiplayer)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
