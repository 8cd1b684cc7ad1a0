package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/placepin/placepin/internal/services/state"
)

// HistoryHandler serves and clears the per-session recent-search history
type HistoryHandler struct {
	sessions *state.Registry
	logger   arbor.ILogger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(sessions *state.Registry, logger arbor.ILogger) *HistoryHandler {
	return &HistoryHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// ListHistoryHandler handles GET /api/history - newest entries first
func (h *HistoryHandler) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	store := h.sessions.Get(SessionID(r))
	store.Touch()

	history := store.History()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}

// ClearHistoryHandler handles DELETE /api/history
func (h *HistoryHandler) ClearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	store := h.sessions.Get(SessionID(r))
	store.ClearHistory(r.Context())

	h.logger.Info().Str("session_id", store.SessionID()).Msg("Search history cleared")
	WriteSuccess(w, "History cleared")
}
