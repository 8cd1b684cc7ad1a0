package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/placepin/placepin/internal/services/state"
	"github.com/placepin/placepin/internal/services/workflow"
)

var validate = validator.New()

// SearchHandler accepts search submissions and serves session state snapshots
type SearchHandler struct {
	coordinator *workflow.Coordinator
	sessions    *state.Registry
	logger      arbor.ILogger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(coordinator *workflow.Coordinator, sessions *state.Registry, logger arbor.ILogger) *SearchHandler {
	return &SearchHandler{
		coordinator: coordinator,
		sessions:    sessions,
		logger:      logger,
	}
}

type searchRequest struct {
	Query     string `json:"query" validate:"max=256"`
	SessionID string `json:"session_id"`
}

// HandleSearch accepts a query and schedules a debounced search. The
// response is immediate; results arrive over the websocket or via a state
// snapshot. Queries shorter than two characters still go through the
// coordinator, which resolves them to an empty suggestion list without a
// vendor call.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid search request: "+err.Error())
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = SessionID(r)
	}

	h.coordinator.SubmitSearch(sessionID, req.Query)

	store := h.sessions.Get(sessionID)
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"session_id": store.SessionID(),
	})
}

// HandleState returns a point-in-time snapshot of the session view state
func (h *SearchHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	store := h.sessions.Get(SessionID(r))
	store.Touch()
	WriteJSON(w, http.StatusOK, store.Snapshot())
}
