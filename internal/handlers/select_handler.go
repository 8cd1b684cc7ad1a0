package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/placepin/placepin/internal/models"
	"github.com/placepin/placepin/internal/services/workflow"
)

// SelectHandler runs the selection workflow for a chosen candidate
type SelectHandler struct {
	coordinator *workflow.Coordinator
	logger      arbor.ILogger
}

// NewSelectHandler creates a new select handler
func NewSelectHandler(coordinator *workflow.Coordinator, logger arbor.ILogger) *SelectHandler {
	return &SelectHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// selectRequest accepts either an envelope {"place": {...}, "query": "...",
// "session_id": "..."} or a bare place object as the request body. Clients
// historically sent both shapes; both resolve to the same selection.
type selectRequest struct {
	SessionID string
	Query     string
	Place     models.Place
}

func (sr *selectRequest) UnmarshalJSON(data []byte) error {
	var envelope struct {
		SessionID string        `json:"session_id"`
		Query     string        `json:"query"`
		Place     *models.Place `json:"place"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Place != nil {
		sr.SessionID = envelope.SessionID
		sr.Query = envelope.Query
		sr.Place = *envelope.Place
		return nil
	}

	var place models.Place
	if err := json.Unmarshal(data, &place); err != nil {
		return err
	}
	sr.Place = place
	return nil
}

// HandleSelect commits a place selection. A candidate without geometry is
// resolved through a details fetch before commit; the selection and its
// history entry are written atomically from the caller's point of view.
func (h *SelectHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Place.ID == "" && !req.Place.HasGeometry() {
		WriteError(w, http.StatusBadRequest, "Selection requires a place id or geometry")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = SessionID(r)
	}

	selected, err := h.coordinator.SelectPlace(r.Context(), sessionID, req.Query, req.Place)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("place_id", req.Place.ID).
			Msg("Selection failed")
		WriteError(w, statusForError(err), err.Error())
		return
	}

	response := map[string]interface{}{
		"status": "success",
		"place":  selected,
	}

	if !selected.HasGeometry() {
		anomaly := &models.SerializationAnomaly{PlaceID: selected.ID}
		response["warning"] = anomaly.Error()
	}

	WriteJSON(w, http.StatusOK, response)
}
