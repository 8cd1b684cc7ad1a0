package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/placepin/placepin/internal/interfaces"
)

// MapRetrier clears a terminal map failure so the next selection retries
type MapRetrier interface {
	Retry()
}

// MapHandler exposes map lifecycle operations
type MapHandler struct {
	places interfaces.PlacesService
	binder MapRetrier
	logger arbor.ILogger
}

// NewMapHandler creates a new map handler
func NewMapHandler(places interfaces.PlacesService, binder MapRetrier, logger arbor.ILogger) *MapHandler {
	return &MapHandler{
		places: places,
		binder: binder,
		logger: logger,
	}
}

// HandleRetry clears cached initialization failures in both the places
// client and the map binder. The next search or selection attempts a fresh
// load instead of failing fast.
func (h *MapHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	h.places.Reset()
	h.binder.Retry()

	h.logger.Info().Msg("Initialization failures cleared for retry")
	WriteSuccess(w, "Retry armed; next operation attempts a fresh initialization")
}
