package mapbind

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/placepin/placepin/internal/common"
	"github.com/placepin/placepin/internal/interfaces"
	"github.com/placepin/placepin/internal/models"
	"github.com/placepin/placepin/internal/services/state"
)

// MapFailureEvent is the payload published with EventMapInitFailed
type MapFailureEvent struct {
	Reason    string `json:"reason"`
	RetryHint string `json:"retry_hint"`
}

// Binder drives the live map from committed selections. It waits for the
// display surface to announce itself (bounded by a timeout), constructs the
// map exactly once, and keeps exactly one pin: every new selection clears
// existing markers before adding its own.
//
// A surface-ready timeout is terminal until Retry; selections made while
// the map is failed leave the previous pin untouched.
type Binder struct {
	controller interfaces.MapController
	events     interfaces.EventService
	logger     arbor.ILogger

	readyTimeout  time.Duration
	zoom          int
	defaultCenter models.LatLng

	mu         sync.Mutex
	surfaceID  string
	readyCh    chan struct{}
	readyOnce  bool
	mapCreated bool
	failed     bool
	failReason string
	lastPin    *models.Marker
}

// NewBinder creates a map binder and subscribes it to selection events
func NewBinder(config *common.MapConfig, controller interfaces.MapController, events interfaces.EventService, logger arbor.ILogger) (*Binder, error) {
	b := &Binder{
		controller:    controller,
		events:        events,
		logger:        logger,
		readyTimeout:  common.DurationOrDefault(config.SurfaceReadyTimeout, 15*time.Second),
		zoom:          config.SelectionZoom,
		defaultCenter: models.LatLng{Lat: config.DefaultCenter.Lat, Lng: config.DefaultCenter.Lng},
		readyCh:       make(chan struct{}),
	}

	if err := events.Subscribe(interfaces.EventPlaceSelected, b.onPlaceSelected); err != nil {
		return nil, fmt.Errorf("failed to subscribe to selection events: %w", err)
	}

	return b, nil
}

// NotifySurfaceReady records that the display surface exists and has a
// non-zero size. A surface reported with zero dimensions is rejected so the
// map is never constructed into an invisible container.
func (b *Binder) NotifySurfaceReady(surfaceID string, width, height int) error {
	if surfaceID == "" {
		return fmt.Errorf("surface id is required")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("surface %q has zero size (%dx%d)", surfaceID, width, height)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.surfaceID = surfaceID
	if !b.readyOnce {
		b.readyOnce = true
		close(b.readyCh)
	}

	b.logger.Info().
		Str("surface_id", surfaceID).
		Int("width", width).
		Int("height", height).
		Msg("Display surface ready")

	return nil
}

// Retry clears a terminal map failure so the next selection attempts map
// construction again.
func (b *Binder) Retry() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.failed {
		return
	}
	b.failed = false
	b.failReason = ""
	b.logger.Info().Msg("Map failure cleared; next selection will retry")
}

// LastPin returns the marker currently on the map, or nil
func (b *Binder) LastPin() *models.Marker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastPin == nil {
		return nil
	}
	pin := *b.lastPin
	return &pin
}

// onPlaceSelected pins a committed selection on the map. Selections without
// geometry leave the previous pin in place.
func (b *Binder) onPlaceSelected(ctx context.Context, event interfaces.Event) error {
	selection, ok := event.Payload.(state.SelectionEvent)
	if !ok {
		return fmt.Errorf("unexpected selection payload type %T", event.Payload)
	}

	place := selection.Place
	if !place.HasGeometry() {
		b.logger.Debug().
			Str("place_id", place.ID).
			Msg("Selection has no geometry; keeping previous pin")
		return nil
	}

	if err := b.ensureMap(ctx); err != nil {
		return err
	}

	marker := models.Marker{
		ID:       common.NewMarkerID(),
		Position: place.Geometry.Location,
		Title:    place.Name,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// One pin at a time: clear before add, then recenter and zoom
	if err := b.controller.ClearMarkers(); err != nil {
		return fmt.Errorf("failed to clear markers: %w", err)
	}
	if err := b.controller.AddMarker(marker); err != nil {
		return fmt.Errorf("failed to add marker: %w", err)
	}
	if err := b.controller.SetCenter(marker.Position); err != nil {
		return fmt.Errorf("failed to center map: %w", err)
	}
	if err := b.controller.SetZoom(b.zoom); err != nil {
		return fmt.Errorf("failed to set zoom: %w", err)
	}

	b.lastPin = &marker

	b.logger.Info().
		Str("place_id", place.ID).
		Str("marker_id", marker.ID).
		Msg("Selection pinned on map")

	return nil
}

// ensureMap constructs the map on first use, waiting up to the configured
// timeout for the display surface. A timeout is a terminal failure: the map
// is never constructed into a surface that never announced itself, and all
// later attempts fail fast until Retry.
func (b *Binder) ensureMap(ctx context.Context) error {
	b.mu.Lock()
	if b.failed {
		reason := b.failReason
		b.mu.Unlock()
		return &models.InitializationError{Reason: reason}
	}
	if b.mapCreated {
		b.mu.Unlock()
		return nil
	}
	ready := b.readyCh
	b.mu.Unlock()

	select {
	case <-ready:
	case <-time.After(b.readyTimeout):
		return b.failTerminal(ctx, fmt.Sprintf("display surface not ready within %s", b.readyTimeout))
	case <-ctx.Done():
		return ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failed {
		return &models.InitializationError{Reason: b.failReason}
	}
	if b.mapCreated {
		return nil
	}

	if err := b.controller.CreateMap(b.surfaceID, b.defaultCenter); err != nil {
		// A missing surface is retryable; the surface may re-register
		b.logger.Warn().Err(err).Str("surface_id", b.surfaceID).Msg("Map construction failed")
		return err
	}

	b.mapCreated = true
	b.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventMapReady,
		Payload: b.surfaceID,
	})

	b.logger.Info().Str("surface_id", b.surfaceID).Msg("Map constructed")
	return nil
}

// failTerminal records a terminal map failure and announces it with a
// retry hint
func (b *Binder) failTerminal(ctx context.Context, reason string) error {
	b.mu.Lock()
	b.failed = true
	b.failReason = reason
	b.mu.Unlock()

	b.logger.Error().Str("reason", reason).Msg("Map initialization failed")

	b.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventMapInitFailed,
		Payload: MapFailureEvent{
			Reason:    reason,
			RetryHint: "retry via POST /api/map/retry",
		},
	})

	return &models.InitializationError{Reason: reason}
}
