package interfaces

import "github.com/placepin/placepin/internal/models"

// MapController is the port through which the map binding adapter drives
// the live map. The websocket handler implements it by forwarding
// imperative commands to the browser map layer.
type MapController interface {
	// CreateMap binds a map instance to the display surface. Fails with
	// *models.SurfaceNotFoundError when no surface with that ID has been
	// registered as ready.
	CreateMap(surfaceID string, center models.LatLng) error

	// ClearMarkers removes every marker from the map.
	ClearMarkers() error

	// AddMarker places a single marker.
	AddMarker(marker models.Marker) error

	// SetCenter re-centers the map.
	SetCenter(position models.LatLng) error

	// SetZoom sets the zoom level.
	SetZoom(level int) error
}
