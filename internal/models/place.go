package models

import "time"

// LatLng represents a geographic coordinate as plain numeric data.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Viewport represents a geographic bounding box for a place.
type Viewport struct {
	Northeast LatLng `json:"northeast"`
	Southwest LatLng `json:"southwest"`
}

// Geometry holds the position of a place and an optional recommended viewport.
// Values are always plain numbers by the time they reach this type - vendor
// object shapes are eliminated at the places service boundary.
type Geometry struct {
	Location LatLng    `json:"location"`
	Viewport *Viewport `json:"viewport,omitempty"`
}

// Place is a search result or a fully resolved place. Instances stored in
// application state contain only serializable data and never hold live
// vendor SDK handles. Search candidates may arrive without geometry; a
// details fetch produces the complete record.
type Place struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address,omitempty"`
	Geometry *Geometry `json:"geometry,omitempty"`
	Types    []string  `json:"types,omitempty"`
}

// HasGeometry reports whether the place carries usable position data.
func (p *Place) HasGeometry() bool {
	return p != nil && p.Geometry != nil
}

// HistoryLimit bounds the recent-search history per session. The oldest
// entry is evicted when a new one would exceed the limit.
const HistoryLimit = 20

// SearchHistoryEntry records one successfully resolved selection. Entries
// are unique by the underlying place ID - selecting the same place again
// moves its entry to the front instead of duplicating it.
type SearchHistoryEntry struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Place     Place     `json:"place"`
	Timestamp time.Time `json:"timestamp"`
}

// Marker is a pin rendered on the live map. Markers exist only for the
// current map session and are never persisted.
type Marker struct {
	ID       string `json:"id"`
	Position LatLng `json:"position"`
	Title    string `json:"title"`
}

// MapCommand is an imperative instruction for the browser map layer. The
// map binding adapter emits these; the websocket handler delivers them.
type MapCommand struct {
	Action    string  `json:"action"` // "create_map", "clear_markers", "add_marker", "center", "zoom"
	SurfaceID string  `json:"surface_id,omitempty"`
	Position  *LatLng `json:"position,omitempty"`
	Marker    *Marker `json:"marker,omitempty"`
	Zoom      int     `json:"zoom,omitempty"`
}
