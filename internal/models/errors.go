package models

import "fmt"

// InitializationError indicates the vendor SDK/client could not be brought
// up (missing or invalid credential, load failure) or the map surface never
// became ready. It is cached as a permanent failure until an explicit reset.
type InitializationError struct {
	Reason string
	Err    error
}

func (e *InitializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("initialization failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("initialization failed: %s", e.Reason)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// SurfaceNotFoundError indicates no display surface with the given ID was
// registered at map construction time. Retryable.
type SurfaceNotFoundError struct {
	SurfaceID string
}

func (e *SurfaceNotFoundError) Error() string {
	return fmt.Sprintf("display surface %q not found", e.SurfaceID)
}

// SearchError carries a non-success, non-empty vendor status from a places
// lookup. ZERO_RESULTS is not an error and never produces a SearchError.
type SearchError struct {
	Status  string
	Message string
}

func (e *SearchError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("place search failed: %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("place search failed: %s", e.Status)
}

// DetailsError indicates a place-details fetch failed or the identifier was
// absent. The selection workflow aborts for that one selection.
type DetailsError struct {
	PlaceID string
	Err     error
}

func (e *DetailsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("place details failed for %q: %v", e.PlaceID, e.Err)
	}
	return fmt.Sprintf("place details failed for %q", e.PlaceID)
}

func (e *DetailsError) Unwrap() error { return e.Err }

// SerializationAnomaly records that a place still has no geometry after
// detail resolution. Non-fatal: the selection degrades to "no location
// data" instead of crashing.
type SerializationAnomaly struct {
	PlaceID string
}

func (e *SerializationAnomaly) Error() string {
	return fmt.Sprintf("no location data for place %q", e.PlaceID)
}
