package interfaces

import (
	"context"

	"github.com/placepin/placepin/internal/models"
)

// PlacesService defines the vendor places API surface. Implementations own
// every direct vendor call; no retries happen inside the adapter (retry
// policy belongs to the workflow coordinator). All geometry returned from
// this interface is plain numeric data - vendor object shapes never cross
// this boundary.
type PlacesService interface {
	// Initialize lazily brings up the vendor client. Idempotent and safe
	// for concurrent callers: all callers during an in-flight load resolve
	// to the same outcome. A load failure is cached as permanent until
	// Reset is called.
	Initialize(ctx context.Context) error

	// Reset clears a cached initialization failure so the next Initialize
	// attempts a fresh load.
	Reset()

	// SearchPlaces returns candidate places for a free-text query. Queries
	// shorter than 2 characters return an empty list without a vendor
	// call. A vendor ZERO_RESULTS status maps to an empty list; any other
	// non-success status maps to a *models.SearchError.
	SearchPlaces(ctx context.Context, query string) ([]models.Place, error)

	// GetPlaceDetails resolves the complete place record for an
	// identifier. Fails with *models.DetailsError when the identifier is
	// absent or the vendor call fails.
	GetPlaceDetails(ctx context.Context, placeID string) (*models.Place, error)
}
