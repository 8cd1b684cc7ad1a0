package workflow

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placepin/placepin/internal/common"
	"github.com/placepin/placepin/internal/models"
	"github.com/placepin/placepin/internal/services/events"
	"github.com/placepin/placepin/internal/services/state"
)

// fakePlaces implements interfaces.PlacesService for coordinator tests
type fakePlaces struct {
	searchFn     func(ctx context.Context, query string) ([]models.Place, error)
	detailsFn    func(ctx context.Context, placeID string) (*models.Place, error)
	searchCalls  int64
	detailsCalls int64
}

func (f *fakePlaces) Initialize(ctx context.Context) error { return nil }
func (f *fakePlaces) Reset()                               {}

func (f *fakePlaces) SearchPlaces(ctx context.Context, query string) ([]models.Place, error) {
	atomic.AddInt64(&f.searchCalls, 1)
	if f.searchFn != nil {
		return f.searchFn(ctx, query)
	}
	return []models.Place{}, nil
}

func (f *fakePlaces) GetPlaceDetails(ctx context.Context, placeID string) (*models.Place, error) {
	atomic.AddInt64(&f.detailsCalls, 1)
	if f.detailsFn != nil {
		return f.detailsFn(ctx, placeID)
	}
	return &models.Place{ID: placeID}, nil
}

func newTestCoordinator(t *testing.T, places *fakePlaces, debounce time.Duration) (*Coordinator, *state.Registry) {
	t.Helper()
	logger := common.GetLogger()
	bus := events.NewService(logger)

	registry, err := state.NewRegistry(&common.SessionsConfig{
		IdleTimeout:   "1m",
		PruneSchedule: "0 */5 * * * *",
	}, bus, logger)
	require.NoError(t, err)
	t.Cleanup(registry.Stop)

	coordinator := NewCoordinator(&common.WorkflowConfig{Debounce: debounce.String()}, places, registry, bus, logger)
	t.Cleanup(coordinator.Shutdown)
	return coordinator, registry
}

func geoPlace(id, name string) models.Place {
	return models.Place{
		ID:   id,
		Name: name,
		Geometry: &models.Geometry{
			Location: models.LatLng{Lat: 3.14, Lng: 101.69},
		},
	}
}

func TestSubmitSearch_DebounceCoalescesRapidQueries(t *testing.T) {
	places := &fakePlaces{
		searchFn: func(ctx context.Context, query string) ([]models.Place, error) {
			return []models.Place{{ID: "r-" + query, Name: query}}, nil
		},
	}
	coordinator, registry := newTestCoordinator(t, places, 20*time.Millisecond)

	// Rapid resubmission within the debounce window cancels the first task
	coordinator.SubmitSearch("s1", "pe")
	coordinator.SubmitSearch("s1", "pet")
	coordinator.SubmitSearch("s1", "petronas")

	store := registry.Get("s1")
	require.Eventually(t, func() bool {
		snapshot := store.Snapshot()
		return !snapshot.Loading && len(snapshot.Suggestions) == 1
	}, time.Second, 5*time.Millisecond)

	snapshot := store.Snapshot()
	assert.Equal(t, "petronas", snapshot.Query)
	assert.Equal(t, "r-petronas", snapshot.Suggestions[0].ID)
	assert.Equal(t, int64(1), atomic.LoadInt64(&places.searchCalls), "superseded submissions never reach the vendor")
}

func TestSubmitSearch_SlowResultFromSupersededTaskIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	places := &fakePlaces{
		searchFn: func(ctx context.Context, query string) ([]models.Place, error) {
			if query == "slow" {
				<-release
			}
			return []models.Place{{ID: "r-" + query, Name: query}}, nil
		},
	}
	coordinator, registry := newTestCoordinator(t, places, time.Millisecond)

	coordinator.SubmitSearch("s1", "slow")
	time.Sleep(10 * time.Millisecond) // let the slow task pass its debounce
	coordinator.SubmitSearch("s1", "fast")

	store := registry.Get("s1")
	require.Eventually(t, func() bool {
		snapshot := store.Snapshot()
		return len(snapshot.Suggestions) == 1 && snapshot.Suggestions[0].ID == "r-fast"
	}, time.Second, 5*time.Millisecond)

	// The slow vendor call finishes after being superseded; its result
	// must never overwrite the committed fast result
	close(release)
	time.Sleep(20 * time.Millisecond)

	snapshot := store.Snapshot()
	assert.Equal(t, "r-fast", snapshot.Suggestions[0].ID)
}

func TestSubmitSearch_FailureCommitsErrorState(t *testing.T) {
	places := &fakePlaces{
		searchFn: func(ctx context.Context, query string) ([]models.Place, error) {
			return nil, &models.SearchError{Status: "REQUEST_DENIED", Message: "key expired"}
		},
	}
	coordinator, registry := newTestCoordinator(t, places, time.Millisecond)

	coordinator.SubmitSearch("s1", "anything")

	store := registry.Get("s1")
	require.Eventually(t, func() bool {
		snapshot := store.Snapshot()
		return !snapshot.Loading && snapshot.LastError != ""
	}, time.Second, 5*time.Millisecond)

	assert.Contains(t, store.Snapshot().LastError, "REQUEST_DENIED")
}

func TestSelectPlace_ResolvesGeometryViaDetails(t *testing.T) {
	places := &fakePlaces{
		detailsFn: func(ctx context.Context, placeID string) (*models.Place, error) {
			resolved := geoPlace(placeID, "Resolved")
			return &resolved, nil
		},
	}
	coordinator, registry := newTestCoordinator(t, places, time.Millisecond)

	selected, err := coordinator.SelectPlace(context.Background(), "s1", "query", models.Place{ID: "pid-1", Name: "Candidate"})
	require.NoError(t, err)
	require.True(t, selected.HasGeometry())
	assert.Equal(t, int64(1), atomic.LoadInt64(&places.detailsCalls))

	store := registry.Get("s1")
	require.NotNil(t, store.Selected())
	assert.Equal(t, "pid-1", store.Selected().ID)

	history := store.History()
	require.Len(t, history, 1)
	assert.Equal(t, "query", history[0].Query)
}

func TestSelectPlace_EmptyQueryFallsBackToPlaceName(t *testing.T) {
	places := &fakePlaces{}
	coordinator, registry := newTestCoordinator(t, places, time.Millisecond)

	_, err := coordinator.SelectPlace(context.Background(), "s1", "", geoPlace("pid-1", "Petronas Towers"))
	require.NoError(t, err)

	history := registry.Get("s1").History()
	require.Len(t, history, 1)
	assert.Equal(t, "Petronas Towers", history[0].Query, "queryless selection records the place name")

	// A place with no name falls back to its address
	nameless := geoPlace("pid-2", "")
	nameless.Address = "Jalan Ampang, Kuala Lumpur"
	_, err = coordinator.SelectPlace(context.Background(), "s1", "", nameless)
	require.NoError(t, err)

	history = registry.Get("s1").History()
	require.Len(t, history, 2)
	assert.Equal(t, "Jalan Ampang, Kuala Lumpur", history[0].Query)
}

func TestSelectPlace_SkipsDetailsWhenGeometryPresent(t *testing.T) {
	places := &fakePlaces{}
	coordinator, _ := newTestCoordinator(t, places, time.Millisecond)

	_, err := coordinator.SelectPlace(context.Background(), "s1", "q", geoPlace("pid-1", "Ready"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), atomic.LoadInt64(&places.detailsCalls))
}

func TestSelectPlace_DetailsFailureAbortsSelection(t *testing.T) {
	places := &fakePlaces{
		detailsFn: func(ctx context.Context, placeID string) (*models.Place, error) {
			return nil, &models.DetailsError{PlaceID: placeID}
		},
	}
	coordinator, registry := newTestCoordinator(t, places, time.Millisecond)

	_, err := coordinator.SelectPlace(context.Background(), "s1", "q", models.Place{ID: "pid-1"})
	require.Error(t, err)

	store := registry.Get("s1")
	assert.Nil(t, store.Selected(), "failed selection leaves no committed state")
	assert.Empty(t, store.History(), "failed selection leaves no history entry")
}

func TestSelectPlace_NoGeometryAfterDetailsDegrades(t *testing.T) {
	places := &fakePlaces{
		detailsFn: func(ctx context.Context, placeID string) (*models.Place, error) {
			return &models.Place{ID: placeID, Name: "Flat"}, nil
		},
	}
	coordinator, registry := newTestCoordinator(t, places, time.Millisecond)

	selected, err := coordinator.SelectPlace(context.Background(), "s1", "q", models.Place{ID: "pid-1"})
	require.NoError(t, err, "missing geometry degrades instead of failing")
	assert.False(t, selected.HasGeometry())

	store := registry.Get("s1")
	require.NotNil(t, store.Selected())
	require.Len(t, store.History(), 1, "degraded selection still appears in history")
	assert.Contains(t, store.Snapshot().LastError, "no location data")
}
