package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placepin/placepin/internal/common"
	"github.com/placepin/placepin/internal/models"
	"github.com/placepin/placepin/internal/services/events"
	"github.com/placepin/placepin/internal/services/state"
	"github.com/placepin/placepin/internal/services/workflow"
)

// fakePlaces implements interfaces.PlacesService for handler tests
type fakePlaces struct {
	searchFn  func(ctx context.Context, query string) ([]models.Place, error)
	detailsFn func(ctx context.Context, placeID string) (*models.Place, error)
	initErr   error
}

func (f *fakePlaces) Initialize(ctx context.Context) error { return f.initErr }
func (f *fakePlaces) Reset()                               { f.initErr = nil }

func (f *fakePlaces) SearchPlaces(ctx context.Context, query string) ([]models.Place, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, query)
	}
	return []models.Place{}, nil
}

func (f *fakePlaces) GetPlaceDetails(ctx context.Context, placeID string) (*models.Place, error) {
	if f.detailsFn != nil {
		return f.detailsFn(ctx, placeID)
	}
	return &models.Place{ID: placeID}, nil
}

type testFixture struct {
	places      *fakePlaces
	registry    *state.Registry
	coordinator *workflow.Coordinator
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	logger := common.GetLogger()
	bus := events.NewService(logger)

	registry, err := state.NewRegistry(&common.SessionsConfig{
		IdleTimeout:   "1m",
		PruneSchedule: "0 */5 * * * *",
	}, bus, logger)
	require.NoError(t, err)
	t.Cleanup(registry.Stop)

	places := &fakePlaces{}
	coordinator := workflow.NewCoordinator(&common.WorkflowConfig{Debounce: "1ms"}, places, registry, bus, logger)
	t.Cleanup(coordinator.Shutdown)

	return &testFixture{places: places, registry: registry, coordinator: coordinator}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleSearch_AcceptsAndSchedules(t *testing.T) {
	f := newFixture(t)
	handler := NewSearchHandler(f.coordinator, f.registry, common.GetLogger())

	req := httptest.NewRequest("POST", "/api/search", strings.NewReader(`{"query": "petronas", "session_id": "s1"}`))
	rec := httptest.NewRecorder()
	handler.HandleSearch(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "s1", body["session_id"])
}

func TestHandleSearch_RejectsBadBodyAndMethod(t *testing.T) {
	f := newFixture(t)
	handler := NewSearchHandler(f.coordinator, f.registry, common.GetLogger())

	req := httptest.NewRequest("POST", "/api/search", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	handler.HandleSearch(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest("GET", "/api/search", nil)
	rec = httptest.NewRecorder()
	handler.HandleSearch(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleState_ReturnsSnapshot(t *testing.T) {
	f := newFixture(t)
	handler := NewSearchHandler(f.coordinator, f.registry, common.GetLogger())

	f.registry.Get("s1").SetLoading("towers")

	req := httptest.NewRequest("GET", "/api/state?session_id=s1", nil)
	rec := httptest.NewRecorder()
	handler.HandleState(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot state.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, "s1", snapshot.SessionID)
	assert.Equal(t, "towers", snapshot.Query)
	assert.True(t, snapshot.Loading)
}

func TestHandleSelect_EnvelopeAndBareShapes(t *testing.T) {
	bodies := map[string]string{
		"envelope": `{"session_id": "s1", "query": "towers", "place": {"id": "pid-1", "name": "Towers"}}`,
		"bare":     `{"id": "pid-1", "name": "Towers"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.places.detailsFn = func(ctx context.Context, placeID string) (*models.Place, error) {
				return &models.Place{
					ID:       placeID,
					Name:     "Towers",
					Geometry: &models.Geometry{Location: models.LatLng{Lat: 3.14, Lng: 101.69}},
				}, nil
			}
			handler := NewSelectHandler(f.coordinator, common.GetLogger())

			req := httptest.NewRequest("POST", "/api/select", strings.NewReader(body))
			rec := httptest.NewRecorder()
			handler.HandleSelect(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			response := decodeBody(t, rec)
			assert.Equal(t, "success", response["status"])
			assert.NotContains(t, response, "warning")
		})
	}
}

func TestHandleSelect_RequiresIDOrGeometry(t *testing.T) {
	f := newFixture(t)
	handler := NewSelectHandler(f.coordinator, common.GetLogger())

	req := httptest.NewRequest("POST", "/api/select", strings.NewReader(`{"name": "No ID"}`))
	rec := httptest.NewRecorder()
	handler.HandleSelect(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSelect_DetailsFailureMapsToBadGateway(t *testing.T) {
	f := newFixture(t)
	f.places.detailsFn = func(ctx context.Context, placeID string) (*models.Place, error) {
		return nil, &models.DetailsError{PlaceID: placeID, Err: errors.New("vendor down")}
	}
	handler := NewSelectHandler(f.coordinator, common.GetLogger())

	req := httptest.NewRequest("POST", "/api/select", strings.NewReader(`{"id": "pid-1"}`))
	rec := httptest.NewRecorder()
	handler.HandleSelect(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleSelect_InitFailureMapsToServiceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.places.detailsFn = func(ctx context.Context, placeID string) (*models.Place, error) {
		return nil, &models.InitializationError{Reason: "places API credential missing"}
	}
	handler := NewSelectHandler(f.coordinator, common.GetLogger())

	req := httptest.NewRequest("POST", "/api/select", strings.NewReader(`{"id": "pid-1"}`))
	rec := httptest.NewRecorder()
	handler.HandleSelect(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleSelect_NoGeometryWarnsButSucceeds(t *testing.T) {
	f := newFixture(t)
	f.places.detailsFn = func(ctx context.Context, placeID string) (*models.Place, error) {
		return &models.Place{ID: placeID, Name: "Flat"}, nil
	}
	handler := NewSelectHandler(f.coordinator, common.GetLogger())

	req := httptest.NewRequest("POST", "/api/select", strings.NewReader(`{"id": "pid-1"}`))
	rec := httptest.NewRecorder()
	handler.HandleSelect(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	response := decodeBody(t, rec)
	assert.Contains(t, response["warning"], "no location data")
}

func TestHistoryHandlers_ListAndClear(t *testing.T) {
	f := newFixture(t)
	handler := NewHistoryHandler(f.registry, common.GetLogger())

	store := f.registry.Get("s1")
	store.RecordHistory(context.Background(), "q", models.Place{ID: "pid-1", Name: "Towers"})

	req := httptest.NewRequest("GET", "/api/history?session_id=s1", nil)
	rec := httptest.NewRecorder()
	handler.ListHistoryHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])

	req = httptest.NewRequest("DELETE", "/api/history?session_id=s1", nil)
	rec = httptest.NewRecorder()
	handler.ClearHistoryHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, store.History())
}

func TestMapHandler_RetryResetsFailures(t *testing.T) {
	f := newFixture(t)
	f.places.initErr = &models.InitializationError{Reason: "credential missing"}

	retrier := &stubRetrier{}
	handler := NewMapHandler(f.places, retrier, common.GetLogger())

	req := httptest.NewRequest("POST", "/api/map/retry", nil)
	rec := httptest.NewRecorder()
	handler.HandleRetry(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, retrier.called)
	assert.NoError(t, f.places.Initialize(context.Background()), "places failure cleared by reset")
}

type stubRetrier struct {
	called bool
}

func (s *stubRetrier) Retry() { s.called = true }

func TestWebSocket_CreateMapRequiresAnnouncedSurface(t *testing.T) {
	logger := common.GetLogger()
	bus := events.NewService(logger)
	handler := NewWebSocketHandler(bus, logger, &common.WebSocketConfig{})

	err := handler.CreateMap("map-1", models.LatLng{Lat: 1, Lng: 2})
	require.Error(t, err)

	var surfaceErr *models.SurfaceNotFoundError
	require.True(t, errors.As(err, &surfaceErr))
	assert.Equal(t, "map-1", surfaceErr.SurfaceID)
}
