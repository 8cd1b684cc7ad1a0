package state

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placepin/placepin/internal/common"
	"github.com/placepin/placepin/internal/interfaces"
	"github.com/placepin/placepin/internal/models"
	"github.com/placepin/placepin/internal/services/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := common.GetLogger()
	return NewStore("test-session", events.NewService(logger), logger)
}

func placeWithID(id, name string) models.Place {
	return models.Place{
		ID:   id,
		Name: name,
		Geometry: &models.Geometry{
			Location: models.LatLng{Lat: 1, Lng: 2},
		},
	}
}

func TestRecordHistory_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.RecordHistory(ctx, "first", placeWithID("p1", "First"))
	store.RecordHistory(ctx, "second", placeWithID("p2", "Second"))

	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, "p2", history[0].Place.ID)
	assert.Equal(t, "p1", history[1].Place.ID)
	assert.Equal(t, "second", history[0].Query)
}

func TestRecordHistory_DedupesByPlaceID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.RecordHistory(ctx, "one", placeWithID("p1", "Place"))
	store.RecordHistory(ctx, "two", placeWithID("p2", "Other"))
	store.RecordHistory(ctx, "again", placeWithID("p1", "Place"))

	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, "p1", history[0].Place.ID, "re-selection moves entry to front")
	assert.Equal(t, "again", history[0].Query, "entry carries the latest query")
	assert.Equal(t, "p2", history[1].Place.ID)
}

func TestRecordHistory_CapsAtLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < models.HistoryLimit+5; i++ {
		id := fmt.Sprintf("p%d", i)
		store.RecordHistory(ctx, id, placeWithID(id, id))
	}

	history := store.History()
	require.Len(t, history, models.HistoryLimit)
	assert.Equal(t, fmt.Sprintf("p%d", models.HistoryLimit+4), history[0].Place.ID, "newest entry survives")
	assert.Equal(t, "p5", history[len(history)-1].Place.ID, "oldest entries are evicted")
}

func TestClearHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.RecordHistory(ctx, "q", placeWithID("p1", "Place"))
	store.ClearHistory(ctx)

	assert.Empty(t, store.History())
}

func TestSnapshot_IsolatedCopy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.SetSuggestions(ctx, "query", []models.Place{placeWithID("p1", "One")})
	store.SetSelected(ctx, placeWithID("p1", "One"))
	store.RecordHistory(ctx, "query", placeWithID("p1", "One"))

	snapshot := store.Snapshot()
	require.Len(t, snapshot.Suggestions, 1)
	require.NotNil(t, snapshot.Selected)
	require.Len(t, snapshot.History, 1)
	assert.Equal(t, "query", snapshot.Query)
	assert.False(t, snapshot.Loading)

	// Mutating the snapshot must not touch the store
	snapshot.Suggestions[0].Name = "mutated"
	assert.Equal(t, "One", store.Snapshot().Suggestions[0].Name)
}

func TestSetError_ClearsLoadingKeepsSuggestions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.SetSuggestions(ctx, "good", []models.Place{placeWithID("p1", "One")})
	store.SetLoading("bad")
	store.SetError(ctx, "bad", "vendor rejected the request")

	snapshot := store.Snapshot()
	assert.False(t, snapshot.Loading)
	assert.Equal(t, "vendor rejected the request", snapshot.LastError)
	assert.Len(t, snapshot.Suggestions, 1, "last good suggestions survive a failed search")
}

func TestSetSelected_PublishesCommittedState(t *testing.T) {
	logger := common.GetLogger()
	bus := events.NewService(logger)
	store := NewStore("s1", bus, logger)

	received := make(chan SelectionEvent, 1)
	require.NoError(t, bus.Subscribe(interfaces.EventPlaceSelected, func(ctx context.Context, event interfaces.Event) error {
		received <- event.Payload.(SelectionEvent)
		return nil
	}))

	store.SetSelected(context.Background(), placeWithID("p1", "One"))

	select {
	case got := <-received:
		assert.Equal(t, "s1", got.SessionID)
		assert.Equal(t, "p1", got.Place.ID)
	case <-time.After(time.Second):
		t.Fatal("selection event not published")
	}

	require.NotNil(t, store.Selected())
	assert.Equal(t, "p1", store.Selected().ID)
}
