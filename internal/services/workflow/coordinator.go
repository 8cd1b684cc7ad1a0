package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/placepin/placepin/internal/common"
	"github.com/placepin/placepin/internal/interfaces"
	"github.com/placepin/placepin/internal/models"
	"github.com/placepin/placepin/internal/services/state"
)

// searchTask is one in-flight debounced search. A newer submission cancels
// the previous task; a cancelled or superseded task never mutates state.
type searchTask struct {
	query  string
	cancel context.CancelFunc
}

// Coordinator owns the async search and selection workflows. Searches are
// debounced per session and only the latest submission may commit results.
// Selections run linearly per session under a dedicated lock, so a second
// selection waits for the first to finish instead of interleaving.
type Coordinator struct {
	places   interfaces.PlacesService
	sessions *state.Registry
	events   interfaces.EventService
	logger   arbor.ILogger
	debounce time.Duration

	mu       sync.Mutex
	searches map[string]*searchTask

	selMu      sync.Mutex
	selections map[string]*sync.Mutex
}

// NewCoordinator creates a workflow coordinator
func NewCoordinator(config *common.WorkflowConfig, places interfaces.PlacesService, sessions *state.Registry, events interfaces.EventService, logger arbor.ILogger) *Coordinator {
	return &Coordinator{
		places:     places,
		sessions:   sessions,
		events:     events,
		logger:     logger,
		debounce:   common.DurationOrDefault(config.Debounce, 300*time.Millisecond),
		searches:   make(map[string]*searchTask),
		selections: make(map[string]*sync.Mutex),
	}
}

// SubmitSearch accepts a query for a session and schedules a debounced
// search. Any previous in-flight search for the session is cancelled first;
// results from a superseded search never reach the session store.
func (c *Coordinator) SubmitSearch(sessionID string, query string) {
	store := c.sessions.Get(sessionID)
	store.SetLoading(query)

	taskCtx, cancel := context.WithCancel(context.Background())
	task := &searchTask{query: query, cancel: cancel}

	c.mu.Lock()
	if previous, exists := c.searches[store.SessionID()]; exists {
		previous.cancel()
	}
	c.searches[store.SessionID()] = task
	c.mu.Unlock()

	common.SafeGo(c.logger, "search:"+store.SessionID(), func() {
		c.runSearch(taskCtx, store, task)
	})
}

// runSearch waits out the debounce window, performs the vendor search, and
// commits the outcome only if the task is still the session's latest.
func (c *Coordinator) runSearch(ctx context.Context, store *state.Store, task *searchTask) {
	timer := time.NewTimer(c.debounce)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	suggestions, err := c.places.SearchPlaces(ctx, task.query)

	c.mu.Lock()
	current := c.searches[store.SessionID()] == task
	if current {
		delete(c.searches, store.SessionID())
	}
	c.mu.Unlock()

	if !current || ctx.Err() != nil {
		c.logger.Debug().
			Str("session_id", store.SessionID()).
			Str("query", task.query).
			Msg("Discarding superseded search result")
		return
	}

	if err != nil {
		message := classifySearchError(err)
		c.logger.Warn().
			Err(err).
			Str("session_id", store.SessionID()).
			Str("query", task.query).
			Msg("Search failed")
		store.SetError(context.Background(), task.query, message)
		return
	}

	store.SetSuggestions(context.Background(), task.query, suggestions)
}

// CancelSearch cancels any in-flight search for a session
func (c *Coordinator) CancelSearch(sessionID string) {
	store := c.sessions.Get(sessionID)

	c.mu.Lock()
	if task, exists := c.searches[store.SessionID()]; exists {
		task.cancel()
		delete(c.searches, store.SessionID())
	}
	c.mu.Unlock()
}

// sessionSelectionLock returns the per-session selection lock
func (c *Coordinator) sessionSelectionLock(sessionID string) *sync.Mutex {
	c.selMu.Lock()
	defer c.selMu.Unlock()

	lock, exists := c.selections[sessionID]
	if !exists {
		lock = &sync.Mutex{}
		c.selections[sessionID] = lock
	}
	return lock
}

// SelectPlace runs the selection workflow for a session: resolve geometry
// via a details fetch when the candidate has none, commit the selection to
// state, then record the history entry. The workflow is linear per session.
//
// A candidate that still has no geometry after detail resolution is
// committed anyway with a "no location data" warning; the previous map pin
// is left in place. A failed details fetch aborts the selection entirely:
// no state change and no history entry.
func (c *Coordinator) SelectPlace(ctx context.Context, sessionID string, query string, place models.Place) (*models.Place, error) {
	store := c.sessions.Get(sessionID)

	lock := c.sessionSelectionLock(store.SessionID())
	lock.Lock()
	defer lock.Unlock()

	// A committed selection makes any pending suggestion search moot
	c.CancelSearch(store.SessionID())

	if !place.HasGeometry() && place.ID != "" {
		resolved, err := c.places.GetPlaceDetails(ctx, place.ID)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("session_id", store.SessionID()).
				Str("place_id", place.ID).
				Msg("Selection aborted: details fetch failed")
			return nil, err
		}
		place = *resolved
	}

	// History entries carry the query that led here; a selection made
	// without one (history re-selection, direct pick) falls back to the
	// place's own description
	historyQuery := query
	if historyQuery == "" {
		historyQuery = place.Name
	}
	if historyQuery == "" {
		historyQuery = place.Address
	}

	if !place.HasGeometry() {
		anomaly := &models.SerializationAnomaly{PlaceID: place.ID}
		c.logger.Warn().
			Str("session_id", store.SessionID()).
			Str("place_id", place.ID).
			Msg(anomaly.Error())

		store.SetSelected(ctx, place)
		store.RecordHistory(ctx, historyQuery, place)
		store.SetWarning(anomaly.Error())
		return &place, nil
	}

	// Selection commits before the history write
	store.SetSelected(ctx, place)
	store.RecordHistory(ctx, historyQuery, place)

	c.logger.Info().
		Str("session_id", store.SessionID()).
		Str("place_id", place.ID).
		Str("name", place.Name).
		Msg("Place selected")

	return &place, nil
}

// Shutdown cancels all in-flight searches
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	for id, task := range c.searches {
		task.cancel()
		delete(c.searches, id)
	}
	c.mu.Unlock()
}

// classifySearchError maps a search failure to a user-facing message
func classifySearchError(err error) string {
	var initErr *models.InitializationError
	if errors.As(err, &initErr) {
		return "search unavailable: " + initErr.Reason
	}

	var searchErr *models.SearchError
	if errors.As(err, &searchErr) {
		return searchErr.Error()
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "search cancelled"
	}

	return "search failed: " + err.Error()
}
