package state

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/placepin/placepin/internal/common"
	"github.com/placepin/placepin/internal/interfaces"
	"github.com/placepin/placepin/internal/models"
)

// SelectionEvent is the payload published with EventPlaceSelected.
type SelectionEvent struct {
	SessionID string       `json:"session_id"`
	Place     models.Place `json:"place"`
}

// SuggestionsEvent is the payload published with EventSuggestionsUpdated.
type SuggestionsEvent struct {
	SessionID   string         `json:"session_id"`
	Query       string         `json:"query"`
	Suggestions []models.Place `json:"suggestions"`
}

// HistoryEvent is the payload published with EventHistoryUpdated.
type HistoryEvent struct {
	SessionID string                      `json:"session_id"`
	History   []models.SearchHistoryEntry `json:"history"`
}

// SearchFailedEvent is the payload published with EventSearchFailed.
type SearchFailedEvent struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	Message   string `json:"message"`
}

// Snapshot is a point-in-time copy of one session's view state. Everything
// in it is plain serializable data.
type Snapshot struct {
	SessionID   string                      `json:"session_id"`
	Query       string                      `json:"query"`
	Suggestions []models.Place              `json:"suggestions"`
	Selected    *models.Place               `json:"selected,omitempty"`
	History     []models.SearchHistoryEntry `json:"history"`
	Loading     bool                        `json:"loading"`
	LastError   string                      `json:"last_error,omitempty"`
}

// Store holds the view state for one session: current query, suggestion
// list, committed selection, and recent-search history. All mutations go
// through methods that publish the matching event after the write, so
// subscribers always observe committed state.
type Store struct {
	sessionID string
	events    interfaces.EventService
	logger    arbor.ILogger

	mu          sync.Mutex
	query       string
	suggestions []models.Place
	selected    *models.Place
	history     []models.SearchHistoryEntry
	loading     bool
	lastError   string
	lastActive  time.Time
}

// NewStore creates an empty session store
func NewStore(sessionID string, events interfaces.EventService, logger arbor.ILogger) *Store {
	return &Store{
		sessionID:   sessionID,
		events:      events,
		logger:      logger,
		suggestions: []models.Place{},
		history:     []models.SearchHistoryEntry{},
		lastActive:  time.Now(),
	}
}

// SessionID returns the session this store belongs to
func (s *Store) SessionID() string {
	return s.sessionID
}

// Touch marks the session as recently active
func (s *Store) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the time of the most recent session activity
func (s *Store) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// SetLoading marks a search as in flight and records the active query
func (s *Store) SetLoading(query string) {
	s.mu.Lock()
	s.query = query
	s.loading = true
	s.lastError = ""
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// SetSuggestions commits a search result and clears the loading flag
func (s *Store) SetSuggestions(ctx context.Context, query string, suggestions []models.Place) {
	if suggestions == nil {
		suggestions = []models.Place{}
	}

	s.mu.Lock()
	s.query = query
	s.suggestions = suggestions
	s.loading = false
	s.lastError = ""
	s.lastActive = time.Now()
	s.mu.Unlock()

	s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventSuggestionsUpdated,
		Payload: SuggestionsEvent{
			SessionID:   s.sessionID,
			Query:       query,
			Suggestions: suggestions,
		},
	})
}

// SetError records a failed search and clears the loading flag. The
// suggestion list is left alone so the UI keeps the last good results.
func (s *Store) SetError(ctx context.Context, query string, message string) {
	s.mu.Lock()
	s.loading = false
	s.lastError = message
	s.lastActive = time.Now()
	s.mu.Unlock()

	s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventSearchFailed,
		Payload: SearchFailedEvent{
			SessionID: s.sessionID,
			Query:     query,
			Message:   message,
		},
	})
}

// SetWarning records a non-fatal message without touching the loading flag
func (s *Store) SetWarning(message string) {
	s.mu.Lock()
	s.lastError = message
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// SetSelected commits a place selection. Selection commits before any
// history write; subscribers see the selection event first.
func (s *Store) SetSelected(ctx context.Context, place models.Place) {
	s.mu.Lock()
	selected := place
	s.selected = &selected
	s.lastError = ""
	s.lastActive = time.Now()
	s.mu.Unlock()

	s.events.PublishSync(ctx, interfaces.Event{
		Type: interfaces.EventPlaceSelected,
		Payload: SelectionEvent{
			SessionID: s.sessionID,
			Place:     place,
		},
	})
}

// Selected returns the committed selection, or nil
func (s *Store) Selected() *models.Place {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	selected := *s.selected
	return &selected
}

// RecordHistory adds a resolved selection to the recent-search history.
// Entries are unique by place ID: re-selecting a place moves its entry to
// the front with a fresh timestamp. The list is capped at
// models.HistoryLimit; the oldest entry is evicted.
func (s *Store) RecordHistory(ctx context.Context, query string, place models.Place) {
	s.mu.Lock()

	filtered := make([]models.SearchHistoryEntry, 0, len(s.history)+1)
	for _, entry := range s.history {
		if entry.Place.ID != "" && entry.Place.ID == place.ID {
			continue
		}
		filtered = append(filtered, entry)
	}

	entry := models.SearchHistoryEntry{
		ID:        common.NewHistoryEntryID(),
		Query:     query,
		Place:     place,
		Timestamp: time.Now(),
	}

	s.history = append([]models.SearchHistoryEntry{entry}, filtered...)
	if len(s.history) > models.HistoryLimit {
		s.history = s.history[:models.HistoryLimit]
	}

	history := append([]models.SearchHistoryEntry(nil), s.history...)
	s.lastActive = time.Now()
	s.mu.Unlock()

	s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventHistoryUpdated,
		Payload: HistoryEvent{
			SessionID: s.sessionID,
			History:   history,
		},
	})
}

// History returns a copy of the recent-search history, newest first
func (s *Store) History() []models.SearchHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SearchHistoryEntry(nil), s.history...)
}

// ClearHistory empties the recent-search history
func (s *Store) ClearHistory(ctx context.Context) {
	s.mu.Lock()
	s.history = []models.SearchHistoryEntry{}
	s.lastActive = time.Now()
	s.mu.Unlock()

	s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventHistoryUpdated,
		Payload: HistoryEvent{
			SessionID: s.sessionID,
			History:   []models.SearchHistoryEntry{},
		},
	})
}

// Snapshot returns a point-in-time copy of the full session view state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{
		SessionID:   s.sessionID,
		Query:       s.query,
		Suggestions: append([]models.Place(nil), s.suggestions...),
		History:     append([]models.SearchHistoryEntry(nil), s.history...),
		Loading:     s.loading,
		LastError:   s.lastError,
	}
	if s.selected != nil {
		selected := *s.selected
		snapshot.Selected = &selected
	}
	if snapshot.Suggestions == nil {
		snapshot.Suggestions = []models.Place{}
	}
	if snapshot.History == nil {
		snapshot.History = []models.SearchHistoryEntry{}
	}
	return snapshot
}
