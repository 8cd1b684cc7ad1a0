package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventSuggestionsUpdated fires after a search task commits its results.
	EventSuggestionsUpdated EventType = "suggestions_updated"
	// EventPlaceSelected fires when a selection is committed to state.
	EventPlaceSelected EventType = "place_selected"
	// EventHistoryUpdated fires after the history list changes.
	EventHistoryUpdated EventType = "history_updated"
	// EventSearchFailed fires when a search task fails with a classified error.
	EventSearchFailed EventType = "search_failed"
	// EventMapInitFailed fires when the map surface never became ready or
	// map construction failed. Carries a retry hint for the UI.
	EventMapInitFailed EventType = "map_init_failed"
	// EventMapReady fires once the map binding adapter has a live map.
	EventMapReady EventType = "map_ready"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the in-process pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes an event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
