package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/placepin/placepin/internal/common"
	"github.com/placepin/placepin/internal/interfaces"
)

// DefaultSessionID is used when a request carries no session identifier
const DefaultSessionID = "default"

// Registry owns the per-session state stores. Stores are created on first
// use and pruned on a cron schedule once idle past the configured timeout.
type Registry struct {
	events      interfaces.EventService
	logger      arbor.ILogger
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Store

	scheduler *cron.Cron
}

// NewRegistry creates a session registry and starts the prune schedule
func NewRegistry(config *common.SessionsConfig, events interfaces.EventService, logger arbor.ILogger) (*Registry, error) {
	r := &Registry{
		events:      events,
		logger:      logger,
		idleTimeout: common.DurationOrDefault(config.IdleTimeout, 30*time.Minute),
		sessions:    make(map[string]*Store),
		scheduler:   cron.New(cron.WithSeconds()),
	}

	if _, err := r.scheduler.AddFunc(config.PruneSchedule, r.prune); err != nil {
		return nil, fmt.Errorf("invalid session prune schedule %q: %w", config.PruneSchedule, err)
	}
	r.scheduler.Start()

	logger.Debug().
		Str("schedule", config.PruneSchedule).
		Dur("idle_timeout", r.idleTimeout).
		Msg("Session registry started")

	return r, nil
}

// Get returns the store for a session, creating it on first use. An empty
// session ID maps to the shared default session.
func (r *Registry) Get(sessionID string) *Store {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	store, exists := r.sessions[sessionID]
	if !exists {
		store = NewStore(sessionID, r.events, r.logger)
		r.sessions[sessionID] = store
		r.logger.Debug().Str("session_id", sessionID).Msg("Session store created")
	}
	return store
}

// NewSessionID mints a fresh session identifier
func (r *Registry) NewSessionID() string {
	return common.NewSessionID()
}

// Count returns the number of live session stores
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// prune removes session stores idle past the configured timeout. The
// default session is never pruned.
func (r *Registry) prune() {
	cutoff := time.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	var pruned []string
	for id, store := range r.sessions {
		if id == DefaultSessionID {
			continue
		}
		if store.LastActive().Before(cutoff) {
			delete(r.sessions, id)
			pruned = append(pruned, id)
		}
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	if len(pruned) > 0 {
		r.logger.Info().
			Int("pruned", len(pruned)).
			Int("remaining", remaining).
			Msg("Idle sessions pruned")
	}
}

// Stop halts the prune schedule
func (r *Registry) Stop() {
	ctx := r.scheduler.Stop()
	<-ctx.Done()
	r.logger.Debug().Msg("Session registry stopped")
}
