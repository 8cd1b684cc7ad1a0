package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/placepin/placepin/internal/common"
	"github.com/placepin/placepin/internal/handlers"
	"github.com/placepin/placepin/internal/interfaces"
	"github.com/placepin/placepin/internal/services/events"
	"github.com/placepin/placepin/internal/services/kv"
	"github.com/placepin/placepin/internal/services/mapbind"
	"github.com/placepin/placepin/internal/services/places"
	"github.com/placepin/placepin/internal/services/state"
	"github.com/placepin/placepin/internal/services/workflow"
	badgerstore "github.com/placepin/placepin/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	DB        *badgerstore.BadgerDB
	KVStorage interfaces.KeyValueStorage

	// Event-driven services
	EventService interfaces.EventService

	// Core services
	KVService       *kv.Service
	PlacesService   interfaces.PlacesService
	SessionRegistry *state.Registry
	Coordinator     *workflow.Coordinator
	MapBinder       *mapbind.Binder

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	WSHandler       *handlers.WebSocketHandler
	SearchHandler   *handlers.SearchHandler
	SelectHandler   *handlers.SelectHandler
	HistoryHandler  *handlers.HistoryHandler
	MapHandler      *handlers.MapHandler
	SettingsHandler *handlers.SettingsHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Storage
	db, err := badgerstore.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.DB = db
	app.KVStorage = badgerstore.NewKVStorage(db, logger)

	// Event bus must exist before anything that publishes or subscribes
	app.EventService = events.NewService(logger)

	// WebSocket handler doubles as the map controller: map commands are
	// delivered to the browser map layer over the socket
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger, &cfg.WebSocket)

	// Core services
	app.KVService = kv.NewService(app.KVStorage, logger)
	app.PlacesService = places.NewService(&cfg.PlacesAPI, app.KVStorage, logger)

	registry, err := state.NewRegistry(&cfg.Sessions, app.EventService, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session registry: %w", err)
	}
	app.SessionRegistry = registry

	app.Coordinator = workflow.NewCoordinator(&cfg.Workflow, app.PlacesService, registry, app.EventService, logger)

	binder, err := mapbind.NewBinder(&cfg.Map, app.WSHandler, app.EventService, logger)
	if err != nil {
		registry.Stop()
		db.Close()
		return nil, fmt.Errorf("failed to initialize map binder: %w", err)
	}
	app.MapBinder = binder

	// Binder and websocket handler reference each other; the reverse link
	// is set after both exist
	app.WSHandler.SetSurfaceNotifier(binder)

	// HTTP handlers
	app.APIHandler = handlers.NewAPIHandler()
	app.SearchHandler = handlers.NewSearchHandler(app.Coordinator, registry, logger)
	app.SelectHandler = handlers.NewSelectHandler(app.Coordinator, logger)
	app.HistoryHandler = handlers.NewHistoryHandler(registry, logger)
	app.MapHandler = handlers.NewMapHandler(app.PlacesService, binder, logger)
	app.SettingsHandler = handlers.NewSettingsHandler(app.KVService, logger)

	logger.Info().Msg("Application initialized")
	return app, nil
}

// Warmup kicks off the places client initialization in the background so
// the first search does not pay the credential-resolution cost. Failure is
// non-fatal here; it surfaces on the first search and can be retried.
func (a *App) Warmup(ctx context.Context) {
	common.SafeGo(a.Logger, "places-warmup", func() {
		if err := a.PlacesService.Initialize(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Places client warmup failed; first search will report it")
		}
	})
}

// Close shuts down all application components in reverse dependency order
func (a *App) Close() error {
	a.Coordinator.Shutdown()
	a.SessionRegistry.Stop()

	if err := a.EventService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Event service close failed")
	}

	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
