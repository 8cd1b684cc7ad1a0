package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (state events out, surface announcements in)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Search workflow
	mux.HandleFunc("/api/search", s.app.SearchHandler.HandleSearch) // POST - submit a debounced search
	mux.HandleFunc("/api/select", s.app.SelectHandler.HandleSelect) // POST - commit a selection
	mux.HandleFunc("/api/state", s.app.SearchHandler.HandleState)   // GET - session state snapshot

	// API routes - Recent-search history
	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		RouteCRUD(w, r,
			s.app.HistoryHandler.ListHistoryHandler,  // GET
			nil,                                      // POST
			nil,                                      // PUT
			s.app.HistoryHandler.ClearHistoryHandler, // DELETE
		)
	})

	// API routes - Map lifecycle
	mux.HandleFunc("/api/map/retry", s.app.MapHandler.HandleRetry) // POST - clear terminal failures

	// API routes - Runtime settings (vendor credential)
	mux.HandleFunc("/api/settings", s.app.SettingsHandler.ListSettingsHandler)
	mux.HandleFunc("/api/settings/", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			"PUT":    s.app.SettingsHandler.UpdateSettingHandler,
			"DELETE": s.app.SettingsHandler.DeleteSettingHandler,
		})
	})

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
