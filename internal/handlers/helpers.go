package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/placepin/placepin/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// SessionID extracts the session identifier from a request. An absent
// identifier maps to the shared default session.
func SessionID(r *http.Request) string {
	if id := r.Header.Get("X-Session-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("session_id")
}

// statusForError maps workflow errors to HTTP status codes
func statusForError(err error) int {
	var initErr *models.InitializationError
	if errors.As(err, &initErr) {
		return http.StatusServiceUnavailable
	}

	var searchErr *models.SearchError
	if errors.As(err, &searchErr) {
		return http.StatusBadGateway
	}

	var detailsErr *models.DetailsError
	if errors.As(err, &detailsErr) {
		return http.StatusBadGateway
	}

	var surfaceErr *models.SurfaceNotFoundError
	if errors.As(err, &surfaceErr) {
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}
