package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/ternarybob/arbor"

	"github.com/placepin/placepin/internal/interfaces"
	"github.com/placepin/placepin/internal/services/kv"
)

// SettingsHandler manages runtime settings such as the vendor API
// credential. Values persist across restarts via the KV store; a credential
// stored here takes effect on the next places-client initialization.
type SettingsHandler struct {
	kvService *kv.Service
	logger    arbor.ILogger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(kvService *kv.Service, logger arbor.ILogger) *SettingsHandler {
	return &SettingsHandler{
		kvService: kvService,
		logger:    logger,
	}
}

// ListSettingsHandler handles GET /api/settings - lists all settings with
// masked values
func (h *SettingsHandler) ListSettingsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	pairs, err := h.kvService.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list settings")
		WriteError(w, http.StatusInternalServerError, "Failed to list settings")
		return
	}

	// Mask values in list responses - settings may hold credentials
	sanitized := make([]map[string]interface{}, len(pairs))
	for i, pair := range pairs {
		sanitized[i] = map[string]interface{}{
			"key":         pair.Key,
			"value":       maskValue(pair.Value),
			"description": pair.Description,
			"created_at":  pair.CreatedAt,
			"updated_at":  pair.UpdatedAt,
		}
	}

	WriteJSON(w, http.StatusOK, sanitized)
}

// UpdateSettingHandler handles PUT /api/settings/{key} - upserts a setting
func (h *SettingsHandler) UpdateSettingHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	key, ok := h.settingKey(w, r)
	if !ok {
		return
	}

	var req struct {
		Value       string `json:"value"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Value == "" {
		WriteError(w, http.StatusBadRequest, "Value is required")
		return
	}

	if err := h.kvService.Set(r.Context(), key, req.Value, req.Description); err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to store setting")
		WriteError(w, http.StatusInternalServerError, "Failed to store setting")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Setting stored successfully",
		"key":     key,
	})
}

// DeleteSettingHandler handles DELETE /api/settings/{key}
func (h *SettingsHandler) DeleteSettingHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	key, ok := h.settingKey(w, r)
	if !ok {
		return
	}

	if err := h.kvService.Delete(r.Context(), key); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Setting not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to delete setting")
		WriteError(w, http.StatusInternalServerError, "Failed to delete setting")
		return
	}

	WriteSuccess(w, "Setting deleted successfully")
}

// settingKey extracts and decodes the key segment from /api/settings/{key}
func (h *SettingsHandler) settingKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	encodedKey := r.URL.Path[len("/api/settings/"):]

	key, err := url.QueryUnescape(encodedKey)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid key encoding")
		return "", false
	}
	if key == "" {
		WriteError(w, http.StatusBadRequest, "Missing key parameter")
		return "", false
	}
	return key, true
}

// maskValue masks sensitive setting values for list responses.
// If length < 8: returns "••••••••"
// Otherwise: returns first 4 chars + "..." + last 4 chars (e.g., "sk-1...xyz9")
func maskValue(value string) string {
	if len(value) < 8 {
		return "••••••••"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
