package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/placepin/placepin/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	PlacesAPI   PlacesAPIConfig `toml:"places_api"`
	Workflow    WorkflowConfig  `toml:"workflow"`
	Map         MapConfig       `toml:"map"`
	Sessions    SessionsConfig  `toml:"sessions"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// WebSocketConfig contains configuration for WebSocket state/event streaming
type WebSocketConfig struct {
	// Whitelist of event types to broadcast via WebSocket. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"suggestions_updated": "100ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// PlacesAPIConfig contains vendor places API configuration.
// Durations are strings (e.g. "1s") parsed where the service is constructed.
type PlacesAPIConfig struct {
	APIKey          string `toml:"api_key"`           // Vendor places API key
	Country         string `toml:"country"`           // Country restriction for predictions (ISO 3166-1 alpha-2), empty = none
	PlaceTypes      string `toml:"place_types"`       // Type restriction for predictions, empty = none
	RateLimit       string `toml:"rate_limit"`        // Minimum time between vendor API requests, e.g. "1s"
	RequestTimeout  string `toml:"request_timeout"`   // HTTP request timeout, e.g. "30s"
	MaxResults      int    `toml:"max_results"`       // Max suggestion candidates returned per search
	DetailsCacheTTL string `toml:"details_cache_ttl"` // TTL for cached place-details responses, e.g. "10m"
}

// WorkflowConfig contains configuration for the search workflow coordinator
type WorkflowConfig struct {
	Debounce string `toml:"debounce"` // Settle delay before a submitted query hits the vendor API, e.g. "300ms"
}

// MapConfig contains configuration for the map binding adapter
type MapConfig struct {
	SurfaceReadyTimeout string       `toml:"surface_ready_timeout"` // How long to wait for the display surface before failing terminally, e.g. "15s"
	SelectionZoom       int          `toml:"selection_zoom"`        // Zoom level applied when a place is pinned
	DefaultCenter       LatLngConfig `toml:"default_center"`        // Initial map center before any selection
}

// LatLngConfig is a coordinate pair in config form
type LatLngConfig struct {
	Lat float64 `toml:"lat"`
	Lng float64 `toml:"lng"`
}

// SessionsConfig contains configuration for session state lifecycle
type SessionsConfig struct {
	IdleTimeout   string `toml:"idle_timeout"`   // Sessions untouched for this long are pruned, e.g. "30m"
	PruneSchedule string `toml:"prune_schedule"` // Cron schedule (with seconds) for the prune sweep
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in placepin.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		WebSocket: WebSocketConfig{
			// Empty AllowedEvents allows all events
			AllowedEvents: []string{},
			// Throttle suggestion pushes so rapid typing cannot flood clients
			ThrottleIntervals: map[string]string{
				"suggestions_updated": "100ms",
			},
		},
		PlacesAPI: PlacesAPIConfig{
			APIKey:          "", // User must provide API key in config file, KV store, or env
			Country:         "",
			PlaceTypes:      "",
			RateLimit:       "1s", // Respects vendor API quotas
			RequestTimeout:  "30s",
			MaxResults:      10,
			DetailsCacheTTL: "10m",
		},
		Workflow: WorkflowConfig{
			Debounce: "300ms", // Coalesces rapid keystrokes into one vendor request
		},
		Map: MapConfig{
			SurfaceReadyTimeout: "15s",
			SelectionZoom:       15,
			DefaultCenter:       LatLngConfig{Lat: 3.139, Lng: 101.6869}, // Kuala Lumpur
		},
		Sessions: SessionsConfig{
			IdleTimeout:   "30m",
			PruneSchedule: "0 */5 * * * *", // Every 5 minutes
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks structural constraints on the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: PLACEPIN_ENV, fallback: GO_ENV)
	if env := os.Getenv("PLACEPIN_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("PLACEPIN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PLACEPIN_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("PLACEPIN_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("PLACEPIN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("PLACEPIN_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("PLACEPIN_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Places API configuration
	if apiKey := os.Getenv("PLACEPIN_PLACES_API_KEY"); apiKey != "" {
		config.PlacesAPI.APIKey = apiKey
	}
	if country := os.Getenv("PLACEPIN_PLACES_COUNTRY"); country != "" {
		config.PlacesAPI.Country = country
	}
	if placeTypes := os.Getenv("PLACEPIN_PLACES_TYPES"); placeTypes != "" {
		config.PlacesAPI.PlaceTypes = placeTypes
	}
	if rateLimit := os.Getenv("PLACEPIN_PLACES_RATE_LIMIT"); rateLimit != "" {
		if _, err := time.ParseDuration(rateLimit); err == nil {
			config.PlacesAPI.RateLimit = rateLimit
		}
	}
	if requestTimeout := os.Getenv("PLACEPIN_PLACES_REQUEST_TIMEOUT"); requestTimeout != "" {
		if _, err := time.ParseDuration(requestTimeout); err == nil {
			config.PlacesAPI.RequestTimeout = requestTimeout
		}
	}
	if maxResults := os.Getenv("PLACEPIN_PLACES_MAX_RESULTS"); maxResults != "" {
		if mr, err := strconv.Atoi(maxResults); err == nil {
			config.PlacesAPI.MaxResults = mr
		}
	}

	// Workflow configuration
	if debounce := os.Getenv("PLACEPIN_WORKFLOW_DEBOUNCE"); debounce != "" {
		if _, err := time.ParseDuration(debounce); err == nil {
			config.Workflow.Debounce = debounce
		}
	}

	// Map configuration
	if readyTimeout := os.Getenv("PLACEPIN_MAP_SURFACE_READY_TIMEOUT"); readyTimeout != "" {
		if _, err := time.ParseDuration(readyTimeout); err == nil {
			config.Map.SurfaceReadyTimeout = readyTimeout
		}
	}
	if zoom := os.Getenv("PLACEPIN_MAP_SELECTION_ZOOM"); zoom != "" {
		if z, err := strconv.Atoi(zoom); err == nil {
			config.Map.SelectionZoom = z
		}
	}

	// Sessions configuration
	if idleTimeout := os.Getenv("PLACEPIN_SESSIONS_IDLE_TIMEOUT"); idleTimeout != "" {
		if _, err := time.ParseDuration(idleTimeout); err == nil {
			config.Sessions.IdleTimeout = idleTimeout
		}
	}
	if pruneSchedule := os.Getenv("PLACEPIN_SESSIONS_PRUNE_SCHEDULE"); pruneSchedule != "" {
		config.Sessions.PruneSchedule = pruneSchedule
	}
}

// DurationOrDefault parses a config duration string ("300ms", "1s"), falling
// back to the given default when the value is empty or malformed. Config
// durations are carried as strings so they round-trip through TOML.
func DurationOrDefault(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves the vendor places API key by name.
// Resolution order: environment variables -> KV store -> config fallback -> error.
// Environment variables always take precedence so deployments can override
// whatever was stored via the settings UI.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"places_api_key": {"PLACEPIN_PLACES_API_KEY", "GOOGLE_MAPS_API_KEY"},
		"google_api_key": {"PLACEPIN_PLACES_API_KEY", "GOOGLE_MAPS_API_KEY"}, // Legacy KV store key
	}

	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// KV store (medium priority - settings stored at runtime)
	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	// Config value (lowest priority)
	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key %q not found in environment, KV store, or config", name)
}

// LogResolvedConfig emits a sanitized summary of the final configuration
func LogResolvedConfig(config *Config, logger arbor.ILogger) {
	logger.Debug().
		Str("environment", config.Environment).
		Str("badger_path", config.Storage.Badger.Path).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Str("debounce", config.Workflow.Debounce).
		Str("surface_ready_timeout", config.Map.SurfaceReadyTimeout).
		Msg("Resolved configuration (sanitized)")
}
