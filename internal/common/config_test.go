package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placepin/placepin/internal/interfaces"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "300ms", cfg.Workflow.Debounce)
	assert.Equal(t, 15, cfg.Map.SelectionZoom)
	assert.Equal(t, "15s", cfg.Map.SurfaceReadyTimeout)
	assert.Equal(t, 10, cfg.PlacesAPI.MaxResults)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
environment = "production"

[server]
port = 9000

[workflow]
debounce = "500ms"
`), 0644))

	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(override, []byte(`
[server]
port = 9100
`), 0644))

	cfg, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9100, cfg.Server.Port, "later file wins")
	assert.Equal(t, "500ms", cfg.Workflow.Debounce)
	assert.Equal(t, "localhost", cfg.Server.Host, "untouched values keep defaults")
}

// Duration values in TOML files are strings; loading a file shaped like the
// shipped placepin.toml must succeed and the values must parse.
func TestLoadFromFiles_ParsesDurationStrings(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "placepin.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[places_api]
rate_limit = "250ms"
request_timeout = "5s"
details_cache_ttl = "1m"

[workflow]
debounce = "300ms"

[map]
surface_ready_timeout = "15s"

[sessions]
idle_timeout = "30m"
`), 0644))

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, DurationOrDefault(cfg.PlacesAPI.RateLimit, 0))
	assert.Equal(t, 5*time.Second, DurationOrDefault(cfg.PlacesAPI.RequestTimeout, 0))
	assert.Equal(t, time.Minute, DurationOrDefault(cfg.PlacesAPI.DetailsCacheTTL, 0))
	assert.Equal(t, 300*time.Millisecond, DurationOrDefault(cfg.Workflow.Debounce, 0))
	assert.Equal(t, 15*time.Second, DurationOrDefault(cfg.Map.SurfaceReadyTimeout, 0))
	assert.Equal(t, 30*time.Minute, DurationOrDefault(cfg.Sessions.IdleTimeout, 0))
}

func TestDurationOrDefault(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, DurationOrDefault("250ms", time.Second))
	assert.Equal(t, time.Second, DurationOrDefault("", time.Second), "empty falls back")
	assert.Equal(t, time.Second, DurationOrDefault("soon", time.Second), "malformed falls back")
}

func TestLoadFromFiles_EnvOverridesFiles(t *testing.T) {
	t.Setenv("PLACEPIN_SERVER_PORT", "9999")
	t.Setenv("PLACEPIN_WORKFLOW_DEBOUNCE", "150ms")
	t.Setenv("PLACEPIN_PLACES_COUNTRY", "au")

	cfg, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "150ms", cfg.Workflow.Debounce)
	assert.Equal(t, "au", cfg.PlacesAPI.Country)
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := NewDefaultConfig()

	ApplyFlagOverrides(cfg, 7070, "0.0.0.0")
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Zero values leave config alone
	ApplyFlagOverrides(cfg, 0, "")
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Server.Port = 99999
	assert.Error(t, cfg.Validate())
}

// stubKV implements interfaces.KeyValueStorage for resolution tests
type stubKV struct {
	values map[string]string
}

func (s *stubKV) Get(ctx context.Context, key string) (string, error) {
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return "", interfaces.ErrKeyNotFound
}

func (s *stubKV) Set(ctx context.Context, key, value, description string) error {
	s.values[key] = value
	return nil
}

func (s *stubKV) Delete(ctx context.Context, key string) error {
	delete(s.values, key)
	return nil
}

func (s *stubKV) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	return nil, nil
}

func (s *stubKV) GetAll(ctx context.Context) (map[string]string, error) {
	return s.values, nil
}

func TestResolveAPIKey_Precedence(t *testing.T) {
	ctx := context.Background()
	kv := &stubKV{values: map[string]string{"places_api_key": "from-kv"}}

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("PLACEPIN_PLACES_API_KEY", "from-env")
		got, err := ResolveAPIKey(ctx, kv, "places_api_key", "from-config")
		require.NoError(t, err)
		assert.Equal(t, "from-env", got)
	})

	t.Run("kv store beats config", func(t *testing.T) {
		got, err := ResolveAPIKey(ctx, kv, "places_api_key", "from-config")
		require.NoError(t, err)
		assert.Equal(t, "from-kv", got)
	})

	t.Run("config fallback", func(t *testing.T) {
		got, err := ResolveAPIKey(ctx, &stubKV{values: map[string]string{}}, "places_api_key", "from-config")
		require.NoError(t, err)
		assert.Equal(t, "from-config", got)
	})

	t.Run("nothing found", func(t *testing.T) {
		_, err := ResolveAPIKey(ctx, &stubKV{values: map[string]string{}}, "places_api_key", "")
		assert.Error(t, err)
	})
}
