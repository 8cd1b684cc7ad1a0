package places

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexFloat_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{name: "plain number", input: `3.1466`, want: 3.1466},
		{name: "quoted number", input: `"101.6958"`, want: 101.6958},
		{name: "quoted with spaces", input: `" -33.8688 "`, want: -33.8688},
		{name: "negative number", input: `-0.5`, want: -0.5},
		{name: "null leaves zero", input: `null`, want: 0},
		{name: "non-numeric string", input: `"north"`, wantErr: true},
		{name: "object", input: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f flexFloat
			err := json.Unmarshal([]byte(tt.input), &f)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, float64(f), 1e-9)
		})
	}
}

func TestWireLatLng_BothShapes(t *testing.T) {
	t.Run("classic lat lng", func(t *testing.T) {
		var w wireLatLng
		require.NoError(t, json.Unmarshal([]byte(`{"lat": 3.1, "lng": 101.6}`), &w))

		got, ok := w.toLatLng()
		require.True(t, ok)
		assert.InDelta(t, 3.1, got.Lat, 1e-9)
		assert.InDelta(t, 101.6, got.Lng, 1e-9)
	})

	t.Run("latitude longitude", func(t *testing.T) {
		var w wireLatLng
		require.NoError(t, json.Unmarshal([]byte(`{"latitude": "3.1", "longitude": "101.6"}`), &w))

		got, ok := w.toLatLng()
		require.True(t, ok)
		assert.InDelta(t, 3.1, got.Lat, 1e-9)
		assert.InDelta(t, 101.6, got.Lng, 1e-9)
	})

	t.Run("incomplete pair", func(t *testing.T) {
		var w wireLatLng
		require.NoError(t, json.Unmarshal([]byte(`{"lat": 3.1}`), &w))

		_, ok := w.toLatLng()
		assert.False(t, ok)
	})

	t.Run("nil receiver", func(t *testing.T) {
		var w *wireLatLng
		_, ok := w.toLatLng()
		assert.False(t, ok)
	})
}

func TestNormalizeGeometry(t *testing.T) {
	t.Run("nil geometry", func(t *testing.T) {
		assert.Nil(t, normalizeGeometry(nil))
	})

	t.Run("missing location", func(t *testing.T) {
		assert.Nil(t, normalizeGeometry(&wireGeometry{}))
	})

	t.Run("location with viewport", func(t *testing.T) {
		var g wireGeometry
		raw := `{
			"location": {"lat": "3.1466", "lng": 101.6958},
			"viewport": {
				"northeast": {"lat": 3.15, "lng": 101.70},
				"southwest": {"latitude": 3.14, "longitude": 101.69}
			}
		}`
		require.NoError(t, json.Unmarshal([]byte(raw), &g))

		got := normalizeGeometry(&g)
		require.NotNil(t, got)
		assert.InDelta(t, 3.1466, got.Location.Lat, 1e-9)
		assert.InDelta(t, 101.6958, got.Location.Lng, 1e-9)
		require.NotNil(t, got.Viewport)
		assert.InDelta(t, 3.15, got.Viewport.Northeast.Lat, 1e-9)
		assert.InDelta(t, 101.69, got.Viewport.Southwest.Lng, 1e-9)
	})

	t.Run("partial viewport is dropped", func(t *testing.T) {
		var g wireGeometry
		raw := `{
			"location": {"lat": 1, "lng": 2},
			"viewport": {"northeast": {"lat": 3, "lng": 4}}
		}`
		require.NoError(t, json.Unmarshal([]byte(raw), &g))

		got := normalizeGeometry(&g)
		require.NotNil(t, got)
		assert.Nil(t, got.Viewport)
	})
}
