package places

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/placepin/placepin/internal/models"
)

// Vendor status codes shared by the autocomplete and details endpoints
const (
	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
)

// autocompleteResponse represents the vendor predictions lookup response
type autocompleteResponse struct {
	Predictions  []prediction `json:"predictions"`
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// prediction represents a single autocomplete candidate. Predictions carry
// no geometry; a details fetch resolves the full place.
type prediction struct {
	PlaceID              string   `json:"place_id"`
	Description          string   `json:"description"`
	Types                []string `json:"types,omitempty"`
	StructuredFormatting struct {
		MainText      string `json:"main_text"`
		SecondaryText string `json:"secondary_text"`
	} `json:"structured_formatting"`
}

// detailsResponse represents the vendor place-details response
type detailsResponse struct {
	Result       *placeResult `json:"result"`
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// placeResult represents a single place record from the vendor API
type placeResult struct {
	PlaceID          string        `json:"place_id"`
	Name             string        `json:"name"`
	FormattedAddress string        `json:"formatted_address,omitempty"`
	Geometry         *wireGeometry `json:"geometry,omitempty"`
	Types            []string      `json:"types,omitempty"`
}

// flexFloat decodes a coordinate that may arrive as a JSON number or as a
// quoted numeric string, depending on vendor API version and call path.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		return nil
	}

	if strings.HasPrefix(trimmed, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return fmt.Errorf("coordinate is not numeric: %q", str)
		}
		*f = flexFloat(value)
		return nil
	}

	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*f = flexFloat(value)
	return nil
}

// wireLatLng accepts both coordinate shapes the vendor emits: the classic
// {lat, lng} pair and the newer {latitude, longitude} pair.
type wireLatLng struct {
	Lat       *flexFloat `json:"lat,omitempty"`
	Lng       *flexFloat `json:"lng,omitempty"`
	Latitude  *flexFloat `json:"latitude,omitempty"`
	Longitude *flexFloat `json:"longitude,omitempty"`
}

// toLatLng resolves whichever field pair is present into plain numbers.
func (w *wireLatLng) toLatLng() (models.LatLng, bool) {
	if w == nil {
		return models.LatLng{}, false
	}
	if w.Lat != nil && w.Lng != nil {
		return models.LatLng{Lat: float64(*w.Lat), Lng: float64(*w.Lng)}, true
	}
	if w.Latitude != nil && w.Longitude != nil {
		return models.LatLng{Lat: float64(*w.Latitude), Lng: float64(*w.Longitude)}, true
	}
	return models.LatLng{}, false
}

// wireBounds represents a vendor bounding box in either coordinate shape
type wireBounds struct {
	Northeast *wireLatLng `json:"northeast,omitempty"`
	Southwest *wireLatLng `json:"southwest,omitempty"`
}

// wireGeometry represents vendor geometry before normalization
type wireGeometry struct {
	Location *wireLatLng `json:"location,omitempty"`
	Viewport *wireBounds `json:"viewport,omitempty"`
}

// normalizeGeometry converts vendor geometry into plain numeric records.
// This is the single point where vendor-specific object shapes are
// eliminated; nothing beyond this package sees a vendor coordinate form.
// Returns nil when no usable location is present.
func normalizeGeometry(g *wireGeometry) *models.Geometry {
	if g == nil {
		return nil
	}

	location, ok := g.Location.toLatLng()
	if !ok {
		return nil
	}

	geometry := &models.Geometry{Location: location}

	if g.Viewport != nil {
		ne, neOK := g.Viewport.Northeast.toLatLng()
		sw, swOK := g.Viewport.Southwest.toLatLng()
		if neOK && swOK {
			geometry.Viewport = &models.Viewport{Northeast: ne, Southwest: sw}
		}
	}

	return geometry
}
