package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	gocache "github.com/patrickmn/go-cache"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/placepin/placepin/internal/common"
	"github.com/placepin/placepin/internal/interfaces"
	"github.com/placepin/placepin/internal/models"
)

const (
	defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

	// Queries shorter than this never reach the vendor API
	minQueryLength = 2

	detailsFields = "place_id,name,formatted_address,geometry,types"
)

// Service wraps the vendor places HTTP API behind the PlacesService
// interface. The vendor client is brought up lazily on first use; a failed
// load is cached until Reset. All outbound calls share one rate limiter.
type Service struct {
	config    *common.PlacesAPIConfig
	kvStorage interfaces.KeyValueStorage
	logger    arbor.ILogger

	httpClient   *http.Client
	limiter      *rate.Limiter
	detailsCache *gocache.Cache

	// baseURL is overridable so tests can point at a local server
	baseURL string

	// loadFn resolves the API credential; overridable in tests
	loadFn func(ctx context.Context) (string, error)

	mu          sync.Mutex
	apiKey      string
	initialized bool
	initErr     error
	inflight    chan struct{}
}

// NewService creates a places service from configuration. The KV storage is
// consulted for a runtime-stored API credential; it may be nil.
func NewService(config *common.PlacesAPIConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	requestTimeout := common.DurationOrDefault(config.RequestTimeout, 30*time.Second)
	rateLimit := common.DurationOrDefault(config.RateLimit, time.Second)
	cacheTTL := common.DurationOrDefault(config.DetailsCacheTTL, 10*time.Minute)

	s := &Service{
		config:    config,
		kvStorage: kvStorage,
		logger:    logger,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter:      rate.NewLimiter(rate.Every(rateLimit), 1),
		detailsCache: gocache.New(cacheTTL, 2*cacheTTL),
		baseURL:      defaultBaseURL,
	}
	s.loadFn = s.resolveCredential
	return s
}

// Initialize lazily brings up the vendor client. Concurrent callers during
// an in-flight load all wait for that single load and share its outcome.
// A load failure is cached as permanent until Reset.
func (s *Service) Initialize(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.initialized {
			err := s.initErr
			s.mu.Unlock()
			return err
		}
		if s.inflight != nil {
			done := s.inflight
			s.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		done := make(chan struct{})
		s.inflight = done
		s.mu.Unlock()

		apiKey, err := s.loadFn(ctx)

		s.mu.Lock()
		s.initialized = true
		s.initErr = err
		s.apiKey = apiKey
		s.inflight = nil
		s.mu.Unlock()
		close(done)

		if err != nil {
			s.logger.Error().Err(err).Msg("Places client initialization failed")
		} else {
			s.logger.Info().Msg("Places client initialized")
		}
		return err
	}
}

// Reset clears a cached initialization outcome so the next Initialize
// attempts a fresh load. A load already in flight is left alone.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight != nil {
		return
	}

	s.initialized = false
	s.initErr = nil
	s.apiKey = ""
	s.logger.Debug().Msg("Places client reset")
}

// resolveCredential resolves the vendor API key from the environment, the
// KV store, or the config fallback, in that order.
func (s *Service) resolveCredential(ctx context.Context) (string, error) {
	apiKey, err := common.ResolveAPIKey(ctx, s.kvStorage, "places_api_key", s.config.APIKey)
	if err != nil || strings.TrimSpace(apiKey) == "" {
		return "", &models.InitializationError{Reason: "places API credential missing", Err: err}
	}
	return apiKey, nil
}

func (s *Service) currentKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey
}

// SearchPlaces returns autocomplete candidates for a free-text query.
// Candidates carry no geometry; GetPlaceDetails resolves the full record.
func (s *Service) SearchPlaces(ctx context.Context, query string) ([]models.Place, error) {
	trimmed := strings.TrimSpace(query)
	if utf8.RuneCountInString(trimmed) < minQueryLength {
		return []models.Place{}, nil
	}

	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("input", trimmed)
	params.Set("key", s.currentKey())
	if s.config.Country != "" {
		params.Set("components", "country:"+strings.ToLower(s.config.Country))
	}
	if s.config.PlaceTypes != "" {
		params.Set("types", s.config.PlaceTypes)
	}

	var result autocompleteResponse
	if err := s.getJSON(ctx, "/autocomplete/json", params, &result); err != nil {
		return nil, err
	}

	switch result.Status {
	case statusOK:
	case statusZeroResults:
		return []models.Place{}, nil
	default:
		s.logger.Warn().
			Str("status", result.Status).
			Str("query", trimmed).
			Msg("Autocomplete returned non-success status")
		return nil, &models.SearchError{Status: result.Status, Message: result.ErrorMessage}
	}

	predictions := result.Predictions
	if s.config.MaxResults > 0 && len(predictions) > s.config.MaxResults {
		predictions = predictions[:s.config.MaxResults]
	}

	places := make([]models.Place, 0, len(predictions))
	for _, p := range predictions {
		name := p.StructuredFormatting.MainText
		if name == "" {
			name = p.Description
		}
		address := p.StructuredFormatting.SecondaryText
		if address == "" {
			address = p.Description
		}
		places = append(places, models.Place{
			ID:      p.PlaceID,
			Name:    name,
			Address: address,
			Types:   p.Types,
		})
	}

	s.logger.Debug().
		Str("query", trimmed).
		Int("count", len(places)).
		Msg("Autocomplete search completed")

	return places, nil
}

// GetPlaceDetails resolves the complete place record for an identifier.
// Responses are cached for the configured TTL.
func (s *Service) GetPlaceDetails(ctx context.Context, placeID string) (*models.Place, error) {
	id := strings.TrimSpace(placeID)
	if id == "" {
		return nil, &models.DetailsError{PlaceID: placeID, Err: fmt.Errorf("place identifier is required")}
	}

	if cached, found := s.detailsCache.Get(id); found {
		place := cached.(models.Place)
		return &place, nil
	}

	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("place_id", id)
	params.Set("fields", detailsFields)
	params.Set("key", s.currentKey())

	var result detailsResponse
	if err := s.getJSON(ctx, "/details/json", params, &result); err != nil {
		return nil, &models.DetailsError{PlaceID: id, Err: err}
	}

	if result.Status != statusOK || result.Result == nil {
		s.logger.Warn().
			Str("status", result.Status).
			Str("place_id", id).
			Msg("Details returned non-success status")
		return nil, &models.DetailsError{
			PlaceID: id,
			Err:     &models.SearchError{Status: result.Status, Message: result.ErrorMessage},
		}
	}

	place := toPlace(*result.Result)
	s.detailsCache.Set(id, place, gocache.DefaultExpiration)

	s.logger.Debug().
		Str("place_id", id).
		Bool("has_geometry", place.HasGeometry()).
		Msg("Place details resolved")

	return &place, nil
}

// getJSON performs a GET against the vendor API and decodes the response
func (s *Service) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := s.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vendor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &models.SearchError{
			Status:  fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message: strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode vendor response: %w", err)
	}

	return nil
}

// toPlace converts a vendor place record into the domain model, normalizing
// geometry to plain numbers at this single boundary.
func toPlace(r placeResult) models.Place {
	return models.Place{
		ID:       r.PlaceID,
		Name:     r.Name,
		Address:  r.FormattedAddress,
		Geometry: normalizeGeometry(r.Geometry),
		Types:    r.Types,
	}
}
