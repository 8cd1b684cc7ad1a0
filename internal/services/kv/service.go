package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/placepin/placepin/internal/interfaces"
)

// Service provides key/value operations for runtime settings such as the
// vendor API credential. Values live in the Badger store and survive
// restarts; session view state does not go through here.
type Service struct {
	storage interfaces.KeyValueStorage
	logger  arbor.ILogger
}

// NewService creates a new KV service
func NewService(storage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// Get retrieves a value by key
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key cannot be empty")
	}
	return s.storage.Get(ctx, key)
}

// Set stores a key/value pair
func (s *Service) Set(ctx context.Context, key, value, description string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key cannot be empty")
	}

	if err := s.storage.Set(ctx, key, value, description); err != nil {
		return err
	}

	s.logger.Info().Str("key", key).Msg("Key/value pair stored")
	return nil
}

// Delete removes a key/value pair
func (s *Service) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key cannot be empty")
	}
	return s.storage.Delete(ctx, key)
}

// List returns all stored key/value pairs
func (s *Service) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	return s.storage.List(ctx)
}
