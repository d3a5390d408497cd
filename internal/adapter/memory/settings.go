// Package memory holds process-local stores used when no database is configured.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
)

// SettingsStore keeps settings in a map. Contents are lost on restart.
type SettingsStore struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ domain.SettingsStore = (*SettingsStore)(nil)

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{values: make(map[string]string)}
}

func (s *SettingsStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return "", domain.ErrSettingNotFound
	}
	return value, nil
}

func (s *SettingsStore) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

// List returns all settings ordered by key.
func (s *SettingsStore) List(_ context.Context) ([]domain.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := make([]domain.Setting, 0, len(s.values))
	for _, key := range slices.Sorted(maps.Keys(s.values)) {
		settings = append(settings, domain.Setting{Key: key, Value: s.values[key]})
	}
	return settings, nil
}
