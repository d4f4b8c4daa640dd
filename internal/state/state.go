// Package state is the device-local key/value storage behind reading progress
// and the signed-in user. Values are plain strings, persisted as one JSON file.
package state

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

const stateFileName = "local_storage.json"

// Store manages persistent string items.
type Store struct {
	path string
	data map[string]string
	mu   sync.RWMutex
}

// NewStore creates or loads the storage file in dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WithStack(err)
	}

	store := &Store{
		path: filepath.Join(dir, stateFileName),
		data: make(map[string]string),
	}
	if err := store.load(); err != nil {
		// Non-fatal - start with empty state
		store.data = make(map[string]string)
	}
	return store, nil
}

// DefaultDir returns XDG_STATE_HOME/<app> or ~/.local/state/<app>
func DefaultDir(app string) string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, app)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", app)
}

// GetItem returns the stored value and whether it exists.
func (s *Store) GetItem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// SetItem stores value under key and flushes to disk.
func (s *Store) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.save()
}

// RemoveItem deletes key and flushes to disk.
func (s *Store) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.save()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(json.Unmarshal(data, &s.data))
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(s.path, data, 0644))
}
