package config

import (
	"sync"

	"go.uber.org/zap"
)

// SettingsStore holds the live settings and persists every update.
type SettingsStore struct {
	path string

	mu       sync.RWMutex
	current  Settings
	onChange []func(old, updated Settings)
}

// NewSettingsStore loads the settings at path, writing defaults there on first run.
func NewSettingsStore(path string) (*SettingsStore, error) {
	initialized, settings := LoadOrInitializeSettings(path)
	if initialized {
		zap.L().Info("no stored settings, using defaults", zap.String("path", path))
		if err := settings.SaveTo(path); err != nil {
			return nil, err
		}
	}
	return &SettingsStore{path: path, current: *settings}, nil
}

func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Endpoint is handed to the remote source so endpoint edits apply immediately.
func (s *SettingsStore) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Endpoint
}

// OnChange registers f to run after every successful Update.
func (s *SettingsStore) OnChange(f func(old, updated Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, f)
}

func (s *SettingsStore) Update(updated Settings) error {
	s.mu.Lock()
	if err := updated.SaveTo(s.path); err != nil {
		s.mu.Unlock()
		return err
	}
	old := s.current
	s.current = updated
	hooks := append([]func(old, updated Settings){}, s.onChange...)
	s.mu.Unlock()

	for _, f := range hooks {
		f(old, updated)
	}
	return nil
}
