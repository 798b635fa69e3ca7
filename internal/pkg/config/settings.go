package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultEndpoint              = "192.168.1.100"
	DefaultUpdateIntervalMinutes = 15
	// MinUpdateIntervalMinutes matches the shortest period a periodic job may use.
	MinUpdateIntervalMinutes = 15
)

var ErrInvalidSettings = errors.New("invalid settings")

// Settings are the user-editable values persisted across restarts.
type Settings struct {
	Endpoint              string `json:"endpoint"`
	UpdateIntervalMinutes int    `json:"update_interval_minutes"`
}

func DefaultSettings() *Settings {
	return &Settings{
		Endpoint:              DefaultEndpoint,
		UpdateIntervalMinutes: DefaultUpdateIntervalMinutes,
	}
}

func DefaultSettingsPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

func (s Settings) UpdateInterval() time.Duration {
	return time.Duration(s.UpdateIntervalMinutes) * time.Minute
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.Endpoint) == "" {
		return fmt.Errorf("%w: endpoint cannot be empty", ErrInvalidSettings)
	}
	if s.UpdateIntervalMinutes < MinUpdateIntervalMinutes {
		return fmt.Errorf("%w: update interval must be at least %d minutes, got %d", ErrInvalidSettings, MinUpdateIntervalMinutes, s.UpdateIntervalMinutes)
	}
	return nil
}

// LoadOrInitializeSettings returns the stored settings, or defaults when none
// can be read. The bool reports whether defaults were used.
func LoadOrInitializeSettings(path string) (bool, *Settings) {
	if settings, err := LoadSettings(path); err == nil {
		return false, settings
	}
	return true, DefaultSettings()
}

func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Settings) SaveTo(path string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
