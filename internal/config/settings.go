package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	configLoader "github.com/andiksetyawan/config"
)

var ErrAlreadyInitialized = errors.New("settings already initialized")

var (
	settingsMu sync.RWMutex
	settings   *AppConfig
)

// Load reads the environment (and envPath when it exists) into an AppConfig
// and validates it.
func Load(envPath string) (*AppConfig, error) {
	loader := configLoader.New()
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			loader = configLoader.New(configLoader.WithEnvPath(envPath))
		}
	}

	cfg := &AppConfig{}
	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Init installs cfg as the process-wide settings. It may only be called once
// per process (see Reset).
func Init(cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	settingsMu.Lock()
	defer settingsMu.Unlock()
	if settings != nil {
		return ErrAlreadyInitialized
	}
	settings = cfg
	return nil
}

// Settings returns the settings installed by Init.
func Settings() *AppConfig {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	if settings == nil {
		panic("config: Settings called before Init")
	}
	return settings
}

// Reset clears the process-wide settings. Used for testing.
func Reset() {
	settingsMu.Lock()
	settings = nil
	settingsMu.Unlock()
}
