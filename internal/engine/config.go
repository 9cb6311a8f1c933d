package engine

import (
	"fmt"
	"time"
)

// Config holds engine timing configuration
type Config struct {
	// InitialTimeout bounds EnsureBootstrap when the caller passes no timeout
	InitialTimeout time.Duration

	// RefreshInterval is the background refresh period once started; zero
	// disables the loop.
	RefreshInterval time.Duration

	// ProviderTimeout bounds each provider fetch; zero leaves fetches bound
	// only by the engine lifetime.
	ProviderTimeout time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		InitialTimeout:  5 * time.Second,
		RefreshInterval: 5 * time.Minute,
		ProviderTimeout: 30 * time.Second,
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.InitialTimeout <= 0 {
		return fmt.Errorf("initial timeout must be positive")
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh interval must not be negative")
	}
	if c.ProviderTimeout < 0 {
		return fmt.Errorf("provider timeout must not be negative")
	}
	return nil
}
