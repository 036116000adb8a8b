package fetch

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the remote-include endpoint configuration, loaded from a TOML
// file next to the user's settings.
type Config struct {
	// Base URL the reference name is appended to
	BaseURL string `toml:"base_url"`
	// Bearer token sent on every request; empty disables the header
	Token string `toml:"token"`
	// Per-request timeout; zero means DefaultTimeout
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// DefaultTimeout bounds a single remote fetch.
const DefaultTimeout = 10 * time.Second

func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return DefaultTimeout
}

func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	return nil
}

// LoadConfig reads a TOML fetch configuration from path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading fetch config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid fetch config %s: %w", path, err)
	}
	return cfg, nil
}
