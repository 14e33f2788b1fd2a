package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads the config file at path, applies defaults and environment
// overrides, and validates the result. A missing file is not an error —
// the connector runs on defaults plus environment variables.
// An empty path means "use the DRIVECONNECT_CONFIG env var or nothing".
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	cfg := DefaultConfig()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decodeFile decodes TOML at path into cfg. Unset fields retain whatever
// values cfg already carries (the defaults).
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures deep inside the token or request path.
func (c *Config) Validate() error {
	if c.Account.DefaultID == "" {
		return fmt.Errorf("config: account.default_id must not be empty")
	}

	if c.OAuth.TokenURL == "" {
		return fmt.Errorf("config: oauth.token_url must not be empty")
	}

	if c.API.BaseURL == "" {
		return fmt.Errorf("config: api.base_url must not be empty")
	}

	// Refresh-token mode needs a client id/secret for the token exchange.
	// Service-account mode does not.
	if c.OAuth.ServiceAccountKeyPath == "" && c.OAuth.ClientID != "" && c.OAuth.ClientSecret == "" {
		return fmt.Errorf("config: oauth.client_secret required when oauth.client_id is set")
	}

	if c.Network.RateLimit < 0 {
		return fmt.Errorf("config: network.rate_limit must not be negative")
	}

	return nil
}
