// Package config implements TOML configuration loading for driveconnect with
// environment variable overrides and an optional fsnotify-based watcher for
// hot log-level reload in serve mode. The effective Config is built once at
// startup and passed to component constructors — there is no ambient lookup.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Account AccountConfig `toml:"account"`
	OAuth   OAuthConfig   `toml:"oauth"`
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Webhook WebhookConfig `toml:"webhook"`
	Serve   ServeConfig   `toml:"serve"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
}

// AccountConfig names the account all operations are bound to by default.
// Credentials, checkpoints, and watch channels are keyed by account ID.
type AccountConfig struct {
	DefaultID string `toml:"default_id"`
}

// OAuthConfig holds the Google OAuth2 client settings. Exactly one of the
// refresh-token flow (client id/secret + refresh token) or the service-account
// flow (key path, optional impersonation subject) is used per process.
type OAuthConfig struct {
	ClientID              string   `toml:"client_id"`
	ClientSecret          string   `toml:"client_secret"`
	RefreshToken          string   `toml:"refresh_token"`
	TokenURL              string   `toml:"token_url"`
	AuthURL               string   `toml:"auth_url"`
	Scopes                []string `toml:"scopes"`
	ServiceAccountKeyPath string   `toml:"service_account_key_path"`
	ServiceAccountSubject string   `toml:"service_account_subject"`
}

// APIConfig holds the Drive REST API endpoints. The upload base differs from
// the metadata base because Drive serves media uploads from a separate host.
type APIConfig struct {
	BaseURL   string `toml:"base_url"`
	UploadURL string `toml:"upload_url"`
}

// StorageConfig locates the connector's durable state.
type StorageConfig struct {
	DatabasePath   string `toml:"database_path"`
	RetentionHours int    `toml:"download_retention_hours"`
}

// WebhookConfig controls watch channel registration and renewal.
// CallbackURL must be a publicly reachable HTTPS address; registration
// fails fast when it is unset.
type WebhookConfig struct {
	CallbackURL    string `toml:"callback_url"`
	ChannelTTL     string `toml:"channel_ttl"`
	RenewThreshold string `toml:"renew_threshold"`
	RenewSchedule  string `toml:"renew_schedule"`
}

// ServeConfig controls the HTTP surface exposed by the serve command.
type ServeConfig struct {
	ListenAddr     string   `toml:"listen_addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// LoggingConfig controls log output: level and format ("auto" picks text on
// a terminal and JSON otherwise).
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NetworkConfig controls outbound HTTP behavior toward the Drive API.
// RateLimit is requests per second; 0 disables client-side throttling.
type NetworkConfig struct {
	Timeout   string  `toml:"timeout"`
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
	UserAgent string  `toml:"user_agent"`
}

// Duration parses a config duration string, falling back to def when the
// field is empty or malformed. Config validation warns on malformed values,
// so silent fallback here is acceptable.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}

	return d
}
