package config

// Default values for configuration options. Layer 0 of the override chain
// (defaults -> config file -> environment -> CLI flags); chosen so the
// connector works against the public Google endpoints without a config file.
const (
	defaultAccountID      = "default"
	defaultTokenURL       = "https://oauth2.googleapis.com/token"
	defaultAuthURL        = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultAPIBase        = "https://www.googleapis.com/drive/v3"
	defaultUploadBase     = "https://www.googleapis.com/upload/drive/v3"
	defaultDatabasePath   = "driveconnect.db"
	defaultRetentionHours = 24
	defaultChannelTTL     = "24h"
	defaultRenewThreshold = "1h"
	defaultRenewSchedule  = "@every 30m"
	defaultListenAddr     = ":8080"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultTimeout        = "30s"
	defaultRateLimit      = 10.0
	defaultBurst          = 5
	defaultUserAgent      = "driveconnect/0.1"
)

// defaultScopes are requested when the config does not name any.
var defaultScopes = []string{
	"https://www.googleapis.com/auth/drive.readonly",
	"https://www.googleapis.com/auth/drive.file",
}

// DefaultConfig returns a Config populated with all default values. Used as
// the starting point for TOML decoding so unset fields retain defaults, and
// as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Account: AccountConfig{DefaultID: defaultAccountID},
		OAuth: OAuthConfig{
			TokenURL: defaultTokenURL,
			AuthURL:  defaultAuthURL,
			Scopes:   append([]string(nil), defaultScopes...),
		},
		API: APIConfig{
			BaseURL:   defaultAPIBase,
			UploadURL: defaultUploadBase,
		},
		Storage: StorageConfig{
			DatabasePath:   defaultDatabasePath,
			RetentionHours: defaultRetentionHours,
		},
		Webhook: WebhookConfig{
			ChannelTTL:     defaultChannelTTL,
			RenewThreshold: defaultRenewThreshold,
			RenewSchedule:  defaultRenewSchedule,
		},
		Serve: ServeConfig{ListenAddr: defaultListenAddr},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Network: NetworkConfig{
			Timeout:   defaultTimeout,
			RateLimit: defaultRateLimit,
			Burst:     defaultBurst,
			UserAgent: defaultUserAgent,
		},
	}
}
