package config

import (
	"os"
	"strings"
)

// Environment variable names for overrides. Secrets (client secret, refresh
// token) are typically injected this way rather than written to the config file.
const (
	EnvConfig                = "DRIVECONNECT_CONFIG"
	EnvClientID              = "DRIVECONNECT_CLIENT_ID"
	EnvClientSecret          = "DRIVECONNECT_CLIENT_SECRET"
	EnvRefreshToken          = "DRIVECONNECT_REFRESH_TOKEN"
	EnvServiceAccountKeyPath = "DRIVECONNECT_SERVICE_ACCOUNT_KEY_PATH"
	EnvServiceAccountSubject = "DRIVECONNECT_SERVICE_ACCOUNT_SUBJECT"
	EnvScopes                = "DRIVECONNECT_SCOPES"
	EnvAccountID             = "DRIVECONNECT_ACCOUNT_ID"
	EnvDatabasePath          = "DRIVECONNECT_DATABASE_PATH"
	EnvWebhookURL            = "DRIVECONNECT_WEBHOOK_URL"
	EnvLogLevel              = "DRIVECONNECT_LOG_LEVEL"
)

// ApplyEnvOverrides mutates cfg with any environment variable overrides.
// Environment values win over config file values but lose to CLI flags.
func ApplyEnvOverrides(cfg *Config) {
	setString(&cfg.OAuth.ClientID, EnvClientID)
	setString(&cfg.OAuth.ClientSecret, EnvClientSecret)
	setString(&cfg.OAuth.RefreshToken, EnvRefreshToken)
	setString(&cfg.OAuth.ServiceAccountKeyPath, EnvServiceAccountKeyPath)
	setString(&cfg.OAuth.ServiceAccountSubject, EnvServiceAccountSubject)
	setString(&cfg.Account.DefaultID, EnvAccountID)
	setString(&cfg.Storage.DatabasePath, EnvDatabasePath)
	setString(&cfg.Webhook.CallbackURL, EnvWebhookURL)
	setString(&cfg.Logging.Level, EnvLogLevel)

	if v := os.Getenv(EnvScopes); v != "" {
		cfg.OAuth.Scopes = strings.Fields(v)
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
