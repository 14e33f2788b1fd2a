package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Account.DefaultID)
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.OAuth.TokenURL)
	assert.Equal(t, "https://www.googleapis.com/drive/v3", cfg.API.BaseURL)
	assert.Equal(t, "https://www.googleapis.com/upload/drive/v3", cfg.API.UploadURL)
	assert.Equal(t, 10.0, cfg.Network.RateLimit)
	assert.Len(t, cfg.OAuth.Scopes, 2)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	content := `
[account]
default_id = "work"

[oauth]
client_id = "cid"
client_secret = "secret"
refresh_token = "rt"

[webhook]
callback_url = "https://example.com/webhook"
channel_ttl = "12h"

[network]
rate_limit = 2.5
`

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "work", cfg.Account.DefaultID)
	assert.Equal(t, "cid", cfg.OAuth.ClientID)
	assert.Equal(t, "https://example.com/webhook", cfg.Webhook.CallbackURL)
	assert.Equal(t, "12h", cfg.Webhook.ChannelTTL)
	assert.Equal(t, 2.5, cfg.Network.RateLimit)

	// Unset fields keep their defaults.
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.OAuth.TokenURL)
	assert.Equal(t, ":8080", cfg.Serve.ListenAddr)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Account.DefaultID)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvAccountID, "env-acct")
	t.Setenv(EnvClientSecret, "env-secret")
	t.Setenv(EnvScopes, "scope-a scope-b scope-c")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-acct", cfg.Account.DefaultID)
	assert.Equal(t, "env-secret", cfg.OAuth.ClientSecret)
	assert.Equal(t, []string{"scope-a", "scope-b", "scope-c"}, cfg.OAuth.Scopes)
}

func TestValidateRejectsMissingClientSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OAuth.ClientID = "cid"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_secret")
}

func TestValidateServiceAccountModeNeedsNoSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OAuth.ClientID = "cid"
	cfg.OAuth.ServiceAccountKeyPath = "/tmp/key.json"

	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNegativeRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network.RateLimit = -1

	assert.Error(t, cfg.Validate())
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, Duration("5m", time.Hour))
	assert.Equal(t, time.Hour, Duration("", time.Hour))
	assert.Equal(t, time.Hour, Duration("garbage", time.Hour))
}
