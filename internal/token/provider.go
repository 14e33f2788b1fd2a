// Package token produces valid bearer tokens for Drive API calls, hiding the
// refresh-token exchange and service-account mechanics behind one Provider.
// The store is the source of truth; the Provider layers a small in-memory
// cache on top and writes every refreshed token back.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/driveconnect/driveconnect/internal/config"
	"github.com/driveconnect/driveconnect/internal/store"
)

// expirySkew is how close to expiry a cached token is still considered valid.
// Refreshing a minute early avoids racing the upstream clock.
const expirySkew = 60 * time.Second

// defaultLifetime is assumed when the token endpoint omits expires_in.
const defaultLifetime = 3600 * time.Second

// shortLifetime triggers a warning: tokens this short usually mean the OAuth
// client is misconfigured upstream.
const shortLifetime = 600 * time.Second

// CredentialStore is the persistence surface the Provider needs.
// *store.Store satisfies it; tests supply fakes.
type CredentialStore interface {
	GetCredential(ctx context.Context, accountID string) (*store.Credential, error)
	UpsertCredential(ctx context.Context, c store.Credential) error
}

// cachedToken is one in-memory access token. A zero expiry means the token
// does not expire locally.
type cachedToken struct {
	token     string
	expiresAt time.Time
}

func (t cachedToken) valid(now time.Time) bool {
	if t.token == "" {
		return false
	}

	if t.expiresAt.IsZero() {
		return true
	}

	return now.Before(t.expiresAt.Add(-expirySkew))
}

// Provider obtains and caches a valid bearer token per account.
//
// The entire token-acquisition path runs under one mutex: two concurrent
// callers needing a token for the same account must not trigger two
// concurrent refresh-token exchanges, because Google may rotate the refresh
// token on use. Serializing unrelated accounts behind the same lock is an
// accepted cost for a connector that is single-account in practice.
type Provider struct {
	cfg        config.OAuthConfig
	creds      CredentialStore // may be nil (no persistence)
	httpClient *http.Client
	logger     *slog.Logger
	defaultID  string

	mu       sync.Mutex
	cache    map[string]cachedToken
	saTokens serviceAccountSource

	// now is a clock hook for tests.
	now func() time.Time
}

// NewProvider creates a token Provider. creds may be nil, in which case
// refreshed tokens are not persisted and only the configured static refresh
// token is available.
func NewProvider(cfg config.OAuthConfig, defaultAccountID string, creds CredentialStore, httpClient *http.Client, logger *slog.Logger) *Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		cfg:        cfg,
		creds:      creds,
		httpClient: httpClient,
		logger:     logger,
		defaultID:  defaultAccountID,
		cache:      make(map[string]cachedToken),
		now:        time.Now,
	}
}

// Token returns a currently-valid bearer token for the account (empty string
// selects the default account). Returns *AuthError when no usable credential
// exists or the token endpoint rejects the exchange.
func (p *Provider) Token(ctx context.Context, accountID string) (string, error) {
	acct := p.resolveAccount(accountID)

	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.cache[acct]; ok && cached.valid(p.now()) {
		return cached.token, nil
	}

	if p.cfg.ServiceAccountKeyPath != "" {
		return p.serviceAccountToken(ctx, acct)
	}

	return p.refreshTokenFlow(ctx, acct)
}

// Invalidate drops the cached token for the account so the next Token call
// performs a fresh acquisition. The persisted refresh token is untouched.
// Idempotent.
func (p *Provider) Invalidate(accountID string) {
	acct := p.resolveAccount(accountID)

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.cache, acct)
}

func (p *Provider) resolveAccount(accountID string) string {
	if accountID == "" {
		return p.defaultID
	}

	return accountID
}

// refreshTokenFlow implements the grant_type=refresh_token exchange.
// Called with p.mu held.
func (p *Provider) refreshTokenFlow(ctx context.Context, acct string) (string, error) {
	refreshToken := p.cfg.RefreshToken
	scopes := ""

	if p.creds != nil {
		rec, err := p.creds.GetCredential(ctx, acct)
		if err != nil {
			return "", fmt.Errorf("token: loading credential for %s: %w", acct, err)
		}

		if rec != nil {
			// A stored access token that is still valid short-circuits the
			// exchange entirely.
			if rec.AccessToken != "" && rec.ExpiresAt != nil {
				stored := cachedToken{token: rec.AccessToken, expiresAt: *rec.ExpiresAt}
				if stored.valid(p.now()) {
					p.cache[acct] = stored
					return stored.token, nil
				}
			}

			if rec.RefreshToken != "" {
				refreshToken = rec.RefreshToken
				scopes = rec.Scopes
			}
		}
	}

	if refreshToken == "" {
		return "", &AuthError{
			StatusCode: http.StatusUnauthorized,
			Reason:     "no refresh token configured for account " + acct,
		}
	}

	resp, err := p.exchange(ctx, refreshToken, scopes)
	if err != nil {
		return "", err
	}

	lifetime := defaultLifetime
	if resp.ExpiresIn > 0 {
		lifetime = time.Duration(resp.ExpiresIn) * time.Second
	}

	expiresAt := p.now().Add(lifetime)
	p.cache[acct] = cachedToken{token: resp.AccessToken, expiresAt: expiresAt}

	if p.creds != nil {
		newScopes := resp.Scope
		if newScopes == "" {
			newScopes = scopes
		}

		cred := store.Credential{
			AccountID:    acct,
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken, // empty preserves the stored one
			ExpiresAt:    &expiresAt,
			Scopes:       newScopes,
		}
		if err := p.creds.UpsertCredential(ctx, cred); err != nil {
			return "", fmt.Errorf("token: persisting refreshed credential: %w", err)
		}
	}

	if lifetime <= shortLifetime {
		p.logger.Warn("access token issued with short lifetime",
			slog.String("account", acct),
			slog.Duration("lifetime", lifetime),
		)
	}

	p.logger.Debug("access token refreshed",
		slog.String("account", acct),
		slog.Time("expires_at", expiresAt),
	)

	return resp.AccessToken, nil
}

// tokenResponse mirrors the token endpoint's JSON response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// exchange POSTs a form-encoded refresh_token grant to the token endpoint.
func (p *Provider) exchange(ctx context.Context, refreshToken, scopes string) (*tokenResponse, error) {
	form := url.Values{
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	if scopes != "" {
		form.Set("scope", scopes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("token: creating exchange request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token: exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("token: reading exchange response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var payload map[string]any

		_ = json.Unmarshal(body, &payload)

		reason := "token endpoint rejected refresh"
		if desc, ok := payload["error_description"].(string); ok && desc != "" {
			reason = desc
		} else if e, ok := payload["error"].(string); ok && e != "" {
			reason = e
		}

		return nil, &AuthError{
			StatusCode: resp.StatusCode,
			Payload:    payload,
			Reason:     reason,
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("token: decoding exchange response: %w", err)
	}

	if tr.AccessToken == "" {
		return nil, &AuthError{
			StatusCode: http.StatusUnauthorized,
			Reason:     "token endpoint returned no access_token",
		}
	}

	return &tr, nil
}
