package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"

	"github.com/driveconnect/driveconnect/internal/store"
)

// ErrServiceAccountKey means service-account mode is selected but the key
// file cannot be read or parsed. Terminal; no network call is made.
var ErrServiceAccountKey = errors.New("token: service account key unusable")

// serviceAccountSource holds the lazily-built JWT token source. The jwt.Config
// is long-lived; the oauth2 library mints short-lived tokens from it.
type serviceAccountSource struct {
	cfg    *jwt.Config
	source oauth2.TokenSource
}

// serviceAccountToken mints (or reuses) a service-account access token.
// Called with p.mu held — the refresh round-trip to Google's identity
// endpoint happens inline on this goroutine only; unrelated goroutines not
// asking for tokens are unaffected.
func (p *Provider) serviceAccountToken(ctx context.Context, acct string) (string, error) {
	if p.saTokens.source == nil {
		if err := p.initServiceAccount(ctx); err != nil {
			return "", err
		}
	}

	tok, err := p.saTokens.source.Token()
	if err != nil {
		return "", &AuthError{
			StatusCode: 401,
			Reason:     fmt.Sprintf("service account token refresh failed: %v", err),
		}
	}

	cached := cachedToken{token: tok.AccessToken, expiresAt: tok.Expiry}
	p.cache[acct] = cached

	// Expiry metadata is persisted so other tooling can inspect token health;
	// the key file itself remains the real credential.
	if p.creds != nil && !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		err := p.creds.UpsertCredential(ctx, store.Credential{
			AccountID:      acct,
			AccessToken:    tok.AccessToken,
			ExpiresAt:      &expiry,
			Scopes:         strings.Join(p.cfg.Scopes, " "),
			ServiceAccount: true,
		})
		if err != nil {
			p.logger.Warn("failed to persist service account token metadata",
				slog.String("account", acct),
				slog.String("error", err.Error()),
			)
		}
	}

	p.logger.Debug("service account token minted",
		slog.String("account", acct),
		slog.Time("expires_at", tok.Expiry),
	)

	return tok.AccessToken, nil
}

// initServiceAccount reads the key file and builds the JWT token source,
// optionally impersonating the configured subject.
func (p *Provider) initServiceAccount(ctx context.Context) error {
	data, err := os.ReadFile(p.cfg.ServiceAccountKeyPath)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrServiceAccountKey, p.cfg.ServiceAccountKeyPath, err)
	}

	cfg, err := google.JWTConfigFromJSON(data, p.cfg.Scopes...)
	if err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrServiceAccountKey, p.cfg.ServiceAccountKeyPath, err)
	}

	if p.cfg.ServiceAccountSubject != "" {
		cfg.Subject = p.cfg.ServiceAccountSubject
	}

	p.saTokens = serviceAccountSource{
		cfg:    cfg,
		source: cfg.TokenSource(ctx),
	}

	p.logger.Info("service account credentials loaded",
		slog.String("key_path", p.cfg.ServiceAccountKeyPath),
		slog.String("subject", p.cfg.ServiceAccountSubject),
	)

	return nil
}
