package token

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveconnect/driveconnect/internal/config"
	"github.com/driveconnect/driveconnect/internal/store"
)

// fakeCredStore is an in-memory CredentialStore.
type fakeCredStore struct {
	creds map[string]store.Credential
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{creds: make(map[string]store.Credential)}
}

func (f *fakeCredStore) GetCredential(_ context.Context, accountID string) (*store.Credential, error) {
	c, ok := f.creds[accountID]
	if !ok {
		return nil, nil
	}

	return &c, nil
}

func (f *fakeCredStore) UpsertCredential(_ context.Context, c store.Credential) error {
	// Mirror the real store's empty-preserves semantics.
	if prev, ok := f.creds[c.AccountID]; ok && c.RefreshToken == "" {
		c.RefreshToken = prev.RefreshToken
	}

	f.creds[c.AccountID] = c

	return nil
}

// tokenEndpoint is a fake OAuth token endpoint counting exchanges.
type tokenEndpoint struct {
	server    *httptest.Server
	exchanges atomic.Int64
	respond   func(w http.ResponseWriter, r *http.Request)
}

func newTokenEndpoint(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) *tokenEndpoint {
	t.Helper()

	te := &tokenEndpoint{respond: respond}
	te.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		te.exchanges.Add(1)
		te.respond(w, r)
	}))
	t.Cleanup(te.server.Close)

	return te
}

func grantResponse(accessToken string, expiresIn int, refreshToken string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"expires_in":    expiresIn,
			"refresh_token": refreshToken,
			"token_type":    "Bearer",
		})
	}
}

func testProvider(cfg config.OAuthConfig, creds CredentialStore) *Provider {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewProvider(cfg, "acct", creds, http.DefaultClient, logger)
}

func TestTokenExchangeAndCaching(t *testing.T) {
	te := newTokenEndpoint(t, grantResponse("at-1", 3600, ""))

	p := testProvider(config.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RefreshToken: "rt-1",
		TokenURL:     te.server.URL,
	}, nil)

	ctx := context.Background()

	tok, err := p.Token(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok)

	// Second call hits the cache, not the endpoint.
	tok, err = p.Token(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok)
	assert.Equal(t, int64(1), te.exchanges.Load())
}

func TestTokenExchangeSendsRefreshGrant(t *testing.T) {
	var gotForm map[string]string

	te := newTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		gotForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
			"refresh_token": r.PostForm.Get("refresh_token"),
		}

		grantResponse("at-1", 3600, "")(w, r)
	})

	p := testProvider(config.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RefreshToken: "rt-1",
		TokenURL:     te.server.URL,
	}, nil)

	_, err := p.Token(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "refresh_token", gotForm["grant_type"])
	assert.Equal(t, "cid", gotForm["client_id"])
	assert.Equal(t, "csecret", gotForm["client_secret"])
	assert.Equal(t, "rt-1", gotForm["refresh_token"])
}

func TestInvalidateForcesFreshExchange(t *testing.T) {
	te := newTokenEndpoint(t, grantResponse("at-1", 3600, ""))

	p := testProvider(config.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RefreshToken: "rt-1",
		TokenURL:     te.server.URL,
	}, nil)

	ctx := context.Background()

	_, err := p.Token(ctx, "")
	require.NoError(t, err)

	p.Invalidate("")

	_, err = p.Token(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), te.exchanges.Load())
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	te := newTokenEndpoint(t, grantResponse("at-fresh", 3600, ""))

	p := testProvider(config.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RefreshToken: "rt-1",
		TokenURL:     te.server.URL,
	}, nil)

	now := time.Now()
	p.now = func() time.Time { return now }

	ctx := context.Background()

	_, err := p.Token(ctx, "")
	require.NoError(t, err)

	// Advance past the lifetime; the skew window makes it stale earlier.
	now = now.Add(3600*time.Second - 30*time.Second)

	tok, err := p.Token(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "at-fresh", tok)
	assert.Equal(t, int64(2), te.exchanges.Load())
}

func TestRotatedRefreshTokenIsPersisted(t *testing.T) {
	te := newTokenEndpoint(t, grantResponse("at-1", 3600, "rt-rotated"))
	creds := newFakeCredStore()

	p := testProvider(config.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RefreshToken: "rt-initial",
		TokenURL:     te.server.URL,
	}, creds)

	_, err := p.Token(context.Background(), "")
	require.NoError(t, err)

	stored := creds.creds["acct"]
	assert.Equal(t, "at-1", stored.AccessToken)
	assert.Equal(t, "rt-rotated", stored.RefreshToken)
	require.NotNil(t, stored.ExpiresAt)
}

func TestStoredRefreshTokenWinsOverConfig(t *testing.T) {
	var sentRefreshToken string

	te := newTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		sentRefreshToken = r.PostForm.Get("refresh_token")
		grantResponse("at-1", 3600, "")(w, r)
	})

	creds := newFakeCredStore()
	creds.creds["acct"] = store.Credential{AccountID: "acct", RefreshToken: "rt-stored"}

	p := testProvider(config.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RefreshToken: "rt-config",
		TokenURL:     te.server.URL,
	}, creds)

	_, err := p.Token(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "rt-stored", sentRefreshToken)
}

func TestStoredValidAccessTokenShortCircuits(t *testing.T) {
	te := newTokenEndpoint(t, grantResponse("at-should-not-see", 3600, ""))

	creds := newFakeCredStore()
	expires := time.Now().Add(time.Hour)
	creds.creds["acct"] = store.Credential{
		AccountID:    "acct",
		AccessToken:  "at-stored",
		RefreshToken: "rt-stored",
		ExpiresAt:    &expires,
	}

	p := testProvider(config.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		TokenURL:     te.server.URL,
	}, creds)

	tok, err := p.Token(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "at-stored", tok)
	assert.Equal(t, int64(0), te.exchanges.Load())
}

func TestNoRefreshTokenIsAuthError(t *testing.T) {
	p := testProvider(config.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		TokenURL:     "http://127.0.0.1:0",
	}, nil)

	_, err := p.Token(context.Background(), "")
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestRejectedExchangeIsAuthError(t *testing.T) {
	te := newTokenEndpoint(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Token has been expired or revoked.",
		})
	})

	p := testProvider(config.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RefreshToken: "rt-dead",
		TokenURL:     te.server.URL,
	}, nil)

	_, err := p.Token(context.Background(), "")
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
	assert.Contains(t, authErr.Reason, "expired or revoked")
}

func TestMissingAccessTokenInResponseIsAuthError(t *testing.T) {
	te := newTokenEndpoint(t, grantResponse("", 3600, ""))

	p := testProvider(config.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RefreshToken: "rt-1",
		TokenURL:     te.server.URL,
	}, nil)

	_, err := p.Token(context.Background(), "")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}
