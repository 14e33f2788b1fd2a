package drive

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
)

// fakeTokens is a TokenSource returning a fixed sequence of tokens and
// recording invalidations.
type fakeTokens struct {
	tokens       []string
	calls        atomic.Int64
	invalidated  atomic.Int64
	errOnRequest error
}

func (f *fakeTokens) Token(_ context.Context, _ string) (string, error) {
	if f.errOnRequest != nil {
		return "", f.errOnRequest
	}

	n := f.calls.Add(1)

	idx := int(n) - 1
	if idx >= len(f.tokens) {
		idx = len(f.tokens) - 1
	}

	return f.tokens[idx], nil
}

func (f *fakeTokens) Invalidate(_ string) {
	f.invalidated.Add(1)
}

func testClient(t *testing.T, baseURL string, tokens TokenSource) *Client {
	t.Helper()

	c := NewClient(Options{
		BaseURL:   baseURL,
		UploadURL: baseURL,
		Tokens:    tokens,
		Account:   "acct",
		UserAgent: "driveconnect-test",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	// No real sleeping in tests.
	c.sleepFunc = func(_ context.Context, _ time.Duration) error { return nil }

	return c
}

func TestDoSuccess(t *testing.T) {
	var gotAuth, gotUA string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "f1"})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, &fakeTokens{tokens: []string{"tok-1"}})

	resp, err := c.Do(context.Background(), http.MethodGet, "/files/f1", nil, nil, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "driveconnect-test", gotUA)
}

func TestDoFatalClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 404, "message": "File not found."},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, &fakeTokens{tokens: []string{"tok-1"}})

	_, err := c.Do(context.Background(), http.MethodGet, "/files/nope", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int64(1), hits.Load())

	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "File not found.", apiErr.Message)
}

func TestDoRetriesServerErrorsToExhaustion(t *testing.T) {
	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, &fakeTokens{tokens: []string{"tok-1"}})

	_, err := c.Do(context.Background(), http.MethodGet, "/changes", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int64(maxAttempts), hits.Load())
	assert.ErrorIs(t, err, ErrServerError)
	assert.Contains(t, err.Error(), "failed after 5 attempts")
}

func TestDoRecoversAfterTransientServerError(t *testing.T) {
	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, &fakeTokens{tokens: []string{"tok-1"}})

	resp, err := c.Do(context.Background(), http.MethodGet, "/changes", nil, nil, nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int64(3), hits.Load())
}

func TestDoUnauthorizedInvalidatesAndRetriesWithFreshToken(t *testing.T) {
	var seen []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))

		if len(seen) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
	}))
	defer srv.Close()

	tokens := &fakeTokens{tokens: []string{"tok-stale", "tok-fresh"}}
	c := testClient(t, srv.URL, tokens)

	resp, err := c.Do(context.Background(), http.MethodGet, "/files", nil, nil, nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, seen, 2)
	assert.Equal(t, "Bearer tok-stale", seen[0])
	assert.Equal(t, "Bearer tok-fresh", seen[1])
	assert.Equal(t, int64(1), tokens.invalidated.Load())
}

func TestDoHonorsRetryAfterOn429(t *testing.T) {
	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, &fakeTokens{tokens: []string{"tok-1"}})

	var slept []time.Duration
	c.sleepFunc = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	resp, err := c.Do(context.Background(), http.MethodGet, "/files", nil, nil, nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, slept, 1)
	assert.Equal(t, 7*time.Second, slept[0])
}

func TestDoTokenFailureIsNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request should never reach the server")
	}))
	defer srv.Close()

	wantErr := &apiAuthFailure{}
	c := testClient(t, srv.URL, &fakeTokens{errOnRequest: wantErr})

	_, err := c.Do(context.Background(), http.MethodGet, "/files", nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

// apiAuthFailure stands in for a token provider error.
type apiAuthFailure struct{}

func (*apiAuthFailure) Error() string { return "credential rejected" }

func TestDoCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, &fakeTokens{tokens: []string{"tok-1"}})

	ctx, cancel := context.WithCancel(context.Background())
	c.sleepFunc = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.Do(ctx, http.MethodGet, "/files", nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusGone, ErrGone},
		{http.StatusTooManyRequests, ErrThrottled},
		{http.StatusInternalServerError, ErrServerError},
		{http.StatusServiceUnavailable, ErrServerError},
	}

	for _, tc := range cases {
		assert.ErrorIs(t, classifyStatus(tc.status), tc.want, "status %d", tc.status)
	}

	assert.NoError(t, classifyStatus(http.StatusOK))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(http.StatusUnauthorized))
	assert.True(t, isRetryable(http.StatusTooManyRequests))
	assert.True(t, isRetryable(http.StatusInternalServerError))
	assert.True(t, isRetryable(http.StatusBadGateway))

	assert.False(t, isRetryable(http.StatusBadRequest))
	assert.False(t, isRetryable(http.StatusForbidden))
	assert.False(t, isRetryable(http.StatusNotFound))
	assert.False(t, isRetryable(http.StatusGone))
}

func TestCalcBackoffBoundsAndGrowth(t *testing.T) {
	c := testClient(t, "http://example.invalid", &fakeTokens{tokens: []string{"t"}})

	for attempt := 0; attempt < 10; attempt++ {
		b := c.calcBackoff(attempt)

		assert.Greater(t, b, time.Duration(0))
		assert.LessOrEqual(t, b, time.Duration(float64(maxBackoff)*(1+jitterFraction)))
	}

	// Later attempts back off more, jitter notwithstanding.
	assert.Greater(t, c.calcBackoff(3), c.calcBackoff(0))
}

func TestEndpointLabelStripsQuery(t *testing.T) {
	assert.Equal(t, "/drive/v3/changes",
		endpointLabel("https://example.com/drive/v3/changes?pageToken=secret"))
}
