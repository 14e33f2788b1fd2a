package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Retry and backoff constants.
const (
	maxAttempts    = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
)

// TokenSource provides bearer tokens per account and drops stale ones.
// Defined at the consumer per Go convention "accept interfaces, return
// structs"; the token package provides the real implementation.
type TokenSource interface {
	Token(ctx context.Context, accountID string) (string, error)
	Invalidate(accountID string)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	UploadURL  string
	HTTPClient *http.Client
	Tokens     TokenSource
	Account    string
	UserAgent  string
	RateLimit  float64 // requests per second; 0 disables throttling
	Burst      int
	Logger     *slog.Logger
}

// Client executes authenticated Drive API calls with retry, rate limiting,
// and error classification. One Client is bound to one account.
type Client struct {
	baseURL    string
	uploadURL  string
	httpClient *http.Client
	tokens     TokenSource
	account    string
	userAgent  string
	limiter    *rate.Limiter
	logger     *slog.Logger

	// sleepFunc waits between retries. Tests override to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Drive API client.
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		uploadURL:  strings.TrimSuffix(opts.UploadURL, "/"),
		httpClient: opts.HTTPClient,
		tokens:     opts.Tokens,
		account:    opts.Account,
		userAgent:  opts.UserAgent,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     opts.Logger,
		sleepFunc:  timeSleep,
	}
}

// Account returns the account this client is bound to.
func (c *Client) Account() string {
	return c.account
}

// Do executes one logical Drive API call. path may be relative to the base
// URL or a full URL (uploads use a different host). body is a byte slice so
// retries can resend it. Classification: 401 invalidates the cached token
// and retries with a fresh one, 429/5xx retry with backoff, other 4xx are
// fatal immediately, 2xx is returned as-is with the caller owning the body.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values, body []byte, hdr http.Header) (*http.Response, error) {
	reqURL := c.resolveURL(path, params)
	endpoint := endpointLabel(reqURL)

	var (
		lastErr    error
		retryAfter time.Duration
	)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.calcBackoff(attempt - 1)
			if retryAfter > 0 {
				backoff = retryAfter
				retryAfter = 0
			}

			c.logger.Warn("retrying request",
				slog.String("method", method),
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("drive: request canceled: %w", err)
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("drive: request canceled: %w", err)
		}

		start := time.Now()

		resp, err := c.doOnce(ctx, method, reqURL, body, hdr)
		if err != nil {
			observeRequest(method, endpoint, 0, time.Since(start), errKindOf(err))

			if ctx.Err() != nil {
				return nil, fmt.Errorf("drive: request canceled: %w", ctx.Err())
			}

			// Token acquisition failures are not retried here: a missing or
			// rejected credential will not fix itself between attempts.
			var te tokenError
			if errors.As(err, &te) {
				return nil, te.err
			}

			lastErr = err

			continue
		}

		status := resp.StatusCode

		// 2xx — success. Caller parses or streams the body.
		if status >= http.StatusOK && status < http.StatusMultipleChoices {
			observeRequest(method, endpoint, status, time.Since(start), "")
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("endpoint", endpoint),
				slog.Int("status", status),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		apiErr := newAPIError(status, errBody)

		if !isRetryable(status) {
			observeRequest(method, endpoint, status, time.Since(start), "client_error")
			return nil, apiErr
		}

		if status == http.StatusUnauthorized {
			// Stale token: drop it so the next attempt fetches a fresh one.
			c.tokens.Invalidate(c.account)
			observeRequest(method, endpoint, status, time.Since(start), "unauthorized")
		} else {
			observeRequest(method, endpoint, status, time.Since(start), "retryable")
			retryAfter = parseRetryAfter(resp)
		}

		lastErr = apiErr
	}

	return nil, fmt.Errorf("drive: %s %s failed after %d attempts: %w", method, endpoint, maxAttempts, lastErr)
}

// tokenError marks a token acquisition failure so the retry loop can
// distinguish it from a network error.
type tokenError struct {
	err error
}

func (e tokenError) Error() string {
	return e.err.Error()
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, reqURL string, body []byte, hdr http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("drive: creating request: %w", err)
	}

	tok, err := c.tokens.Token(ctx, c.account)
	if err != nil {
		return nil, tokenError{err: fmt.Errorf("drive: obtaining token: %w", err)}
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, vs := range hdr {
		req.Header[k] = vs
	}

	return c.httpClient.Do(req)
}

// getJSON executes a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, params, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("drive: decoding response: %w", err)
	}

	return nil
}

// sendJSON marshals in, executes the request, and decodes into out when
// out is non-nil.
func (c *Client) sendJSON(ctx context.Context, method, path string, params url.Values, in, out any) error {
	var body []byte

	if in != nil {
		var err error

		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("drive: encoding request body: %w", err)
		}
	}

	resp, err := c.Do(ctx, method, path, params, body, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("drive: decoding response: %w", err)
	}

	return nil
}

// resolveURL builds the absolute request URL with encoded query parameters.
func (c *Client) resolveURL(path string, params url.Values) string {
	full := path
	if !strings.HasPrefix(path, "http") {
		full = c.baseURL + path
	}

	if len(params) == 0 {
		return full
	}

	sep := "?"
	if strings.Contains(full, "?") {
		sep = "&"
	}

	return full + sep + params.Encode()
}

// endpointLabel returns the path component only — query parameters carry
// tokens and must not leak into logs or metric labels.
func endpointLabel(reqURL string) string {
	u, err := url.Parse(reqURL)
	if err != nil {
		return reqURL
	}

	return u.Path
}

// errKindOf tags pre-response failures for metrics.
func errKindOf(err error) string {
	var te tokenError
	if errors.As(err, &te) {
		return "auth"
	}

	return "network"
}

// parseRetryAfter honors a Retry-After header on 429 responses.
func parseRetryAfter(resp *http.Response) time.Duration {
	if resp.StatusCode != http.StatusTooManyRequests {
		return 0
	}

	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}

	seconds, err := strconv.Atoi(ra)
	if err != nil || seconds <= 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
