// Package drive provides an HTTP client for the Google Drive v3 REST API
// with bearer auth injection, automatic retry with backoff, rate limiting,
// and retriable/fatal error classification.
package drive

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status classification.
// Use errors.Is(err, drive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("drive: bad request")
	ErrUnauthorized = errors.New("drive: unauthorized")
	ErrForbidden    = errors.New("drive: forbidden")
	ErrNotFound     = errors.New("drive: not found")
	ErrConflict     = errors.New("drive: conflict")
	ErrGone         = errors.New("drive: resource gone")
	ErrThrottled    = errors.New("drive: throttled")
	ErrServerError  = errors.New("drive: server error")
)

// APIError wraps a sentinel error with the HTTP status and the parsed error
// payload from the Drive API. Callers react to the retriable/fatal taxonomy;
// the payload is carried verbatim for problem-details rendering.
type APIError struct {
	StatusCode int
	Payload    map[string]any
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("drive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// newAPIError builds an APIError from a response body, parsing the JSON
// error payload best-effort.
func newAPIError(statusCode int, body []byte) *APIError {
	var payload map[string]any

	_ = json.Unmarshal(body, &payload)

	msg := string(body)
	if em, ok := payload["error"].(map[string]any); ok {
		if m, ok := em["message"].(string); ok && m != "" {
			msg = m
		}
	}

	return &APIError{
		StatusCode: statusCode,
		Payload:    payload,
		Message:    msg,
		Err:        classifyStatus(statusCode),
	}
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether a status should be retried: stale-token 401
// (after invalidation), throttling 429, and upstream 5xx faults.
// Every other 4xx is fatal and surfaces immediately.
func isRetryable(code int) bool {
	return code == http.StatusUnauthorized ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
