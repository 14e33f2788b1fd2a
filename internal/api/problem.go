package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/driveconnect/driveconnect/internal/drive"
	"github.com/driveconnect/driveconnect/internal/token"
	"github.com/driveconnect/driveconnect/internal/watch"
)

// problem is an RFC 7807 problem details body.
type problem struct {
	Type   string         `json:"type"`
	Title  string         `json:"title"`
	Status int            `json:"status"`
	Detail string         `json:"detail,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// writeProblem renders err as a problem details response, mapping the error
// taxonomy onto HTTP statuses. Upstream API errors keep their status and
// carry the upstream payload; everything unrecognized is a 500.
func writeProblem(w http.ResponseWriter, logger *slog.Logger, err error) {
	p := problem{
		Type:   "about:blank",
		Title:  "Internal Server Error",
		Status: http.StatusInternalServerError,
	}

	var (
		apiErr  *drive.APIError
		authErr *token.AuthError
	)

	switch {
	case errors.As(err, &apiErr):
		p.Status = apiErr.StatusCode
		p.Title = http.StatusText(apiErr.StatusCode)
		p.Detail = apiErr.Message
		p.Extra = apiErr.Payload
	case errors.As(err, &authErr):
		p.Status = http.StatusUnauthorized
		p.Title = http.StatusText(http.StatusUnauthorized)
		p.Detail = authErr.Reason
	case errors.Is(err, watch.ErrUnknownChannel):
		p.Status = http.StatusNotFound
		p.Title = http.StatusText(http.StatusNotFound)
		p.Detail = err.Error()
	case errors.Is(err, watch.ErrChannelTokenMismatch):
		p.Status = http.StatusForbidden
		p.Title = http.StatusText(http.StatusForbidden)
		p.Detail = err.Error()
	case errors.Is(err, watch.ErrNoCallbackURL):
		p.Status = http.StatusConflict
		p.Title = http.StatusText(http.StatusConflict)
		p.Detail = err.Error()
	default:
		p.Detail = err.Error()
	}

	if p.Status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)

	if encErr := json.NewEncoder(w).Encode(p); encErr != nil {
		logger.Error("failed to encode problem response", slog.String("error", encErr.Error()))
	}
}

// writeProblemStatus renders a problem with an explicit status, for request
// faults detected locally rather than mapped from an error value.
func writeProblemStatus(w http.ResponseWriter, logger *slog.Logger, status int, detail string) {
	p := problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(p); err != nil {
		logger.Error("failed to encode problem response", slog.String("error", err.Error()))
	}
}

// writeJSON renders v as a JSON response.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
