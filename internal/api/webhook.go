package api

import (
	"log/slog"
	"net/http"

	"github.com/driveconnect/driveconnect/internal/watch"
)

// Google push notification headers.
const (
	hdrChannelID     = "X-Goog-Channel-Id"
	hdrChannelTok    = "X-Goog-Channel-Token"
	hdrResourceID    = "X-Goog-Resource-Id"
	hdrResourceURI   = "X-Goog-Resource-Uri"
	hdrResourceState = "X-Goog-Resource-State"
	hdrChannelExpiry = "X-Goog-Channel-Expiration"
)

// handleWebhook processes one push notification. The delivery is validated
// against the stored channel secret, the channel record is refreshed from
// the headers, and a sync event is published to websocket subscribers.
// Google retries non-2xx responses, so only auth failures are rejected.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	n := watch.Notification{
		ChannelID:   r.Header.Get(hdrChannelID),
		Token:       r.Header.Get(hdrChannelTok),
		ResourceID:  r.Header.Get(hdrResourceID),
		ResourceURI: r.Header.Get(hdrResourceURI),
		State:       r.Header.Get(hdrResourceState),
		Expiration:  r.Header.Get(hdrChannelExpiry),
	}

	if n.ChannelID == "" {
		writeProblemStatus(w, s.logger, http.StatusBadRequest, "missing "+hdrChannelID+" header")
		return
	}

	if _, err := s.watches.Validate(r.Context(), n.ChannelID, n.Token); err != nil {
		s.logger.Warn("rejected webhook delivery",
			slog.String("channel_id", n.ChannelID),
			slog.String("error", err.Error()),
		)
		writeProblem(w, s.logger, err)

		return
	}

	if err := s.watches.UpsertFromWebhook(r.Context(), n); err != nil {
		writeProblem(w, s.logger, err)
		return
	}

	s.logger.Info("webhook delivery accepted",
		slog.String("channel_id", n.ChannelID),
		slog.String("state", n.State),
	)

	// The initial "sync" delivery confirms registration and carries no
	// change; anything else signals new activity on the feed.
	if n.State != "sync" {
		s.hub.Broadcast("change.notified", map[string]string{
			"channel_id":  n.ChannelID,
			"resource_id": n.ResourceID,
			"state":       n.State,
		})
	}

	w.WriteHeader(http.StatusOK)
}
