package drive

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// StartPageToken fetches the current cursor for the changes feed. A sync
// that starts from this token sees only changes made afterwards.
func (c *Client) StartPageToken(ctx context.Context) (string, error) {
	params := url.Values{"supportsAllDrives": {"true"}}

	var out struct {
		StartPageToken string `json:"startPageToken"`
	}

	if err := c.getJSON(ctx, "/changes/startPageToken", params, &out); err != nil {
		return "", err
	}

	return out.StartPageToken, nil
}

// ListChanges fetches one page of the changes feed starting at pageToken.
func (c *Client) ListChanges(ctx context.Context, pageToken string, pageSize int) (*ChangeList, error) {
	params := url.Values{
		"pageToken":                 {pageToken},
		"pageSize":                  {strconv.Itoa(clampPageSize(pageSize, maxFilesPageSize))},
		"supportsAllDrives":         {"true"},
		"includeItemsFromAllDrives": {"true"},
		"spaces":                    {"drive"},
	}

	var list ChangeList
	if err := c.getJSON(ctx, "/changes", params, &list); err != nil {
		return nil, err
	}

	c.logger.Debug("listed changes",
		slog.Int("count", len(list.Changes)),
		slog.Bool("has_more", list.NextPageToken != ""),
	)

	return &list, nil
}

// WatchChanges registers a notification channel on the changes feed. The
// server reports channel expiration as epoch milliseconds in a string.
func (c *Client) WatchChanges(ctx context.Context, pageToken string, req WatchRequest) (*WatchInfo, error) {
	params := url.Values{
		"pageToken":         {pageToken},
		"supportsAllDrives": {"true"},
	}

	var out struct {
		ID          string `json:"id"`
		ResourceID  string `json:"resourceId"`
		ResourceURI string `json:"resourceUri"`
		Expiration  string `json:"expiration"`
	}

	if err := c.sendJSON(ctx, http.MethodPost, "/changes/watch", params, req, &out); err != nil {
		return nil, err
	}

	info := &WatchInfo{
		ChannelID:   out.ID,
		ResourceID:  out.ResourceID,
		ResourceURI: out.ResourceURI,
	}

	if ms, err := strconv.ParseInt(out.Expiration, 10, 64); err == nil && ms > 0 {
		info.Expiration = time.UnixMilli(ms).UTC()
	}

	c.logger.Info("registered watch channel",
		slog.String("channel_id", info.ChannelID),
		slog.String("resource_id", info.ResourceID),
		slog.Time("expiration", info.Expiration),
	)

	return info, nil
}

// StopChannel tears down a notification channel on the server. The channel
// and resource IDs must match the original registration.
func (c *Client) StopChannel(ctx context.Context, channelID, resourceID string) error {
	body := map[string]string{
		"id":         channelID,
		"resourceId": resourceID,
	}

	if err := c.sendJSON(ctx, http.MethodPost, "/channels/stop", nil, body, nil); err != nil {
		return err
	}

	c.logger.Info("stopped watch channel", slog.String("channel_id", channelID))

	return nil
}
