// Package watch manages webhook notification channels: registration with
// locally generated ids and secrets, validation of inbound deliveries,
// renewal of expiring channels, and teardown.
package watch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/driveconnect/driveconnect/internal/drive"
	"github.com/driveconnect/driveconnect/internal/store"
)

// secretBytes is the length of the per-channel shared secret.
const secretBytes = 12

// Sentinel errors surfaced to webhook and CLI callers.
var (
	ErrNoCallbackURL        = errors.New("watch: no callback URL configured")
	ErrUnknownChannel       = errors.New("watch: unknown channel")
	ErrChannelTokenMismatch = errors.New("watch: channel token mismatch")
)

// ChannelStore persists channel state. *store.Store satisfies it.
type ChannelStore interface {
	GetChannel(ctx context.Context, channelID string) (*store.Channel, error)
	ListChannels(ctx context.Context) ([]store.Channel, error)
	SaveChannel(ctx context.Context, ch store.Channel) error
	DeleteChannel(ctx context.Context, channelID string) error
}

// WatchAPI is the slice of the Drive client the manager needs.
type WatchAPI interface {
	StartPageToken(ctx context.Context) (string, error)
	WatchChanges(ctx context.Context, pageToken string, req drive.WatchRequest) (*drive.WatchInfo, error)
	StopChannel(ctx context.Context, channelID, resourceID string) error
}

// Notification is one inbound webhook delivery, decoded from the request
// headers by the HTTP layer.
type Notification struct {
	ChannelID   string
	Token       string
	ResourceID  string
	ResourceURI string
	State       string
	Expiration  string // HTTP-date, best-effort parsed
}

// Manager owns the watch channel lifecycle for one account.
type Manager struct {
	client      WatchAPI
	channels    ChannelStore
	account     string
	callbackURL string
	logger      *slog.Logger

	now func() time.Time
}

// NewManager creates a channel manager. callbackURL is the public HTTPS
// address webhook deliveries are sent to; registration fails fast without it.
func NewManager(client WatchAPI, channels ChannelStore, account, callbackURL string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		client:      client,
		channels:    channels,
		account:     account,
		callbackURL: callbackURL,
		logger:      logger,
		now:         time.Now,
	}
}

// Register creates a new changes watch channel with a locally generated id
// and secret, registers it upstream, and persists the result.
func (m *Manager) Register(ctx context.Context, ttl time.Duration) (*store.Channel, error) {
	if m.callbackURL == "" {
		return nil, ErrNoCallbackURL
	}

	secret, err := newSecret()
	if err != nil {
		return nil, err
	}

	req := drive.WatchRequest{
		ID:      uuid.NewString(),
		Type:    "web_hook",
		Address: m.callbackURL,
		Token:   secret,
	}

	if ttl > 0 {
		req.Params = map[string]string{
			"ttl": strconv.FormatInt(int64(ttl.Seconds()), 10),
		}
	}

	pageToken, err := m.client.StartPageToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("watch: fetching start page token: %w", err)
	}

	info, err := m.client.WatchChanges(ctx, pageToken, req)
	if err != nil {
		return nil, fmt.Errorf("watch: registering channel: %w", err)
	}

	ch := store.Channel{
		ChannelID:   req.ID,
		ResourceID:  info.ResourceID,
		ResourceURI: info.ResourceURI,
		Token:       secret,
		AccountID:   m.account,
		Kind:        "changes",
	}
	if !info.Expiration.IsZero() {
		exp := info.Expiration
		ch.Expiration = &exp
	}

	if err := m.channels.SaveChannel(ctx, ch); err != nil {
		return nil, fmt.Errorf("watch: persisting channel: %w", err)
	}

	m.logger.Info("watch channel registered",
		slog.String("channel_id", ch.ChannelID),
		slog.String("resource_id", ch.ResourceID),
	)

	return &ch, nil
}

// Delete stops a channel upstream and removes the local record. The local
// record is kept when the upstream stop fails, so the teardown can be
// retried; an upstream 404 counts as already stopped.
func (m *Manager) Delete(ctx context.Context, channelID string) error {
	ch, err := m.channels.GetChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("watch: loading channel: %w", err)
	}

	if ch == nil {
		return ErrUnknownChannel
	}

	if err := m.client.StopChannel(ctx, ch.ChannelID, ch.ResourceID); err != nil {
		if !errors.Is(err, drive.ErrNotFound) {
			return fmt.Errorf("watch: stopping channel upstream: %w", err)
		}

		m.logger.Warn("channel already gone upstream",
			slog.String("channel_id", channelID),
		)
	}

	if err := m.channels.DeleteChannel(ctx, channelID); err != nil {
		return fmt.Errorf("watch: deleting channel record: %w", err)
	}

	m.logger.Info("watch channel deleted", slog.String("channel_id", channelID))

	return nil
}

// List returns all known channels.
func (m *Manager) List(ctx context.Context) ([]store.Channel, error) {
	channels, err := m.channels.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("watch: listing channels: %w", err)
	}

	return channels, nil
}

// Validate checks an inbound delivery against the stored channel secret.
// A stored channel with no secret accepts any token; registrations made by
// older versions did not carry one.
func (m *Manager) Validate(ctx context.Context, channelID, token string) (*store.Channel, error) {
	ch, err := m.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("watch: loading channel: %w", err)
	}

	if ch == nil {
		return nil, ErrUnknownChannel
	}

	if ch.Token != "" && ch.Token != token {
		return nil, ErrChannelTokenMismatch
	}

	return ch, nil
}

// UpsertFromWebhook refreshes the stored channel from a validated delivery.
// Unknown channels are created defensively so state observed on the wire is
// never lost. The expiration header is parsed leniently; an unparseable
// value clears the stored expiration rather than keeping a stale one.
func (m *Manager) UpsertFromWebhook(ctx context.Context, n Notification) error {
	ch := store.Channel{
		ChannelID:   n.ChannelID,
		ResourceID:  n.ResourceID,
		ResourceURI: n.ResourceURI,
		AccountID:   m.account,
		Kind:        "changes",
	}

	if existing, err := m.channels.GetChannel(ctx, n.ChannelID); err != nil {
		return fmt.Errorf("watch: loading channel: %w", err)
	} else if existing != nil {
		ch.Expiration = existing.Expiration
	}

	if n.Expiration != "" {
		if t, err := http.ParseTime(n.Expiration); err == nil {
			ch.Expiration = &t
		} else {
			ch.Expiration = nil

			m.logger.Warn("unparseable channel expiration header",
				slog.String("channel_id", n.ChannelID),
				slog.String("value", n.Expiration),
			)
		}
	}

	// Token is left empty: the upsert preserves the stored secret.
	if err := m.channels.SaveChannel(ctx, ch); err != nil {
		return fmt.Errorf("watch: persisting channel: %w", err)
	}

	return nil
}

// Renew replaces every channel whose expiration is within threshold of now
// and returns the ids of the replacement channels. Channels with no recorded
// expiration are skipped; their lifetime is unknown and re-registering
// blindly would churn upstream state. The first failure stops the sweep and
// is returned alongside the ids registered before it.
func (m *Manager) Renew(ctx context.Context, threshold, ttl time.Duration) ([]string, error) {
	channels, err := m.channels.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("watch: listing channels: %w", err)
	}

	now := m.now()
	renewed := make([]string, 0)

	for _, ch := range channels {
		if ch.Expiration == nil || ch.Expiration.Sub(now) > threshold {
			continue
		}

		newID, err := m.renewOne(ctx, ch, ttl)
		if err != nil {
			return renewed, fmt.Errorf("watch: renewing channel %s: %w", ch.ChannelID, err)
		}

		renewed = append(renewed, newID)
	}

	if len(renewed) > 0 {
		m.logger.Info("renewal sweep complete",
			slog.Int("checked", len(channels)),
			slog.Int("renewed", len(renewed)),
		)
	}

	return renewed, nil
}

// renewOne tears down an expiring channel, then registers its replacement.
// The teardown goes through Delete, so a failed upstream stop keeps the
// local record and the renewal can be retried on the next sweep.
func (m *Manager) renewOne(ctx context.Context, old store.Channel, ttl time.Duration) (string, error) {
	if err := m.Delete(ctx, old.ChannelID); err != nil {
		return "", err
	}

	ch, err := m.Register(ctx, ttl)
	if err != nil {
		return "", err
	}

	return ch.ChannelID, nil
}

func newSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("watch: generating channel secret: %w", err)
	}

	return hex.EncodeToString(buf), nil
}
