package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Channel is one registered webhook watch channel. ChannelID is locally
// generated and is the primary key; ResourceID/ResourceURI/Expiration are
// server-assigned and may be empty/nil until the registration response or
// first webhook delivery arrives. Token authenticates inbound deliveries.
type Channel struct {
	ChannelID   string
	ResourceID  string
	ResourceURI string
	Expiration  *time.Time
	Token       string
	AccountID   string
	Kind        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const (
	sqlChannelColumns = `channel_id, resource_id, resource_uri, expiration,
		token, account_id, kind, created_at, updated_at`

	sqlGetChannel = `SELECT ` + sqlChannelColumns + `
		FROM watch_channels WHERE channel_id = ?`

	sqlListChannels = `SELECT ` + sqlChannelColumns + `
		FROM watch_channels ORDER BY created_at`

	// The stored secret token survives upserts with an empty incoming token:
	// webhook deliveries never echo the secret back.
	sqlSaveChannel = `INSERT INTO watch_channels
			(channel_id, resource_id, resource_uri, expiration, token, account_id, kind, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			resource_id  = excluded.resource_id,
			resource_uri = excluded.resource_uri,
			expiration   = excluded.expiration,
			token        = CASE WHEN excluded.token != '' THEN excluded.token ELSE token END,
			kind         = excluded.kind,
			updated_at   = excluded.updated_at`

	sqlDeleteChannel = `DELETE FROM watch_channels WHERE channel_id = ?`
)

// GetChannel returns a channel by id, or nil if unknown.
func (s *Store) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	return scanChannel(s.channelStmts.get.QueryRowContext(ctx, channelID))
}

// ListChannels returns all known channels in registration order.
func (s *Store) ListChannels(ctx context.Context) ([]Channel, error) {
	rows, err := s.channelStmts.list.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel

	for rows.Next() {
		ch, scanErr := scanChannelRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		channels = append(channels, *ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}

	return channels, nil
}

// SaveChannel inserts or updates a channel row keyed by channel id.
func (s *Store) SaveChannel(ctx context.Context, ch Channel) error {
	now := time.Now().Unix()

	_, err := s.channelStmts.save.ExecContext(ctx,
		ch.ChannelID, ch.ResourceID, ch.ResourceURI, nullTime(ch.Expiration),
		ch.Token, ch.AccountID, ch.Kind, now, now)
	if err != nil {
		return fmt.Errorf("store: save channel: %w", err)
	}

	return nil
}

// DeleteChannel removes a channel row. Deleting an unknown id is a no-op.
func (s *Store) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := s.channelStmts.delete.ExecContext(ctx, channelID); err != nil {
		return fmt.Errorf("store: delete channel: %w", err)
	}

	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row *sql.Row) (*Channel, error) {
	ch, err := scanChannelRow(row)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	return ch, err
}

func scanChannelRow(row rowScanner) (*Channel, error) {
	var (
		ch         Channel
		expiration sql.NullInt64
		created    int64
		updated    int64
	)

	err := row.Scan(&ch.ChannelID, &ch.ResourceID, &ch.ResourceURI, &expiration,
		&ch.Token, &ch.AccountID, &ch.Kind, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if err != nil {
		return nil, fmt.Errorf("store: scan channel: %w", err)
	}

	ch.Expiration = scanTime(expiration)
	ch.CreatedAt = time.Unix(created, 0).UTC()
	ch.UpdatedAt = time.Unix(updated, 0).UTC()

	return &ch, nil
}
