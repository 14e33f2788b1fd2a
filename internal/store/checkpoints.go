package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Checkpoint is the durable cursor for one (account, resource) sync feed.
// The cursor is an opaque server-issued token, never parsed locally.
type Checkpoint struct {
	AccountID    string
	Resource     string
	Cursor       string
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	sqlGetCheckpoint = `SELECT account_id, resource, cursor, last_synced_at, created_at, updated_at
		FROM sync_checkpoints WHERE account_id = ? AND resource = ?`

	sqlSaveCheckpoint = `INSERT INTO sync_checkpoints
			(account_id, resource, cursor, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, resource) DO UPDATE SET
			cursor         = excluded.cursor,
			last_synced_at = excluded.last_synced_at,
			updated_at     = excluded.updated_at`
)

// GetCheckpoint returns the checkpoint for a feed, or nil if never initialized.
func (s *Store) GetCheckpoint(ctx context.Context, accountID, resource string) (*Checkpoint, error) {
	row := s.checkpointStmts.get.QueryRowContext(ctx, accountID, resource)

	var (
		cp       Checkpoint
		cursor   sql.NullString
		syncedAt sql.NullInt64
		created  int64
		updated  int64
	)

	err := row.Scan(&cp.AccountID, &cp.Resource, &cursor, &syncedAt, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get checkpoint: %w", err)
	}

	cp.Cursor = cursor.String
	cp.LastSyncedAt = scanTime(syncedAt)
	cp.CreatedAt = time.Unix(created, 0).UTC()
	cp.UpdatedAt = time.Unix(updated, 0).UTC()

	return &cp, nil
}

// SaveCheckpoint replaces the cursor for a feed. The cursor is always
// replaced whole, never merged; callers must not pass an empty cursor.
func (s *Store) SaveCheckpoint(ctx context.Context, accountID, resource, cursor string, syncedAt time.Time) error {
	if cursor == "" {
		return fmt.Errorf("store: refusing to save empty cursor for %s/%s", accountID, resource)
	}

	now := time.Now().Unix()

	_, err := s.checkpointStmts.save.ExecContext(ctx,
		accountID, resource, cursor, syncedAt.Unix(), now, now)
	if err != nil {
		return fmt.Errorf("store: save checkpoint: %w", err)
	}

	return nil
}
