package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Download audit statuses.
const (
	DownloadStarted   = "started"
	DownloadCompleted = "completed"
	DownloadFailed    = "failed"
)

// DownloadRecord tracks one download attempt from start to completion or
// failure. Interrupted downloads are marked failed with partial byte counts
// rather than left "in progress" forever.
type DownloadRecord struct {
	ID              int64
	AccountID       string
	FileID          string
	FileName        string
	MimeType        string
	BytesDownloaded int64
	Checksum        string
	Status          string
	Error           string
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const (
	sqlAuditStart = `INSERT INTO download_audit
			(account_id, file_id, file_name, mime_type, checksum, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'started', ?, ?)`

	sqlAuditComplete = `UPDATE download_audit
		SET status = 'completed', bytes_downloaded = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`

	sqlAuditFail = `UPDATE download_audit
		SET status = 'failed', bytes_downloaded = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`

	sqlAuditGet = `SELECT id, account_id, file_id, file_name, mime_type,
			bytes_downloaded, checksum, status, error, completed_at, created_at, updated_at
		FROM download_audit WHERE id = ?`

	sqlAuditPrune = `DELETE FROM download_audit
		WHERE completed_at IS NOT NULL AND completed_at < ?`
)

// StartDownload creates an in-progress audit record and returns its id.
func (s *Store) StartDownload(ctx context.Context, accountID, fileID, fileName, mimeType, checksum string) (int64, error) {
	now := time.Now().Unix()

	res, err := s.auditStmts.start.ExecContext(ctx, accountID, fileID, fileName, mimeType, checksum, now, now)
	if err != nil {
		return 0, fmt.Errorf("store: start download audit: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: start download audit: %w", err)
	}

	return id, nil
}

// CompleteDownload marks an audit record completed with the final byte count.
func (s *Store) CompleteDownload(ctx context.Context, id, bytes int64) error {
	now := time.Now().Unix()

	if _, err := s.auditStmts.complete.ExecContext(ctx, bytes, now, now, id); err != nil {
		return fmt.Errorf("store: complete download audit: %w", err)
	}

	return nil
}

// FailDownload marks an audit record failed, recording the partial byte
// count and the error message.
func (s *Store) FailDownload(ctx context.Context, id, bytes int64, errMsg string) error {
	now := time.Now().Unix()

	if _, err := s.auditStmts.fail.ExecContext(ctx, bytes, errMsg, now, now, id); err != nil {
		return fmt.Errorf("store: fail download audit: %w", err)
	}

	return nil
}

// GetDownload returns one audit record, or nil if unknown.
func (s *Store) GetDownload(ctx context.Context, id int64) (*DownloadRecord, error) {
	row := s.auditStmts.get.QueryRowContext(ctx, id)

	var (
		r           DownloadRecord
		completedAt sql.NullInt64
		created     int64
		updated     int64
	)

	err := row.Scan(&r.ID, &r.AccountID, &r.FileID, &r.FileName, &r.MimeType,
		&r.BytesDownloaded, &r.Checksum, &r.Status, &r.Error, &completedAt, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get download audit: %w", err)
	}

	r.CompletedAt = scanTime(completedAt)
	r.CreatedAt = time.Unix(created, 0).UTC()
	r.UpdatedAt = time.Unix(updated, 0).UTC()

	return &r, nil
}

// PruneDownloads removes finished audit rows older than the cutoff and
// returns the number deleted. In-progress rows are never pruned.
func (s *Store) PruneDownloads(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.auditStmts.prune.ExecContext(ctx, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("store: prune downloads: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: prune downloads: %w", err)
	}

	return n, nil
}
