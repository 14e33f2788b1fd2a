package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Drive kinds for the catalogue.
const (
	DriveKindMyDrive = "my_drive"
	DriveKindShared  = "shared_drive"
)

// CatalogEntry is one known drive (My Drive or a shared drive). Entries no
// longer reported upstream are deactivated, not deleted, so historical
// checkpoints stay attributable.
type CatalogEntry struct {
	DriveID      string
	Name         string
	Kind         string
	IsActive     bool
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	sqlCatalogUpsert = `INSERT INTO drive_catalog
			(drive_id, name, kind, is_active, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(drive_id) DO UPDATE SET
			name           = excluded.name,
			kind           = excluded.kind,
			is_active      = 1,
			last_synced_at = excluded.last_synced_at,
			updated_at     = excluded.updated_at`

	sqlCatalogList = `SELECT drive_id, name, kind, is_active, last_synced_at, created_at, updated_at
		FROM drive_catalog ORDER BY name`

	sqlCatalogDeactivate = `UPDATE drive_catalog
		SET is_active = 0, updated_at = ?
		WHERE last_synced_at IS NULL OR last_synced_at < ?`
)

// UpsertDrive records a drive as active and freshly synced.
func (s *Store) UpsertDrive(ctx context.Context, driveID, name, kind string, syncedAt time.Time) error {
	now := time.Now().Unix()

	_, err := s.catalogStmts.upsert.ExecContext(ctx, driveID, name, kind, syncedAt.Unix(), now, now)
	if err != nil {
		return fmt.Errorf("store: upsert drive: %w", err)
	}

	return nil
}

// ListDrives returns the full catalogue, active and inactive.
func (s *Store) ListDrives(ctx context.Context) ([]CatalogEntry, error) {
	rows, err := s.catalogStmts.list.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list drives: %w", err)
	}
	defer rows.Close()

	var entries []CatalogEntry

	for rows.Next() {
		var (
			e        CatalogEntry
			syncedAt sql.NullInt64
			created  int64
			updated  int64
		)

		if err := rows.Scan(&e.DriveID, &e.Name, &e.Kind, &e.IsActive, &syncedAt, &created, &updated); err != nil {
			return nil, fmt.Errorf("store: scan drive: %w", err)
		}

		e.LastSyncedAt = scanTime(syncedAt)
		e.CreatedAt = time.Unix(created, 0).UTC()
		e.UpdatedAt = time.Unix(updated, 0).UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list drives: %w", err)
	}

	return entries, nil
}

// DeactivateDrivesBefore marks entries not seen since the cutoff as inactive.
// Called after a catalogue refresh so vanished shared drives stop showing
// as active.
func (s *Store) DeactivateDrivesBefore(ctx context.Context, cutoff time.Time) error {
	now := time.Now().Unix()

	if _, err := s.catalogStmts.deactivate.ExecContext(ctx, now, cutoff.Unix()); err != nil {
		return fmt.Errorf("store: deactivate drives: %w", err)
	}

	return nil
}
