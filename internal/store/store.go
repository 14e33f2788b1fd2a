// Package store persists the connector's durable state — OAuth credentials,
// sync checkpoints, watch channels, download audit records, and the shared
// drive catalogue — in an embedded SQLite database with WAL mode.
// Pure storage; no Drive API knowledge lives here.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// Store wraps the SQLite database and prepared statements for all tables.
// Use ":memory:" as the path for tests.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	credStmts       credentialStatements
	checkpointStmts checkpointStatements
	channelStmts    channelStatements
	auditStmts      auditStatements
	catalogStmts    catalogStatements
}

type credentialStatements struct {
	get, upsert, storeRefresh *sql.Stmt
}

type checkpointStatements struct {
	get, save *sql.Stmt
}

type channelStatements struct {
	get, list, save, delete *sql.Stmt
}

type auditStatements struct {
	start, complete, fail, get, prune *sql.Stmt
}

type catalogStatements struct {
	upsert, list, deactivate *sql.Stmt
}

// Open creates a Store at dbPath, applying pragmas and pending migrations
// and preparing all repeated statements.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	logger.Info("opening state database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	ctx := context.Background()

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: prepare statements: %w", err)
	}

	return s, nil
}

// Close releases all prepared statements and the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: %s: %w", p, err)
		}
	}

	return nil
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("store: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// prepareStatements prepares every repeated query up front so malformed SQL
// fails at startup rather than mid-operation.
func (s *Store) prepareStatements(ctx context.Context) error {
	prep := func(dst **sql.Stmt, query string) error {
		if *dst != nil {
			return nil
		}

		stmt, err := s.db.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing %q: %w", query, err)
		}

		*dst = stmt

		return nil
	}

	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.credStmts.get, sqlGetCredential},
		{&s.credStmts.upsert, sqlUpsertCredential},
		{&s.credStmts.storeRefresh, sqlStoreRefreshToken},
		{&s.checkpointStmts.get, sqlGetCheckpoint},
		{&s.checkpointStmts.save, sqlSaveCheckpoint},
		{&s.channelStmts.get, sqlGetChannel},
		{&s.channelStmts.list, sqlListChannels},
		{&s.channelStmts.save, sqlSaveChannel},
		{&s.channelStmts.delete, sqlDeleteChannel},
		{&s.auditStmts.start, sqlAuditStart},
		{&s.auditStmts.complete, sqlAuditComplete},
		{&s.auditStmts.fail, sqlAuditFail},
		{&s.auditStmts.get, sqlAuditGet},
		{&s.auditStmts.prune, sqlAuditPrune},
		{&s.catalogStmts.upsert, sqlCatalogUpsert},
		{&s.catalogStmts.list, sqlCatalogList},
		{&s.catalogStmts.deactivate, sqlCatalogDeactivate},
	}

	for _, e := range stmts {
		if err := prep(e.dst, e.query); err != nil {
			return err
		}
	}

	return nil
}

// nullTime converts *time.Time to a nullable unix-seconds column value.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}

	return t.Unix()
}

// scanTime converts a nullable unix-seconds column back to *time.Time.
func scanTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}

	t := time.Unix(v.Int64, 0).UTC()

	return &t
}
