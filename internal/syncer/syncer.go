// Package syncer implements incremental change synchronization against the
// Drive changes feed, with durable checkpoint cursors so each run picks up
// exactly where the last one left off.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/driveconnect/driveconnect/internal/drive"
	"github.com/driveconnect/driveconnect/internal/store"
)

// Checkpoints persists sync cursors per account and resource.
type Checkpoints interface {
	GetCheckpoint(ctx context.Context, accountID, resource string) (*store.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, accountID, resource, cursor string, syncedAt time.Time) error
}

// ChangeLister is the slice of the Drive client the engine needs.
type ChangeLister interface {
	StartPageToken(ctx context.Context) (string, error)
	ListChanges(ctx context.Context, pageToken string, pageSize int) (*drive.ChangeList, error)
}

// Result is the outcome of one sync pass.
type Result struct {
	Changes []drive.Change `json:"changes"`
	Cursor  string         `json:"cursor"`
	// Initialised is true when this pass only established the starting
	// cursor; no changes are reported on an initialization pass.
	Initialised bool `json:"initialised"`
	// HasMore is true when the feed has further pages beyond this one.
	HasMore bool `json:"has_more"`
}

// Engine drives the change sync for one account.
type Engine struct {
	client      ChangeLister
	checkpoints Checkpoints
	account     string
	logger      *slog.Logger

	now func() time.Time
}

// NewEngine creates a sync engine bound to one account.
func NewEngine(client ChangeLister, checkpoints Checkpoints, account string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		client:      client,
		checkpoints: checkpoints,
		account:     account,
		logger:      logger,
		now:         time.Now,
	}
}

// Sync runs one synchronization pass for the given resource.
//
// Without a stored cursor the pass only fetches the current start page token,
// persists it, and reports no changes. With a cursor it fetches one page of
// changes and advances the cursor to the server's new start token when the
// feed is exhausted, or to the next page token when more pages remain. The
// cursor is persisted on every successful pass; a failed fetch leaves the
// stored cursor untouched so the next run retries the same window.
func (e *Engine) Sync(ctx context.Context, resource string, pageSize int) (*Result, error) {
	cp, err := e.checkpoints.GetCheckpoint(ctx, e.account, resource)
	if err != nil {
		return nil, fmt.Errorf("syncer: loading checkpoint: %w", err)
	}

	if cp == nil || cp.Cursor == "" {
		return e.initialize(ctx, resource)
	}

	list, err := e.client.ListChanges(ctx, cp.Cursor, pageSize)
	if err != nil {
		return nil, fmt.Errorf("syncer: fetching changes: %w", err)
	}

	// Exhausted feed carries the next start token; otherwise continue with
	// the next page. A malformed response with neither keeps the old cursor.
	cursor := cp.Cursor
	switch {
	case list.NewStartPageToken != "":
		cursor = list.NewStartPageToken
	case list.NextPageToken != "":
		cursor = list.NextPageToken
	}

	if err := e.checkpoints.SaveCheckpoint(ctx, e.account, resource, cursor, e.now()); err != nil {
		return nil, fmt.Errorf("syncer: saving checkpoint: %w", err)
	}

	e.logger.Info("sync pass complete",
		slog.String("resource", resource),
		slog.Int("changes", len(list.Changes)),
		slog.Bool("has_more", list.NextPageToken != ""),
	)

	return &Result{
		Changes: list.Changes,
		Cursor:  cursor,
		HasMore: list.NextPageToken != "",
	}, nil
}

// initialize establishes the starting cursor for a resource that has never
// been synced.
func (e *Engine) initialize(ctx context.Context, resource string) (*Result, error) {
	token, err := e.client.StartPageToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncer: fetching start page token: %w", err)
	}

	if err := e.checkpoints.SaveCheckpoint(ctx, e.account, resource, token, e.now()); err != nil {
		return nil, fmt.Errorf("syncer: saving checkpoint: %w", err)
	}

	e.logger.Info("sync initialized",
		slog.String("resource", resource),
		slog.String("cursor", token),
	)

	return &Result{
		Changes:     []drive.Change{},
		Cursor:      token,
		Initialised: true,
	}, nil
}

// SyncAll runs sync passes until the feed is exhausted, returning all
// changes seen. An initialization pass returns immediately.
func (e *Engine) SyncAll(ctx context.Context, resource string, pageSize int) (*Result, error) {
	first, err := e.Sync(ctx, resource, pageSize)
	if err != nil {
		return nil, err
	}

	if first.Initialised {
		return first, nil
	}

	result := first
	for result.HasMore {
		next, err := e.Sync(ctx, resource, pageSize)
		if err != nil {
			return nil, err
		}

		next.Changes = append(result.Changes, next.Changes...)
		result = next
	}

	return result, nil
}
