package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestCredentialRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.GetCredential(ctx, "acct")
	require.NoError(t, err)
	assert.Nil(t, got)

	expires := time.Now().Add(time.Hour).Truncate(time.Second).UTC()

	require.NoError(t, s.UpsertCredential(ctx, Credential{
		AccountID:    "acct",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    &expires,
		Scopes:       "scope-a scope-b",
	}))

	got, err = s.GetCredential(ctx, "acct")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "at-1", got.AccessToken)
	assert.Equal(t, "rt-1", got.RefreshToken)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, expires.Unix(), got.ExpiresAt.Unix())
}

func TestUpsertCredentialPreservesRefreshToken(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCredential(ctx, Credential{
		AccountID:    "acct",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
	}))

	// Refresh response without a rotated refresh token must not clobber it.
	require.NoError(t, s.UpsertCredential(ctx, Credential{
		AccountID:   "acct",
		AccessToken: "at-2",
	}))

	got, err := s.GetCredential(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, "at-2", got.AccessToken)
	assert.Equal(t, "rt-1", got.RefreshToken)

	// A rotated refresh token replaces the stored one.
	require.NoError(t, s.UpsertCredential(ctx, Credential{
		AccountID:    "acct",
		AccessToken:  "at-3",
		RefreshToken: "rt-2",
	}))

	got, err = s.GetCredential(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, "rt-2", got.RefreshToken)
}

func TestStoreRefreshTokenLeavesAccessTokenAlone(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCredential(ctx, Credential{
		AccountID:   "acct",
		AccessToken: "at-1",
	}))

	require.NoError(t, s.StoreRefreshToken(ctx, "acct", "rt-new", "scope-x"))

	got, err := s.GetCredential(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, "at-1", got.AccessToken)
	assert.Equal(t, "rt-new", got.RefreshToken)
	assert.Equal(t, "scope-x", got.Scopes)
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.GetCheckpoint(ctx, "acct", "changes")
	require.NoError(t, err)
	assert.Nil(t, got)

	syncedAt := time.Now()

	require.NoError(t, s.SaveCheckpoint(ctx, "acct", "changes", "cursor-1", syncedAt))

	got, err = s.GetCheckpoint(ctx, "acct", "changes")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cursor-1", got.Cursor)
	require.NotNil(t, got.LastSyncedAt)

	// Replacement is whole, never merged.
	require.NoError(t, s.SaveCheckpoint(ctx, "acct", "changes", "cursor-2", syncedAt))

	got, err = s.GetCheckpoint(ctx, "acct", "changes")
	require.NoError(t, err)
	assert.Equal(t, "cursor-2", got.Cursor)
}

func TestSaveCheckpointRejectsEmptyCursor(t *testing.T) {
	s := openTestStore(t)

	err := s.SaveCheckpoint(context.Background(), "acct", "changes", "", time.Now())
	assert.Error(t, err)
}

func TestCheckpointsAreKeyedPerResource(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCheckpoint(ctx, "acct", "changes", "c1", time.Now()))
	require.NoError(t, s.SaveCheckpoint(ctx, "acct", "drive:abc", "c2", time.Now()))

	got, err := s.GetCheckpoint(ctx, "acct", "drive:abc")
	require.NoError(t, err)
	assert.Equal(t, "c2", got.Cursor)

	got, err = s.GetCheckpoint(ctx, "acct", "changes")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.Cursor)
}

func TestChannelRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	exp := time.Now().Add(24 * time.Hour).Truncate(time.Second).UTC()

	require.NoError(t, s.SaveChannel(ctx, Channel{
		ChannelID:   "chan-1",
		ResourceID:  "res-1",
		ResourceURI: "https://www.googleapis.com/drive/v3/changes",
		Expiration:  &exp,
		Token:       "secret-1",
		AccountID:   "acct",
		Kind:        "changes",
	}))

	got, err := s.GetChannel(ctx, "chan-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "res-1", got.ResourceID)
	assert.Equal(t, "secret-1", got.Token)
	require.NotNil(t, got.Expiration)
	assert.Equal(t, exp.Unix(), got.Expiration.Unix())

	list, err := s.ListChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSaveChannelPreservesTokenOnEmptyUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChannel(ctx, Channel{
		ChannelID: "chan-1",
		Token:     "secret-1",
		AccountID: "acct",
		Kind:      "changes",
	}))

	// Webhook-driven refresh carries no token.
	require.NoError(t, s.SaveChannel(ctx, Channel{
		ChannelID:  "chan-1",
		ResourceID: "res-late",
		AccountID:  "acct",
		Kind:       "changes",
	}))

	got, err := s.GetChannel(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, "secret-1", got.Token)
	assert.Equal(t, "res-late", got.ResourceID)
}

func TestDeleteChannelIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChannel(ctx, Channel{ChannelID: "chan-1", AccountID: "acct", Kind: "changes"}))
	require.NoError(t, s.DeleteChannel(ctx, "chan-1"))
	require.NoError(t, s.DeleteChannel(ctx, "chan-1"))

	got, err := s.GetChannel(ctx, "chan-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDownloadAuditLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.StartDownload(ctx, "acct", "file-1", "report.pdf", "application/pdf", "abc123")
	require.NoError(t, err)

	rec, err := s.GetDownload(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, DownloadStarted, rec.Status)
	assert.Nil(t, rec.CompletedAt)

	require.NoError(t, s.CompleteDownload(ctx, id, 4096))

	rec, err = s.GetDownload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, DownloadCompleted, rec.Status)
	assert.Equal(t, int64(4096), rec.BytesDownloaded)
	require.NotNil(t, rec.CompletedAt)
}

func TestFailDownloadRecordsPartialBytes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.StartDownload(ctx, "acct", "file-1", "big.bin", "application/octet-stream", "")
	require.NoError(t, err)

	require.NoError(t, s.FailDownload(ctx, id, 1024, "connection reset"))

	rec, err := s.GetDownload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, DownloadFailed, rec.Status)
	assert.Equal(t, int64(1024), rec.BytesDownloaded)
	assert.Equal(t, "connection reset", rec.Error)
}

func TestPruneDownloadsSkipsInProgress(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doneID, err := s.StartDownload(ctx, "acct", "f1", "a", "", "")
	require.NoError(t, err)
	require.NoError(t, s.CompleteDownload(ctx, doneID, 10))

	openID, err := s.StartDownload(ctx, "acct", "f2", "b", "", "")
	require.NoError(t, err)

	n, err := s.PruneDownloads(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := s.GetDownload(ctx, openID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, DownloadStarted, rec.Status)
}

func TestDriveCatalog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	firstSync := time.Now().Add(-time.Hour)

	require.NoError(t, s.UpsertDrive(ctx, "drv-1", "Marketing", DriveKindShared, firstSync))
	require.NoError(t, s.UpsertDrive(ctx, "drv-2", "Engineering", DriveKindShared, firstSync))

	// Second refresh only sees drv-2.
	secondSync := time.Now()
	require.NoError(t, s.UpsertDrive(ctx, "drv-2", "Engineering", DriveKindShared, secondSync))
	require.NoError(t, s.DeactivateDrivesBefore(ctx, secondSync))

	entries, err := s.ListDrives(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := map[string]CatalogEntry{}
	for _, e := range entries {
		byID[e.DriveID] = e
	}

	assert.False(t, byID["drv-1"].IsActive)
	assert.True(t, byID["drv-2"].IsActive)
}
