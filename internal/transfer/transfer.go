// Package transfer wraps file downloads with an audit trail: every download
// is recorded as started, then completed with its byte count or failed with
// the partial count and the error.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// AuditLog records download lifecycle events. *store.Store satisfies it;
// tests supply fakes.
type AuditLog interface {
	StartDownload(ctx context.Context, accountID, fileID, fileName, mimeType, checksum string) (int64, error)
	CompleteDownload(ctx context.Context, id, bytes int64) error
	FailDownload(ctx context.Context, id, bytes int64, errMsg string) error
}

// ContentSource streams file content.
type ContentSource interface {
	Download(ctx context.Context, fileID string) (io.ReadCloser, int64, error)
}

// FileMeta carries the metadata recorded alongside a download.
type FileMeta struct {
	ID       string
	Name     string
	MimeType string
	Checksum string
}

// Downloader streams file content while maintaining the audit trail.
type Downloader struct {
	source  ContentSource
	audit   AuditLog
	account string
	logger  *slog.Logger
}

// NewDownloader creates a Downloader bound to one account.
func NewDownloader(source ContentSource, audit AuditLog, account string, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Downloader{
		source:  source,
		audit:   audit,
		account: account,
		logger:  logger,
	}
}

// Open starts an audited download. The returned reader records completion on
// EOF and failure on read error or early close, with the byte count observed
// so far. An audit write failure aborts the download before any bytes move.
func (d *Downloader) Open(ctx context.Context, meta FileMeta) (io.ReadCloser, int64, error) {
	auditID, err := d.audit.StartDownload(ctx, d.account, meta.ID, meta.Name, meta.MimeType, meta.Checksum)
	if err != nil {
		return nil, 0, fmt.Errorf("transfer: recording download start: %w", err)
	}

	body, size, err := d.source.Download(ctx, meta.ID)
	if err != nil {
		if auditErr := d.audit.FailDownload(ctx, auditID, 0, err.Error()); auditErr != nil {
			d.logger.Warn("failed to record download failure",
				slog.Int64("audit_id", auditID),
				slog.String("error", auditErr.Error()),
			)
		}

		return nil, 0, err
	}

	d.logger.Info("download started",
		slog.String("file_id", meta.ID),
		slog.String("name", meta.Name),
		slog.Int64("size", size),
	)

	return &auditedStream{
		body:    body,
		audit:   d.audit,
		auditID: auditID,
		logger:  d.logger,
	}, size, nil
}

// Fetch downloads a file and copies it to w, returning the byte count.
func (d *Downloader) Fetch(ctx context.Context, meta FileMeta, w io.Writer) (int64, error) {
	stream, _, err := d.Open(ctx, meta)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, stream)

	closeErr := stream.Close()
	if err == nil {
		err = closeErr
	}

	return n, err
}

// auditedStream counts bytes as they pass and settles the audit record
// exactly once: completed on clean EOF, failed on read error or early close.
// Settlement writes use a background context so the outcome is recorded even
// when the download's own context was canceled.
type auditedStream struct {
	body    io.ReadCloser
	audit   AuditLog
	auditID int64
	bytes   int64
	settled bool
	logger  *slog.Logger
}

func (s *auditedStream) Read(p []byte) (int, error) {
	n, err := s.body.Read(p)
	s.bytes += int64(n)

	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		s.settle(true, "")
	default:
		s.settle(false, err.Error())
	}

	return n, err
}

func (s *auditedStream) Close() error {
	// Close before EOF means the caller abandoned the download.
	s.settle(false, "download aborted before completion")

	return s.body.Close()
}

func (s *auditedStream) settle(completed bool, errMsg string) {
	if s.settled {
		return
	}

	s.settled = true

	ctx := context.Background()

	var err error
	if completed {
		err = s.audit.CompleteDownload(ctx, s.auditID, s.bytes)
	} else {
		err = s.audit.FailDownload(ctx, s.auditID, s.bytes, errMsg)
	}

	if err != nil {
		s.logger.Warn("failed to settle download audit record",
			slog.Int64("audit_id", s.auditID),
			slog.String("error", err.Error()),
		)

		return
	}

	if completed {
		s.logger.Info("download completed",
			slog.Int64("audit_id", s.auditID),
			slog.Int64("bytes", s.bytes),
		)
	} else {
		s.logger.Warn("download failed",
			slog.Int64("audit_id", s.auditID),
			slog.Int64("bytes", s.bytes),
			slog.String("error", errMsg),
		)
	}
}
