package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Credential is one account's OAuth state. Empty token strings mean "absent";
// a nil ExpiresAt means the access token does not expire locally (service
// account tokens are managed by their own lifetime).
type Credential struct {
	AccountID      string
	AccessToken    string
	RefreshToken   string
	ExpiresAt      *time.Time
	Scopes         string
	ServiceAccount bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const (
	sqlGetCredential = `SELECT account_id, access_token, refresh_token, expires_at,
			scopes, service_account, created_at, updated_at
		FROM credentials WHERE account_id = ?`

	// The refresh token is only overwritten when the new value is non-empty:
	// Google rotates refresh tokens rarely, and a refresh response without one
	// must not clobber the stored token.
	sqlUpsertCredential = `INSERT INTO credentials
			(account_id, access_token, refresh_token, expires_at, scopes, service_account, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			access_token    = excluded.access_token,
			refresh_token   = CASE WHEN excluded.refresh_token != ''
				THEN excluded.refresh_token ELSE refresh_token END,
			expires_at      = excluded.expires_at,
			scopes          = CASE WHEN excluded.scopes != ''
				THEN excluded.scopes ELSE scopes END,
			service_account = excluded.service_account,
			updated_at      = excluded.updated_at`

	sqlStoreRefreshToken = `INSERT INTO credentials
			(account_id, refresh_token, scopes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			refresh_token = excluded.refresh_token,
			scopes        = CASE WHEN excluded.scopes != ''
				THEN excluded.scopes ELSE scopes END,
			updated_at    = excluded.updated_at`
)

// GetCredential returns the credential for an account, or nil if none exists.
func (s *Store) GetCredential(ctx context.Context, accountID string) (*Credential, error) {
	row := s.credStmts.get.QueryRowContext(ctx, accountID)

	var (
		c         Credential
		expiresAt sql.NullInt64
		created   int64
		updated   int64
	)

	err := row.Scan(&c.AccountID, &c.AccessToken, &c.RefreshToken, &expiresAt,
		&c.Scopes, &c.ServiceAccount, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get credential: %w", err)
	}

	c.ExpiresAt = scanTime(expiresAt)
	c.CreatedAt = time.Unix(created, 0).UTC()
	c.UpdatedAt = time.Unix(updated, 0).UTC()

	return &c, nil
}

// UpsertCredential writes an account's credential. At most one row exists per
// account; an empty incoming refresh token preserves the stored one.
func (s *Store) UpsertCredential(ctx context.Context, c Credential) error {
	now := time.Now().Unix()

	_, err := s.credStmts.upsert.ExecContext(ctx,
		c.AccountID, c.AccessToken, c.RefreshToken, nullTime(c.ExpiresAt),
		c.Scopes, c.ServiceAccount, now, now)
	if err != nil {
		return fmt.Errorf("store: upsert credential: %w", err)
	}

	return nil
}

// StoreRefreshToken persists a refresh token obtained out-of-band (the oauth
// bootstrap flow) without touching any cached access token.
func (s *Store) StoreRefreshToken(ctx context.Context, accountID, refreshToken, scopes string) error {
	now := time.Now().Unix()

	_, err := s.credStmts.storeRefresh.ExecContext(ctx, accountID, refreshToken, scopes, now, now)
	if err != nil {
		return fmt.Errorf("store: store refresh token: %w", err)
	}

	return nil
}
