package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Account is the database row for one Spotify account's session record.
type Account struct {
	AccountID    string
	DisplayName  string
	Email        string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	TTLSeconds   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountRepository handles account database operations.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves an account by its Spotify ID.
func (r *AccountRepository) Get(ctx context.Context, accountID string) (*Account, error) {
	query := `
		SELECT account_id, display_name, email, access_token, refresh_token,
		       issued_at, ttl_seconds, created_at, updated_at
		FROM accounts
		WHERE account_id = $1
	`
	var acct Account
	err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&acct.AccountID,
		&acct.DisplayName,
		&acct.Email,
		&acct.AccessToken,
		&acct.RefreshToken,
		&acct.IssuedAt,
		&acct.TTLSeconds,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return &acct, nil
}

// Upsert creates or replaces the account row keyed by account_id. The whole
// row is written in one statement so concurrent refresh writes for the same
// account never leave a half-updated record.
func (r *AccountRepository) Upsert(ctx context.Context, acct *Account) error {
	query := `
		INSERT INTO accounts (account_id, display_name, email, access_token,
		                      refresh_token, issued_at, ttl_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			issued_at = EXCLUDED.issued_at,
			ttl_seconds = EXCLUDED.ttl_seconds,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		acct.AccountID,
		acct.DisplayName,
		acct.Email,
		acct.AccessToken,
		acct.RefreshToken,
		acct.IssuedAt,
		acct.TTLSeconds,
	).Scan(&acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting account: %w", err)
	}
	return nil
}

// Clear unsets the token fields for an account, keeping the row.
func (r *AccountRepository) Clear(ctx context.Context, accountID string) error {
	query := `
		UPDATE accounts
		SET access_token = '', refresh_token = '', issued_at = 'epoch',
		    ttl_seconds = 0, updated_at = NOW()
		WHERE account_id = $1
	`
	result, err := r.pool.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("clearing account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
