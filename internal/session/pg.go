package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ehjjacobson/tiny-tune/internal/db"
)

// PGStore persists session records in PostgreSQL.
type PGStore struct {
	accounts *db.AccountRepository
}

// NewPGStore creates a session store backed by the given database.
func NewPGStore(database *db.DB) *PGStore {
	return &PGStore{accounts: database.Accounts()}
}

// Get retrieves the record for an account.
func (s *PGStore) Get(ctx context.Context, accountID string) (*Record, error) {
	acct, err := s.accounts.Get(ctx, accountID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	return recordFromAccount(acct), nil
}

// Upsert creates or replaces the record keyed by rec.AccountID.
func (s *PGStore) Upsert(ctx context.Context, rec *Record) error {
	acct := &db.Account{
		AccountID:    rec.AccountID,
		DisplayName:  rec.DisplayName,
		Email:        rec.Email,
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		IssuedAt:     rec.IssuedAt,
		TTLSeconds:   int64(rec.TTL / time.Second),
	}
	if err := s.accounts.Upsert(ctx, acct); err != nil {
		return err
	}
	rec.CreatedAt = acct.CreatedAt
	rec.UpdatedAt = acct.UpdatedAt
	return nil
}

// Clear unsets the token fields but keeps the record.
func (s *PGStore) Clear(ctx context.Context, accountID string) error {
	err := s.accounts.Clear(ctx, accountID)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func recordFromAccount(acct *db.Account) *Record {
	return &Record{
		AccountID:    acct.AccountID,
		DisplayName:  acct.DisplayName,
		Email:        acct.Email,
		AccessToken:  acct.AccessToken,
		RefreshToken: acct.RefreshToken,
		IssuedAt:     acct.IssuedAt,
		TTL:          time.Duration(acct.TTLSeconds) * time.Second,
		CreatedAt:    acct.CreatedAt,
		UpdatedAt:    acct.UpdatedAt,
	}
}

var _ Store = (*PGStore)(nil)
