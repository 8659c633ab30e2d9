// Package session defines the durable per-account session record and the
// stores that hold it. One record exists per Spotify account; logout clears
// the token fields but keeps the record as a placeholder.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for an account.
var ErrNotFound = errors.New("session not found")

// Record holds the OAuth token material for one authorized account.
type Record struct {
	AccountID    string
	DisplayName  string
	Email        string
	AccessToken  string
	RefreshToken string

	// IssuedAt and TTL describe the validity window of AccessToken as
	// reported by the upstream provider at issuance.
	IssuedAt time.Time
	TTL      time.Duration

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the access token has outlived its validity window.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.IssuedAt.Add(r.TTL))
}

// Authenticated reports whether the record currently holds any token
// material. A cleared (logged-out) or never-authorized record is not
// authenticated.
func (r *Record) Authenticated() bool {
	return r.AccessToken != "" || r.RefreshToken != ""
}

// Store is the persistence contract for session records. Implementations
// must keep per-record writes atomic: a concurrent reader never observes a
// partially written record.
type Store interface {
	// Get returns the record for an account, or ErrNotFound.
	Get(ctx context.Context, accountID string) (*Record, error)

	// Upsert creates or replaces the record keyed by rec.AccountID.
	Upsert(ctx context.Context, rec *Record) error

	// Clear unsets the token fields but keeps the record. Clearing an
	// already-cleared record is a no-op; clearing an unknown account
	// returns ErrNotFound.
	Clear(ctx context.Context, accountID string) error
}
