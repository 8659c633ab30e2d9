package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/ehjjacobson/tiny-tune/internal/session"
)

// Errors surfaced by the gate.
var (
	// ErrSessionNotFound means no session record exists for the account.
	ErrSessionNotFound = errors.New("no session for account")

	// ErrAuthExpired means the account's authorization can no longer be
	// renewed; the account must log in again. Never auto-retried.
	ErrAuthExpired = errors.New("authorization expired")
)

// Gate guarantees a non-expired access token per account before any
// upstream call proceeds. Concurrent requests for the same expired account
// collapse into exactly one refresh exchange; unrelated accounts refresh
// independently.
type Gate struct {
	store     session.Store
	refresher *Refresher
	group     singleflight.Group
	timeout   time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// NewGate creates a Gate over the given store and refresher.
func NewGate(store session.Store, refresher *Refresher, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.Default()
	}
	return &Gate{
		store:     store,
		refresher: refresher,
		timeout:   refreshTimeout,
		logger:    logger,
		now:       time.Now,
	}
}

// AccessToken returns a token valid for at least the immediate upstream
// call, refreshing it first if the stored one has expired.
func (g *Gate) AccessToken(ctx context.Context, accountID string) (string, error) {
	rec, err := g.load(ctx, accountID)
	if err != nil {
		return "", err
	}
	if rec.AccessToken != "" && !rec.Expired(g.now()) {
		return rec.AccessToken, nil
	}

	token, err, _ := g.group.Do(accountID, func() (any, error) {
		return g.refresh(ctx, accountID)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// refresh runs inside the per-account flight. Its context is detached from
// the winning caller so one cancelled request cannot fail the waiters, and
// bounded so the flight always releases.
func (g *Gate) refresh(ctx context.Context, accountID string) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	// Re-read: a previous flight may have refreshed while we queued.
	rec, err := g.load(ctx, accountID)
	if err != nil {
		return "", err
	}
	if rec.AccessToken != "" && !rec.Expired(g.now()) {
		return rec.AccessToken, nil
	}
	if rec.RefreshToken == "" {
		// Terminal: without a refresh token the session can never be
		// un-expired. Fail fast, no upstream call.
		return "", ErrAuthExpired
	}

	token, err := g.refresher.Refresh(ctx, rec.RefreshToken)
	if errors.Is(err, ErrRefreshDenied) {
		g.logger.Warn("refresh denied, re-login required", "account", accountID, "err", err)
		return "", fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	if err != nil {
		// Transient: session untouched, caller may retry later.
		return "", err
	}

	rec.AccessToken = token.AccessToken
	rec.IssuedAt = token.IssuedAt
	rec.TTL = token.TTL
	if token.RefreshToken != "" {
		// Rotation: the upstream invalidated the old refresh token.
		rec.RefreshToken = token.RefreshToken
	}
	if err := g.store.Upsert(ctx, rec); err != nil {
		return "", fmt.Errorf("persisting refreshed token: %w", err)
	}

	g.logger.Debug("access token refreshed", "account", accountID, "ttl", token.TTL)
	return token.AccessToken, nil
}

func (g *Gate) load(ctx context.Context, accountID string) (*session.Record, error) {
	rec, err := g.store.Get(ctx, accountID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return rec, nil
}
