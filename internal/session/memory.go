package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps session records in memory. Used for development and
// tests; production deployments use the PostgreSQL-backed store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

// Get retrieves a copy of the record for an account.
func (s *MemoryStore) Get(_ context.Context, accountID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[accountID]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy so the caller never shares memory with a concurrent writer.
	cp := *rec
	return &cp, nil
}

// Upsert creates or replaces the record keyed by rec.AccountID.
func (s *MemoryStore) Upsert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cp := *rec
	if existing, ok := s.records[rec.AccountID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.records[rec.AccountID] = &cp
	return nil
}

// Clear unsets the token fields but keeps the record.
func (s *MemoryStore) Clear(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[accountID]
	if !ok {
		return ErrNotFound
	}

	rec.AccessToken = ""
	rec.RefreshToken = ""
	rec.IssuedAt = time.Time{}
	rec.TTL = 0
	rec.UpdatedAt = time.Now()
	return nil
}

var _ Store = (*MemoryStore)(nil)
