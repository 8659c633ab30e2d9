package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testRecord(accountID string) *Record {
	return &Record{
		AccountID:    accountID,
		DisplayName:  "Test User",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		IssuedAt:     time.Now(),
		TTL:          time.Hour,
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreUpsertAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, testRecord("alice")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AccessToken != "access-1" {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, "access-1")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("expected CreatedAt and UpdatedAt to be set")
	}

	// Mutating the returned record must not affect the stored one.
	got.AccessToken = "tampered"
	again, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.AccessToken != "access-1" {
		t.Errorf("stored AccessToken = %q after caller mutation, want %q", again.AccessToken, "access-1")
	}
}

func TestMemoryStoreUpsertReplaces(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, testRecord("alice")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	first, _ := store.Get(ctx, "alice")

	updated := testRecord("alice")
	updated.AccessToken = "access-2"
	if err := store.Upsert(ctx, updated); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AccessToken != "access-2" {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, "access-2")
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on upsert: %v != %v", got.CreatedAt, first.CreatedAt)
	}
}

func TestMemoryStoreClear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, testRecord("alice")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// Clearing twice must leave the same cleared state both times.
	for i := 0; i < 2; i++ {
		if err := store.Clear(ctx, "alice"); err != nil {
			t.Fatalf("Clear() #%d error = %v", i+1, err)
		}

		got, err := store.Get(ctx, "alice")
		if err != nil {
			t.Fatalf("Get() after clear error = %v", err)
		}
		if got.AccessToken != "" || got.RefreshToken != "" {
			t.Errorf("clear #%d left tokens: access=%q refresh=%q", i+1, got.AccessToken, got.RefreshToken)
		}
		if got.Authenticated() {
			t.Errorf("clear #%d: record still authenticated", i+1)
		}
		if got.DisplayName != "Test User" {
			t.Errorf("clear #%d dropped the record metadata", i+1)
		}
	}

	if err := store.Clear(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Clear(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreConcurrentUpserts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rec := testRecord("alice")
			rec.AccessToken = fmt.Sprintf("access-%d", n)
			if err := store.Upsert(ctx, rec); err != nil {
				t.Errorf("Upsert() error = %v", err)
			}
			if _, err := store.Get(ctx, "alice"); err != nil {
				t.Errorf("Get() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AccessToken == "" {
		t.Error("expected a complete record after concurrent upserts")
	}
}

func TestRecordExpired(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		rec     Record
		expired bool
	}{
		{
			name:    "fresh token",
			rec:     Record{IssuedAt: now, TTL: time.Hour},
			expired: false,
		},
		{
			name:    "past expiry",
			rec:     Record{IssuedAt: now.Add(-2 * time.Hour), TTL: time.Hour},
			expired: true,
		},
		{
			name:    "exactly at expiry",
			rec:     Record{IssuedAt: now.Add(-time.Hour), TTL: time.Hour},
			expired: true,
		},
		{
			name:    "zero value record",
			rec:     Record{},
			expired: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Expired(now); got != tt.expired {
				t.Errorf("Expired() = %v, want %v", got, tt.expired)
			}
		})
	}
}
