package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/database/memory"
)

func newTestRegistry(ttl time.Duration) (*Registry, *memory.Store) {
	store := memory.NewStore()
	return NewRegistry(store, ttl), store
}

func TestCreateMintsUniqueTokens(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)
	ctx := context.Background()

	seen := make(map[string]bool)
	for range 100 {
		session, err := registry.Create(ctx, "op-1")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if session.Token == "" {
			t.Fatal("expected non-empty token")
		}
		if seen[session.Token] {
			t.Fatalf("duplicate token minted: %s", session.Token)
		}
		seen[session.Token] = true
	}
}

func TestResolveUnknownToken(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)

	_, err := registry.Resolve(context.Background(), "unknown-token")
	if !errors.Is(err, database.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestResolveOpenSession(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)
	ctx := context.Background()

	created, err := registry.Create(ctx, "op-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	resolved, err := registry.Resolve(ctx, created.Token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.IssuerID != "op-1" {
		t.Errorf("expected issuer op-1, got %s", resolved.IssuerID)
	}
}

func TestResolveExpiredSession(t *testing.T) {
	registry, _ := newTestRegistry(time.Minute)
	ctx := context.Background()

	created, err := registry.Create(ctx, "op-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	registry.now = func() time.Time { return created.ExpiresAt.Add(time.Second) }

	_, err = registry.Resolve(ctx, created.Token)
	if !errors.Is(err, database.ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
}

func TestResolveClosedSession(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)
	ctx := context.Background()

	created, err := registry.Create(ctx, "op-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := registry.Close(ctx, created.Token); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	_, err = registry.Resolve(ctx, created.Token)
	if !errors.Is(err, database.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestCheckinOnce(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)
	ctx := context.Background()

	created, err := registry.Create(ctx, "op-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := registry.Checkin(ctx, created.Token, "subj-1"); err != nil {
		t.Fatalf("first checkin failed: %v", err)
	}
	if err := registry.Checkin(ctx, created.Token, "subj-1"); !errors.Is(err, database.ErrAlreadyCheckedIn) {
		t.Errorf("expected ErrAlreadyCheckedIn, got %v", err)
	}

	resolved, err := registry.Resolve(ctx, created.Token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.CheckinCount != 1 {
		t.Errorf("expected roster of 1 after duplicate attempt, got %d", resolved.CheckinCount)
	}
}

func TestCheckinExpiredSession(t *testing.T) {
	registry, _ := newTestRegistry(time.Minute)
	ctx := context.Background()

	created, err := registry.Create(ctx, "op-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	registry.now = func() time.Time { return created.ExpiresAt.Add(time.Second) }

	if err := registry.Checkin(ctx, created.Token, "subj-1"); !errors.Is(err, database.ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
}

func TestConcurrentCheckinsSingleWinner(t *testing.T) {
	registry, store := newTestRegistry(time.Hour)
	ctx := context.Background()

	created, err := registry.Create(ctx, "op-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const attempts = 20
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = registry.Checkin(ctx, created.Token, "subj-1")
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, database.ErrAlreadyCheckedIn):
			rejected++
		default:
			t.Errorf("unexpected checkin error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one winning checkin, got %d", succeeded)
	}
	if rejected != attempts-1 {
		t.Errorf("expected %d rejected checkins, got %d", attempts-1, rejected)
	}

	records, err := store.ListBySession(ctx, created.Token)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected exactly one ledger record, got %d", len(records))
	}
}

func TestPurgeExpiredKeepsReferencedSessions(t *testing.T) {
	registry, store := newTestRegistry(time.Minute)
	ctx := context.Background()

	empty, err := registry.Create(ctx, "op-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	attended, err := registry.Create(ctx, "op-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := registry.Checkin(ctx, attended.Token, "subj-1"); err != nil {
		t.Fatalf("checkin failed: %v", err)
	}

	registry.now = func() time.Time { return empty.ExpiresAt.Add(time.Hour) }

	deleted, err := registry.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 purged session, got %d", deleted)
	}

	// The attended session survives for the ledger's sake.
	if got, err := store.GetSession(ctx, attended.Token); err != nil || got == nil {
		t.Errorf("expected attended session to survive purge, got %v err=%v", got, err)
	}
	if got, err := store.GetSession(ctx, empty.Token); err != nil || got != nil {
		t.Errorf("expected empty session purged, got %v err=%v", got, err)
	}
}
