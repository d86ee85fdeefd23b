package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRefreshStore() (*MemoryRefreshTokenStore, *time.Time) {
	current := time.Now().UTC()
	store := NewMemoryRefreshTokenStore(7 * 24 * time.Hour)
	store.now = func() time.Time { return current }
	return store, &current
}

func TestIssueProducesDistinctOpaqueTokens(t *testing.T) {
	store, _ := newTestRefreshStore()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := store.Issue(ctx, "user-1")
		if err != nil {
			t.Fatalf("issue failed: %v", err)
		}
		if token.Opaque == "" {
			t.Fatalf("issued token carries no opaque value")
		}
		if seen[token.Opaque] {
			t.Fatalf("opaque token repeated after %d issues", i)
		}
		seen[token.Opaque] = true
	}
}

func TestFindReturnsIssuedToken(t *testing.T) {
	store, _ := newTestRefreshStore()
	ctx := context.Background()

	issued, err := store.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	found, err := store.Find(ctx, issued.Opaque)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", found.UserID)
	}
	if found.Opaque != "" {
		t.Fatalf("stored records must not retain the opaque value")
	}
	if found.TokenHash != HashRefreshOpaque(issued.Opaque) {
		t.Fatalf("stored hash does not match the opaque token")
	}

	if _, err := store.Find(ctx, "never-issued"); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected ErrRefreshTokenNotFound, got %v", err)
	}
	if _, err := store.Find(ctx, ""); !errors.Is(err, ErrRefreshTokenEmptyOpaque) {
		t.Fatalf("expected ErrRefreshTokenEmptyOpaque, got %v", err)
	}
}

func TestRevokeIsOneShot(t *testing.T) {
	store, _ := newTestRefreshStore()
	ctx := context.Background()

	issued, err := store.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if !store.IsValid(ctx, issued.Opaque) {
		t.Fatalf("fresh token must be valid")
	}

	revoked, err := store.Revoke(ctx, issued.Opaque)
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if !revoked {
		t.Fatalf("first revoke must claim the token")
	}

	revoked, err = store.Revoke(ctx, issued.Opaque)
	if err != nil {
		t.Fatalf("second revoke failed: %v", err)
	}
	if revoked {
		t.Fatalf("second revoke must be a no-op")
	}
	if store.IsValid(ctx, issued.Opaque) {
		t.Fatalf("revoked token must be invalid")
	}

	record, err := store.Find(ctx, issued.Opaque)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if !record.IsRevoked || record.RevokedAt == nil {
		t.Fatalf("revocation state not recorded: %+v", record)
	}
}

func TestRevokeUnknownToken(t *testing.T) {
	store, _ := newTestRefreshStore()

	revoked, err := store.Revoke(context.Background(), "never-issued")
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if revoked {
		t.Fatalf("unknown token must not report revoked")
	}
}

func TestExpiredTokenIsInvalid(t *testing.T) {
	store, current := newTestRefreshStore()
	ctx := context.Background()

	issued, err := store.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	*current = issued.ExpiresAt.Add(time.Second)
	if store.IsValid(ctx, issued.Opaque) {
		t.Fatalf("expired token must be invalid")
	}
	// Expiry does not make the record disappear until a sweep.
	if _, err := store.Find(ctx, issued.Opaque); err != nil {
		t.Fatalf("expired token must still be findable: %v", err)
	}
}

func TestRevokeAllForUserScopesToOwner(t *testing.T) {
	store, _ := newTestRefreshStore()
	ctx := context.Background()

	var mine []string
	for i := 0; i < 3; i++ {
		token, err := store.Issue(ctx, "user-1")
		if err != nil {
			t.Fatalf("issue failed: %v", err)
		}
		mine = append(mine, token.Opaque)
	}
	other, err := store.Issue(ctx, "user-2")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	count, err := store.RevokeAllForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 revoked, got %d", count)
	}
	for _, opaque := range mine {
		if store.IsValid(ctx, opaque) {
			t.Fatalf("user-1 token survived revoke all")
		}
	}
	if !store.IsValid(ctx, other.Opaque) {
		t.Fatalf("user-2 token must be untouched")
	}

	count, err = store.RevokeAllForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("second revoke all must find nothing, got %d", count)
	}
}

func TestSweepExpiredRemovesOnlyDeadRows(t *testing.T) {
	store, current := newTestRefreshStore()
	ctx := context.Background()

	stale, err := store.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	*current = stale.ExpiresAt.Add(time.Second)
	fresh, err := store.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	removed, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := store.Find(ctx, stale.Opaque); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("swept token must be gone, got %v", err)
	}
	if !store.IsValid(ctx, fresh.Opaque) {
		t.Fatalf("live token must survive the sweep")
	}
}
