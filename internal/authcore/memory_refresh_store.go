package authcore

import (
	"context"
	"sync"
	"time"
)

// MemoryRefreshTokenStore keeps refresh tokens in process memory. It is
// intended for tests and single-node development runs; durable session
// state belongs in a database-backed store.
type MemoryRefreshTokenStore struct {
	mutex      sync.Mutex
	byHash     map[string]*RefreshToken
	refreshTTL time.Duration
	now        func() time.Time
}

// NewMemoryRefreshTokenStore creates an in-memory store issuing tokens
// with the given TTL.
func NewMemoryRefreshTokenStore(refreshTTL time.Duration) *MemoryRefreshTokenStore {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	return &MemoryRefreshTokenStore{
		byHash:     make(map[string]*RefreshToken),
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a new token record for the user.
func (store *MemoryRefreshTokenStore) Issue(ctx context.Context, userID string) (*RefreshToken, error) {
	opaque, hash, err := GenerateRefreshOpaque()
	if err != nil {
		return nil, err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.byHash[hash]; exists {
		return nil, ErrConflict
	}
	now := store.now()
	record := &RefreshToken{
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: now.Add(store.refreshTTL),
		CreatedAt: now,
	}
	store.byHash[hash] = record
	issued := *record
	issued.Opaque = opaque
	return &issued, nil
}

// Find returns the record behind an opaque token.
func (store *MemoryRefreshTokenStore) Find(ctx context.Context, opaque string) (*RefreshToken, error) {
	if opaque == "" {
		return nil, ErrRefreshTokenEmptyOpaque
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.byHash[HashRefreshOpaque(opaque)]
	if !ok {
		return nil, ErrRefreshTokenNotFound
	}
	clone := *record
	return &clone, nil
}

// IsValid reports whether the opaque token maps to a live record.
func (store *MemoryRefreshTokenStore) IsValid(ctx context.Context, opaque string) bool {
	record, err := store.Find(ctx, opaque)
	if err != nil {
		return false
	}
	return record.Live(store.now())
}

// Revoke flips the token to revoked. The check and the write happen under
// one lock, so concurrent callers agree on who made the change.
func (store *MemoryRefreshTokenStore) Revoke(ctx context.Context, opaque string) (bool, error) {
	if opaque == "" {
		return false, ErrRefreshTokenEmptyOpaque
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.byHash[HashRefreshOpaque(opaque)]
	if !ok || record.IsRevoked {
		return false, nil
	}
	revokedAt := store.now()
	record.IsRevoked = true
	record.RevokedAt = &revokedAt
	return true, nil
}

// RevokeAllForUser revokes every live token owned by the user.
func (store *MemoryRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	now := store.now()
	var revoked int64
	for _, record := range store.byHash {
		if record.UserID != userID || record.IsRevoked || !now.Before(record.ExpiresAt) {
			continue
		}
		revokedAt := now
		record.IsRevoked = true
		record.RevokedAt = &revokedAt
		revoked++
	}
	return revoked, nil
}

// SweepExpired drops rows past expiry.
func (store *MemoryRefreshTokenStore) SweepExpired(ctx context.Context) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	now := store.now()
	var removed int64
	for hash, record := range store.byHash {
		if !now.Before(record.ExpiresAt) {
			delete(store.byHash, hash)
			removed++
		}
	}
	return removed, nil
}
