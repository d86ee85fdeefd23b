package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ykurmanov/marketd/internal/authcore"
)

// RefreshTokenStore implements authcore.RefreshTokenStore on the
// refresh_tokens table. Rotation safety rests on the conditional update
// in Revoke: the validity check and the write are one statement, so a
// read-then-write race cannot revoke-or-rotate the same token twice.
type RefreshTokenStore struct {
	db         *gorm.DB
	refreshTTL time.Duration
	now        func() time.Time
}

// NewRefreshTokenStore wraps a connected GORM handle, issuing tokens
// with the given TTL.
func NewRefreshTokenStore(db *gorm.DB, refreshTTL time.Duration) *RefreshTokenStore {
	if refreshTTL <= 0 {
		refreshTTL = authcore.DefaultRefreshTokenTTL
	}
	return &RefreshTokenStore{
		db:         db,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue persists a new token row and returns it with the raw opaque
// value set.
func (store *RefreshTokenStore) Issue(ctx context.Context, userID string) (*authcore.RefreshToken, error) {
	opaque, hash, err := authcore.GenerateRefreshOpaque()
	if err != nil {
		return nil, err
	}
	now := store.now()
	record := refreshTokenRecord{
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: now.Add(store.refreshTTL),
		CreatedAt: now,
	}
	if createErr := store.db.WithContext(ctx).Create(&record).Error; createErr != nil {
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			return nil, authcore.ErrConflict
		}
		return nil, fmt.Errorf("refresh_store.issue: %w", createErr)
	}
	token := record.toToken()
	token.Opaque = opaque
	return token, nil
}

// Find returns the record behind an opaque token.
func (store *RefreshTokenStore) Find(ctx context.Context, opaque string) (*authcore.RefreshToken, error) {
	if opaque == "" {
		return nil, authcore.ErrRefreshTokenEmptyOpaque
	}
	var record refreshTokenRecord
	err := store.db.WithContext(ctx).
		Where("token_hash = ?", authcore.HashRefreshOpaque(opaque)).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authcore.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("refresh_store.find: %w", err)
	}
	return record.toToken(), nil
}

// IsValid reports whether the opaque token maps to a live row.
func (store *RefreshTokenStore) IsValid(ctx context.Context, opaque string) bool {
	token, err := store.Find(ctx, opaque)
	if err != nil {
		return false
	}
	return token.Live(store.now())
}

// Revoke marks the row revoked iff it is not already. RowsAffected
// decides who won a concurrent race.
func (store *RefreshTokenStore) Revoke(ctx context.Context, opaque string) (bool, error) {
	if opaque == "" {
		return false, authcore.ErrRefreshTokenEmptyOpaque
	}
	now := store.now()
	result := store.db.WithContext(ctx).Model(&refreshTokenRecord{}).
		Where("token_hash = ? AND is_revoked = ?", authcore.HashRefreshOpaque(opaque), false).
		Updates(map[string]interface{}{"is_revoked": true, "revoked_at": now})
	if result.Error != nil {
		return false, fmt.Errorf("refresh_store.revoke: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// RevokeAllForUser revokes every live token of the user in one statement.
func (store *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	now := store.now()
	result := store.db.WithContext(ctx).Model(&refreshTokenRecord{}).
		Where("user_id = ? AND is_revoked = ? AND expires_at > ?", userID, false, now).
		Updates(map[string]interface{}{"is_revoked": true, "revoked_at": now})
	if result.Error != nil {
		return 0, fmt.Errorf("refresh_store.revoke_all: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SweepExpired hard-deletes rows past expiry, revoked or not.
func (store *RefreshTokenStore) SweepExpired(ctx context.Context) (int64, error) {
	result := store.db.WithContext(ctx).
		Where("expires_at <= ?", store.now()).
		Delete(&refreshTokenRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("refresh_store.sweep: %w", result.Error)
	}
	return result.RowsAffected, nil
}
