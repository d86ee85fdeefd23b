package authpg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ykurmanov/marketd/internal/authcore"
)

const pgUniqueViolation = "23505"

// RefreshTokenStore implements authcore.RefreshTokenStore on raw SQL.
type RefreshTokenStore struct {
	pool       *pgxpool.Pool
	refreshTTL time.Duration
	now        func() time.Time
}

// NewRefreshTokenStore wraps a connected pool.
func NewRefreshTokenStore(pool *pgxpool.Pool, refreshTTL time.Duration) *RefreshTokenStore {
	if refreshTTL <= 0 {
		refreshTTL = authcore.DefaultRefreshTokenTTL
	}
	return &RefreshTokenStore{
		pool:       pool,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue inserts a new token row and returns it with the opaque value set.
func (store *RefreshTokenStore) Issue(ctx context.Context, userID string) (*authcore.RefreshToken, error) {
	opaque, hash, err := authcore.GenerateRefreshOpaque()
	if err != nil {
		return nil, err
	}
	now := store.now()
	expiresAt := now.Add(store.refreshTTL)
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO refresh_tokens (token_hash, user_id, expires_at, is_revoked, revoked_at, created_at)
VALUES ($1, $2, $3, FALSE, NULL, $4)
`, hash, userID, expiresAt, now)
	if execErr != nil {
		var pgErr *pgconn.PgError
		if errors.As(execErr, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, authcore.ErrConflict
		}
		return nil, fmt.Errorf("refresh_store.pg.issue: %w", execErr)
	}
	return &authcore.RefreshToken{
		Opaque:    opaque,
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// Find returns the record behind an opaque token.
func (store *RefreshTokenStore) Find(ctx context.Context, opaque string) (*authcore.RefreshToken, error) {
	if opaque == "" {
		return nil, authcore.ErrRefreshTokenEmptyOpaque
	}
	token := authcore.RefreshToken{TokenHash: authcore.HashRefreshOpaque(opaque)}
	row := store.pool.QueryRow(ctx, `
SELECT user_id, expires_at, is_revoked, revoked_at, created_at
FROM refresh_tokens
WHERE token_hash = $1
`, token.TokenHash)
	scanErr := row.Scan(&token.UserID, &token.ExpiresAt, &token.IsRevoked, &token.RevokedAt, &token.CreatedAt)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, authcore.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("refresh_store.pg.find: %w", scanErr)
	}
	return &token, nil
}

// IsValid reports whether the opaque token maps to a live row.
func (store *RefreshTokenStore) IsValid(ctx context.Context, opaque string) bool {
	token, err := store.Find(ctx, opaque)
	if err != nil {
		return false
	}
	return token.Live(store.now())
}

// Revoke conditionally marks the row revoked; the affected-row count
// decides the winner of concurrent rotation attempts.
func (store *RefreshTokenStore) Revoke(ctx context.Context, opaque string) (bool, error) {
	if opaque == "" {
		return false, authcore.ErrRefreshTokenEmptyOpaque
	}
	tag, err := store.pool.Exec(ctx, `
UPDATE refresh_tokens
SET is_revoked = TRUE, revoked_at = $1
WHERE token_hash = $2 AND is_revoked = FALSE
`, store.now(), authcore.HashRefreshOpaque(opaque))
	if err != nil {
		return false, fmt.Errorf("refresh_store.pg.revoke: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeAllForUser revokes every live token of the user.
func (store *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	now := store.now()
	tag, err := store.pool.Exec(ctx, `
UPDATE refresh_tokens
SET is_revoked = TRUE, revoked_at = $1
WHERE user_id = $2 AND is_revoked = FALSE AND expires_at > $1
`, now, userID)
	if err != nil {
		return 0, fmt.Errorf("refresh_store.pg.revoke_all: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SweepExpired hard-deletes rows past expiry.
func (store *RefreshTokenStore) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := store.pool.Exec(ctx, `
DELETE FROM refresh_tokens WHERE expires_at <= $1
`, store.now())
	if err != nil {
		return 0, fmt.Errorf("refresh_store.pg.sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}
