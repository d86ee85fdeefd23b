package authcore

import (
	"context"
	"time"
)

// User is the slice of the marketplace user record the auth core reads.
// The core never mutates user fields except last_login, and that only
// through the UserStore collaborator.
type User struct {
	ID           string
	Email        string
	Username     string
	Phone        string
	PasswordHash string
	IsSeller     bool
	IsAdmin      bool
	IsVerified   bool
	LastLogin    *time.Time
}

// UserStore is the user-lookup collaborator. Lookups return
// ErrUserNotFound when no record matches.
type UserStore interface {
	ByID(ctx context.Context, userID string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	ByPhone(ctx context.Context, phone string) (*User, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// RefreshTokenStore owns the persisted refresh token rows. No other
// component touches that table.
type RefreshTokenStore interface {
	// Issue creates and persists a fresh token for the user. The returned
	// record carries the raw opaque value; it is never retrievable again.
	Issue(ctx context.Context, userID string) (*RefreshToken, error)
	// Find returns the record for an opaque token, or
	// ErrRefreshTokenNotFound.
	Find(ctx context.Context, opaque string) (*RefreshToken, error)
	// IsValid reports found && not revoked && not expired.
	IsValid(ctx context.Context, opaque string) bool
	// Revoke marks the token revoked. It reports whether this call made
	// the change: exactly one caller observes true for a given token, no
	// matter how many race on it. Revoking an unknown or already-revoked
	// token returns false without error.
	Revoke(ctx context.Context, opaque string) (bool, error)
	// RevokeAllForUser revokes every live token of the user and returns
	// the count revoked.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	// SweepExpired hard-deletes rows past expiry regardless of revocation
	// state. Idempotent and safe to run concurrently.
	SweepExpired(ctx context.Context) (int64, error)
}
