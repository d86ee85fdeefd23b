package authcore

import "errors"

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// passwords so callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("auth.invalid_credentials")
	// ErrInvalidOrExpiredToken indicates a refresh token that is missing,
	// revoked, or past expiry, or an access token failing verification.
	ErrInvalidOrExpiredToken = errors.New("auth.invalid_or_expired_token")
	// ErrUnauthorized indicates a request that could not be resolved to a
	// live authenticated user.
	ErrUnauthorized = errors.New("auth.unauthorized")
	// ErrForbidden indicates an authenticated user lacking a required role.
	ErrForbidden = errors.New("auth.forbidden")
	// ErrConflict indicates a uniqueness collision, either a duplicate
	// account or the astronomically unlikely refresh token collision.
	ErrConflict = errors.New("auth.conflict")
	// ErrUserNotFound indicates a token whose owning user row is missing.
	ErrUserNotFound = errors.New("auth.user_not_found")
)

var (
	// ErrRefreshTokenNotFound indicates no refresh token matched the
	// presented opaque value.
	ErrRefreshTokenNotFound = errors.New("refresh_store.not_found")
	// ErrRefreshTokenEmptyOpaque indicates an empty opaque token string.
	ErrRefreshTokenEmptyOpaque = errors.New("refresh_store.empty_token")
)
