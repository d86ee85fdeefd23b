package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// enumerationDecoy is a real-format hash the login path verifies against
// when no account matches the identifier, so unknown identifiers cost
// the same key derivation as wrong passwords.
var enumerationDecoy = func() string {
	hash, err := HashPassword("decoy-never-a-real-credential")
	if err != nil {
		panic(err)
	}
	return hash
}()

// TokenPair is the result of a successful login or refresh. It is always
// complete: callers never see a partial pair.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenStatus is the introspection view clients use for proactive
// refresh.
type TokenStatus struct {
	Valid        bool
	ExpiringSoon bool
	ExpiresAt    time.Time
	Remaining    time.Duration
}

// Service orchestrates credential verification and the session
// lifecycle: Anonymous -> Authenticated -> (Refreshed)* -> LoggedOut.
type Service struct {
	codec           *TokenCodec
	refreshTokens   RefreshTokenStore
	users           UserStore
	logger          *zap.Logger
	metrics         MetricsRecorder
	expiryThreshold time.Duration
	now             func() time.Time
}

// NewService wires the auth core together. Logger and metrics may be nil.
func NewService(codec *TokenCodec, refreshTokens RefreshTokenStore, users UserStore, logger *zap.Logger, metrics MetricsRecorder) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		codec:           codec,
		refreshTokens:   refreshTokens,
		users:           users,
		logger:          logger,
		metrics:         metrics,
		expiryThreshold: DefaultExpiryThreshold,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Login verifies an identifier/password credential and returns a fresh
// token pair. The identifier is resolved by exact email, then phone, then
// username; the first match wins. Unknown identifiers and wrong passwords
// are indistinguishable to the caller.
func (service *Service) Login(ctx context.Context, identifier string, password string) (*TokenPair, error) {
	user, err := service.resolveIdentifier(ctx, identifier)
	if err != nil {
		// Burn a full verification against the decoy so unknown
		// identifiers do not return measurably faster than wrong
		// passwords.
		VerifyPassword(password, enumerationDecoy)
		service.metrics.Increment(MetricLoginFailure)
		service.logger.Info("auth.login.invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if !VerifyPassword(password, user.PasswordHash) {
		service.metrics.Increment(MetricLoginFailure)
		service.logger.Info("auth.login.invalid_credentials", zap.String("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	if err := service.users.UpdateLastLogin(ctx, user.ID, service.now()); err != nil {
		// A failed stamp must not block the login itself.
		service.logger.Warn("auth.login.last_login_stamp_failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	pair, err := service.issuePair(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	service.metrics.Increment(MetricLoginSuccess)
	service.logger.Info("auth.login.success", zap.String("user_id", user.ID))
	return pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// new pair is issued. The conditional revoke is the atomic claim on the
// token, so of N concurrent calls presenting the same token at most one
// proceeds; the rest fail as invalid.
func (service *Service) Refresh(ctx context.Context, opaque string) (*TokenPair, error) {
	record, err := service.refreshTokens.Find(ctx, opaque)
	if err != nil || !record.Live(service.now()) {
		service.metrics.Increment(MetricRefreshFailure)
		return nil, ErrInvalidOrExpiredToken
	}

	claimed, err := service.refreshTokens.Revoke(ctx, opaque)
	if err != nil {
		return nil, fmt.Errorf("auth.refresh.revoke: %w", err)
	}
	if !claimed {
		// Lost the race, or the token died between Find and Revoke.
		service.metrics.Increment(MetricRefreshFailure)
		service.logger.Info("auth.refresh.rotation_conflict", zap.String("token", TokenLogRef(opaque)))
		return nil, ErrInvalidOrExpiredToken
	}

	user, err := service.users.ByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Foreign-key anomaly: a live token pointing at a missing user.
			service.logger.Error("auth.refresh.user_missing", zap.String("user_id", record.UserID))
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth.refresh.user_lookup: %w", err)
	}

	pair, err := service.issuePair(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	service.metrics.Increment(MetricRefreshSuccess)
	service.logger.Info("auth.refresh.success", zap.String("user_id", user.ID))
	return pair, nil
}

// Logout revokes the named refresh token. It reports whether a live token
// was revoked; an already-dead or unknown token is not an error.
func (service *Service) Logout(ctx context.Context, opaque string) (bool, error) {
	revoked, err := service.refreshTokens.Revoke(ctx, opaque)
	if err != nil {
		return false, fmt.Errorf("auth.logout.revoke: %w", err)
	}
	if revoked {
		service.metrics.Increment(MetricLogout)
		service.logger.Info("auth.logout.success", zap.String("token", TokenLogRef(opaque)))
	}
	return revoked, nil
}

// LogoutAll revokes every live refresh token of the user.
func (service *Service) LogoutAll(ctx context.Context, userID string) (int64, error) {
	count, err := service.refreshTokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("auth.logout_all.revoke: %w", err)
	}
	service.metrics.Increment(MetricLogoutAll)
	service.logger.Info("auth.logout_all.success", zap.String("user_id", userID), zap.Int64("revoked", count))
	return count, nil
}

// TokenStatus inspects an access token for client-side refresh logic.
func (service *Service) TokenStatus(tokenString string) TokenStatus {
	claims, err := service.codec.Decode(tokenString)
	if err != nil || claims.ExpiresAt == nil {
		return TokenStatus{ExpiringSoon: true}
	}
	remaining := claims.ExpiresAt.Time.Sub(service.now())
	return TokenStatus{
		Valid:        true,
		ExpiringSoon: remaining < service.expiryThreshold,
		ExpiresAt:    claims.ExpiresAt.Time,
		Remaining:    remaining,
	}
}

// Codec exposes the access-token codec for the request guard.
func (service *Service) Codec() *TokenCodec {
	return service.codec
}

// Users exposes the user-lookup collaborator for the request guard.
func (service *Service) Users() UserStore {
	return service.users
}

func (service *Service) resolveIdentifier(ctx context.Context, identifier string) (*User, error) {
	if user, err := service.users.ByEmail(ctx, identifier); err == nil {
		return user, nil
	}
	if user, err := service.users.ByPhone(ctx, identifier); err == nil {
		return user, nil
	}
	return service.users.ByUsername(ctx, identifier)
}

func (service *Service) issuePair(ctx context.Context, userID string) (*TokenPair, error) {
	accessToken, accessExpiresAt, err := service.codec.Issue(userID, 0)
	if err != nil {
		return nil, fmt.Errorf("auth.issue.access: %w", err)
	}
	refreshToken, err := service.refreshTokens.Issue(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth.issue.refresh: %w", err)
	}
	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken.Opaque,
		RefreshExpiresAt: refreshToken.ExpiresAt,
	}, nil
}
