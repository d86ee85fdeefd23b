// Package tokenguard validates marketd access tokens in sibling
// services without importing the server internals. It only needs the
// shared signing secret and issuer.
package tokenguard

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time, injectable for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// DefaultContextKey is where GinMiddleware stores claims when no key is
// provided.
const DefaultContextKey = "auth_claims"

// DefaultCookieName matches the server's session cookie.
const DefaultCookieName = "marketd_session"

// Sentinel errors exposed by the guard.
var (
	ErrMissingSigningKey = errors.New("token_guard.missing_signing_key")
	ErrMissingIssuer     = errors.New("token_guard.missing_issuer")
	ErrMissingToken      = errors.New("token_guard.missing_token")
	ErrInvalidToken      = errors.New("token_guard.invalid_token")
	ErrTokenExpired      = errors.New("token_guard.expired")
)

// Config configures the Guard.
type Config struct {
	SigningKey []byte
	Issuer     string
	CookieName string
	Clock      Clock
}

// Claims is the verified payload of a marketd access token.
type Claims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user id.
func (claims *Claims) UserID() string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// ExpiryTime returns the token's expiry instant.
func (claims *Claims) ExpiryTime() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Guard validates access tokens presented by inbound requests.
type Guard struct {
	signingKey []byte
	issuer     string
	cookieName string
	clock      Clock
}

// New constructs a Guard after validating the configuration.
func New(configuration Config) (*Guard, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("token_guard.new: %w", ErrMissingSigningKey)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return nil, fmt.Errorf("token_guard.new: %w", ErrMissingIssuer)
	}
	cookieName := configuration.CookieName
	if strings.TrimSpace(cookieName) == "" {
		cookieName = DefaultCookieName
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Guard{
		signingKey: configuration.SigningKey,
		issuer:     configuration.Issuer,
		cookieName: cookieName,
		clock:      clock,
	}, nil
}

// ValidateToken verifies the token string and returns its claims.
func (guard *Guard) ValidateToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token_guard.validate: %w", ErrMissingToken)
	}
	parsed, parseErr := jwt.ParseWithClaims(tokenString, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return guard.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return guard.clock.Now()
	}))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token_guard.validate: %w", ErrTokenExpired)
		}
		return nil, fmt.Errorf("token_guard.validate: %w", ErrInvalidToken)
	}
	if parsed == nil || !parsed.Valid {
		return nil, fmt.Errorf("token_guard.validate: %w", ErrInvalidToken)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("token_guard.validate: %w", ErrInvalidToken)
	}
	if claims.TokenType != "access" {
		return nil, fmt.Errorf("token_guard.validate: %w", ErrInvalidToken)
	}
	if claims.Issuer != guard.issuer {
		return nil, fmt.Errorf("token_guard.validate: %w", ErrInvalidToken)
	}
	return claims, nil
}

// ValidateRequest extracts the token from the Authorization header,
// falling back to the session cookie, and validates it.
func (guard *Guard) ValidateRequest(request *http.Request) (*Claims, error) {
	if request == nil {
		return nil, fmt.Errorf("token_guard.request: %w", ErrMissingToken)
	}
	header := request.Header.Get("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return nil, fmt.Errorf("token_guard.request: %w", ErrInvalidToken)
		}
		return guard.ValidateToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
	}
	cookie, cookieErr := request.Cookie(guard.cookieName)
	if cookieErr != nil || cookie == nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, fmt.Errorf("token_guard.request: %w", ErrMissingToken)
	}
	return guard.ValidateToken(cookie.Value)
}

// GinMiddleware validates each request and injects the claims under
// contextKey.
func (guard *Guard) GinMiddleware(contextKey string) gin.HandlerFunc {
	if strings.TrimSpace(contextKey) == "" {
		contextKey = DefaultContextKey
	}
	return func(ginContext *gin.Context) {
		claims, err := guard.ValidateRequest(ginContext.Request)
		if err != nil {
			ginContext.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		ginContext.Set(contextKey, claims)
		ginContext.Next()
	}
}
