package authcore

import "time"

// Default lifetimes for the token pair. The access TTL is deliberately
// short: there is no access-token revocation list, so a stolen access
// token stays usable until it expires naturally.
const (
	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultExpiryThreshold = 5 * time.Minute
)

// SessionCookieName is the fallback transport for access tokens on
// browser-facing surfaces. The Authorization header always wins.
const SessionCookieName = "marketd_session"

// RefreshCookieName carries the opaque refresh token for browser clients.
const RefreshCookieName = "marketd_refresh"

// ServerConfig configures token signing and lifetimes.
type ServerConfig struct {
	JWTSigningKey   []byte
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	// ExpiryThreshold is the window before expiry in which token-status
	// introspection reports a token as expiring soon.
	ExpiryThreshold time.Duration
}
