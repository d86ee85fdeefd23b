package authcore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// refreshOpaqueBytes gives 256 bits of entropy before encoding.
const refreshOpaqueBytes = 32

// RefreshToken is the server-side record behind an opaque refresh token.
// Only the SHA-256 of the opaque value is stored; the raw value exists
// solely in the Opaque field of a freshly issued token and on the client.
type RefreshToken struct {
	Opaque    string
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	IsRevoked bool
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Live reports whether the token is neither revoked nor expired at the
// given instant.
func (token *RefreshToken) Live(now time.Time) bool {
	return !token.IsRevoked && now.Before(token.ExpiresAt)
}

// GenerateRefreshOpaque returns a fresh URL-safe opaque token and its
// storage hash.
func GenerateRefreshOpaque() (opaque string, hash string, err error) {
	randomBytes := make([]byte, refreshOpaqueBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("refresh_store.random: %w", err)
	}
	opaque = base64.RawURLEncoding.EncodeToString(randomBytes)
	return opaque, HashRefreshOpaque(opaque), nil
}

// HashRefreshOpaque maps an opaque token to its at-rest representation.
func HashRefreshOpaque(opaque string) string {
	sum := sha256.Sum256([]byte(opaque))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// TokenLogRef is the only form in which a token may appear in logs: a
// short prefix of its storage hash, never the opaque value itself.
func TokenLogRef(opaque string) string {
	hash := HashRefreshOpaque(opaque)
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return hash
}
