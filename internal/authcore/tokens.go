package authcore

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessTokenType tags access-token claims so refresh opaques or foreign
// JWTs can never pass verification.
const accessTokenType = "access"

// AccessClaims is the verified claim set of an access token.
type AccessClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenCodec mints and verifies HS256 access tokens. Tokens are
// self-contained: validity is determined purely by signature and expiry,
// no stored state.
type TokenCodec struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	now        func() time.Time
}

// NewTokenCodec constructs a codec with the given signing secret, issuer,
// and default access-token TTL.
func NewTokenCodec(signingKey []byte, issuer string, accessTTL time.Duration) *TokenCodec {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	return &TokenCodec{
		signingKey: signingKey,
		issuer:     issuer,
		accessTTL:  accessTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue signs an access token for the subject. A non-positive ttl falls
// back to the codec default.
func (codec *TokenCodec) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = codec.accessTTL
	}
	issuedAt := codec.now()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    codec.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(codec.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token_codec.sign: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the subject. Any
// failure, including malformed input, maps to ErrInvalidOrExpiredToken.
func (codec *TokenCodec) Verify(tokenString string) (string, error) {
	claims, err := codec.Decode(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Decode returns the full claim set. The signature is always verified;
// there is no unverified-decode path, introspection included.
func (codec *TokenCodec) Decode(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(parsed *jwt.Token) (interface{}, error) {
		return codec.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(codec.now),
	)
	if err != nil || parsed == nil || !parsed.Valid {
		return nil, ErrInvalidOrExpiredToken
	}
	if claims.TokenType != accessTokenType {
		return nil, ErrInvalidOrExpiredToken
	}
	if codec.issuer != "" && claims.Issuer != codec.issuer {
		return nil, ErrInvalidOrExpiredToken
	}
	return claims, nil
}

// TimeToExpiry returns the remaining lifetime of a valid token.
func (codec *TokenCodec) TimeToExpiry(tokenString string) (time.Duration, error) {
	claims, err := codec.Decode(tokenString)
	if err != nil {
		return 0, err
	}
	if claims.ExpiresAt == nil {
		return 0, ErrInvalidOrExpiredToken
	}
	return claims.ExpiresAt.Time.Sub(codec.now()), nil
}

// IsExpiringSoon reports whether the remaining lifetime is below the
// threshold. Invalid or unparseable tokens report true: the caller should
// refresh rather than keep presenting a token of unknown standing.
func (codec *TokenCodec) IsExpiringSoon(tokenString string, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultExpiryThreshold
	}
	remaining, err := codec.TimeToExpiry(tokenString)
	if err != nil {
		return true
	}
	return remaining < threshold
}
