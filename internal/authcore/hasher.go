package authcore

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Password hashes use the passlib pbkdf2-sha256 modular-crypt format:
//
//	$pbkdf2-sha256$<rounds>$<salt>$<checksum>
//
// with salt and checksum in passlib's adapted base64 alphabet (`.` in
// place of `+`, no padding). Existing rows written by earlier deployments
// verify unchanged regardless of their round count.
const (
	pbkdf2Ident     = "pbkdf2-sha256"
	pbkdf2Rounds    = 29000
	pbkdf2SaltBytes = 16
	pbkdf2KeyBytes  = 32
	pbkdf2MaxRounds = 10_000_000
)

// HashPassword derives a salted one-way hash of the password.
func HashPassword(password string) (string, error) {
	salt := make([]byte, pbkdf2SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("hasher.salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, pbkdf2KeyBytes, sha256.New)
	return fmt.Sprintf("$%s$%d$%s$%s", pbkdf2Ident, pbkdf2Rounds, adaptedB64Encode(salt), adaptedB64Encode(key)), nil
}

// VerifyPassword reports whether the password matches the encoded hash.
// Malformed hashes verify as false; nothing is ever raised past this
// boundary.
func VerifyPassword(password string, encoded string) bool {
	rounds, salt, checksum, ok := parsePasswordHash(encoded)
	if !ok {
		return false
	}
	derived := pbkdf2.Key([]byte(password), salt, rounds, len(checksum), sha256.New)
	return subtle.ConstantTimeCompare(derived, checksum) == 1
}

func parsePasswordHash(encoded string) (rounds int, salt []byte, checksum []byte, ok bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != pbkdf2Ident {
		return 0, nil, nil, false
	}
	rounds, err := strconv.Atoi(parts[2])
	if err != nil || rounds <= 0 || rounds > pbkdf2MaxRounds {
		return 0, nil, nil, false
	}
	salt, saltErr := adaptedB64Decode(parts[3])
	if saltErr != nil || len(salt) == 0 {
		return 0, nil, nil, false
	}
	checksum, sumErr := adaptedB64Decode(parts[4])
	if sumErr != nil || len(checksum) == 0 {
		return 0, nil, nil, false
	}
	return rounds, salt, checksum, true
}

func adaptedB64Encode(raw []byte) string {
	return strings.ReplaceAll(base64.RawStdEncoding.EncodeToString(raw), "+", ".")
}

func adaptedB64Decode(encoded string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.ReplaceAll(encoded, ".", "+"))
}
