package authcore

import (
	"errors"
	"unicode"
)

// Password policy errors surfaced to registration callers.
var (
	ErrPasswordTooShort    = errors.New("password_policy.too_short")
	ErrPasswordNoUppercase = errors.New("password_policy.missing_uppercase")
	ErrPasswordNoLowercase = errors.New("password_policy.missing_lowercase")
	ErrPasswordNoDigit     = errors.New("password_policy.missing_digit")
)

const passwordMinLength = 8

// ValidatePassword enforces the account password policy: at least eight
// characters with one uppercase letter, one lowercase letter, and one
// digit. Special characters are recommended but not required.
func ValidatePassword(password string) error {
	if len(password) < passwordMinLength {
		return ErrPasswordTooShort
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		return ErrPasswordNoUppercase
	}
	if !hasLower {
		return ErrPasswordNoLowercase
	}
	if !hasDigit {
		return ErrPasswordNoDigit
	}
	return nil
}
