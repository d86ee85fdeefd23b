package httpapi

import (
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestSanitizeOrigins(t *testing.T) {
	logger := zaptest.NewLogger(t)

	sanitized, err := sanitizeOrigins(logger, []string{
		" https://app.example.com ",
		"http://localhost:3000",
		"HTTPS://app.example.com",
		"",
	})
	if err != nil {
		t.Fatalf("sanitize failed: %v", err)
	}
	expected := []string{"https://app.example.com", "http://localhost:3000"}
	if !reflect.DeepEqual(sanitized, expected) {
		t.Fatalf("expected %v, got %v", expected, sanitized)
	}
}

func TestSanitizeOriginsRejections(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cases := []struct {
		name    string
		origins []string
		want    error
	}{
		{"empty list", nil, errEmptyAllowedOrigins},
		{"only blanks", []string{" ", ""}, errEmptyAllowedOrigins},
		{"wildcard", []string{"*"}, errWildcardOrigin},
		{"missing scheme", []string{"app.example.com"}, errInvalidOrigin},
		{"with path", []string{"https://app.example.com/login"}, errInvalidOrigin},
		{"with query", []string{"https://app.example.com?x=1"}, errInvalidOrigin},
		{"non http scheme", []string{"ftp://app.example.com"}, errInvalidOrigin},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := sanitizeOrigins(logger, testCase.origins)
			if !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
		})
	}
}

func TestConfigureCORS(t *testing.T) {
	middleware, err := ConfigureCORS(zaptest.NewLogger(t), []string{"https://app.example.com"})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if middleware == nil {
		t.Fatalf("expected a middleware handler")
	}

	if _, err := ConfigureCORS(nil, []string{"*"}); !errors.Is(err, errWildcardOrigin) {
		t.Fatalf("expected wildcard rejection, got %v", err)
	}
}
