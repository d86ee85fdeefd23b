package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zaptest"

	"github.com/ykurmanov/marketd/internal/authcore"
)

func setValidConfig() {
	viper.Set("jwt_signing_key", "test-signing-key")
	viper.Set("jwt_issuer", "marketd-test")
	viper.Set("access_ttl", "30m")
	viper.Set("refresh_ttl", "168h")
	viper.Set("database_url", "sqlite://marketd.db")
}

func TestLoadServerConfig(t *testing.T) {
	defer viper.Reset()

	cases := []struct {
		name     string
		mutate   func()
		wantCode string
	}{
		{"valid", func() {}, ""},
		{"missing signing key", func() { viper.Set("jwt_signing_key", "") }, configCodeMissingJWTSigningKey},
		{"zero access ttl", func() { viper.Set("access_ttl", "0s") }, configCodeInvalidAccessTTL},
		{"negative refresh ttl", func() { viper.Set("refresh_ttl", "-1h") }, configCodeInvalidRefreshTTL},
		{"missing database url", func() { viper.Set("database_url", "") }, configCodeMissingDatabaseURL},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			viper.Reset()
			setValidConfig()
			testCase.mutate()

			serverConfig, err := LoadServerConfig()
			if testCase.wantCode == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				if string(serverConfig.JWTSigningKey) != "test-signing-key" {
					t.Fatalf("signing key not carried over")
				}
				if serverConfig.AccessTokenTTL != 30*time.Minute {
					t.Fatalf("expected 30m access ttl, got %v", serverConfig.AccessTokenTTL)
				}
				if serverConfig.ExpiryThreshold != authcore.DefaultExpiryThreshold {
					t.Fatalf("expected default expiry threshold, got %v", serverConfig.ExpiryThreshold)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error code %s, got nil", testCase.wantCode)
			}
			if !strings.Contains(err.Error(), testCase.wantCode) {
				t.Fatalf("expected code %s in %q", testCase.wantCode, err.Error())
			}
		})
	}
}

func TestPrepareServerConfigStoresConfig(t *testing.T) {
	defer viper.Reset()
	viper.Reset()
	setValidConfig()

	command := &cobra.Command{}
	if err := prepareServerConfig(command, nil); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	value := command.Context().Value(serverConfigContextKey)
	if _, ok := value.(authcore.ServerConfig); !ok {
		t.Fatalf("expected a ServerConfig in the command context, got %T", value)
	}
}

func TestRunServerMissingConfig(t *testing.T) {
	command := &cobra.Command{}
	err := runServer(command, nil)
	if err == nil {
		t.Fatalf("expected an error when PreRunE never ran")
	}
	if !strings.Contains(err.Error(), configCodeUninitializedConfig) {
		t.Fatalf("expected code %s in %q", configCodeUninitializedConfig, err.Error())
	}
}

func TestRunSweeperRemovesExpiredTokens(t *testing.T) {
	store := authcore.NewMemoryRefreshTokenStore(time.Millisecond)
	issued, err := store.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	sweepCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runSweeper(sweepCtx, store, 10*time.Millisecond, zaptest.NewLogger(t))
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, findErr := store.Find(context.Background(), issued.Opaque); findErr != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expired token never swept")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestZapLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(zapLoggerMiddleware(zaptest.NewLogger(t)))
	router.GET("/ping", func(ginContext *gin.Context) {
		ginContext.String(http.StatusOK, "pong")
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if recorder.Body.String() != "pong" {
		t.Fatalf("expected pong, got %q", recorder.Body.String())
	}
}
