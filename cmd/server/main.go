package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ykurmanov/marketd/internal/authcore"
	"github.com/ykurmanov/marketd/internal/authpg"
	"github.com/ykurmanov/marketd/internal/httpapi"
	"github.com/ykurmanov/marketd/internal/storage"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "marketd",
		Short:   "Marketplace backend with password login, JWT access tokens, and rotating refresh tokens",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access tokens")
	rootCmd.Flags().String("jwt_issuer", "marketd", "Issuer claim stamped into access tokens")
	rootCmd.Flags().Duration("access_ttl", authcore.DefaultAccessTokenTTL, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", authcore.DefaultRefreshTokenTTL, "Refresh token TTL")
	rootCmd.Flags().String("database_url", "sqlite://marketd.db", "Database URL (postgres:// or sqlite://)")
	rootCmd.Flags().Bool("pgx_refresh_store", false, "Serve refresh tokens through the pgx-native store (postgres only)")
	rootCmd.Flags().Duration("sweep_interval", time.Hour, "Interval between expired refresh token sweeps; 0 disables")
	rootCmd.Flags().Int("login_rate_limit", 10, "Login attempts allowed per client per window; 0 disables")
	rootCmd.Flags().Duration("login_rate_window", time.Minute, "Window for the login rate limit")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Mark session cookies non-Secure for local plain-HTTP runs")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")

	for _, name := range []string{
		"listen_addr", "jwt_signing_key", "jwt_issuer", "access_ttl", "refresh_ttl",
		"database_url", "pgx_refresh_store", "sweep_interval",
		"login_rate_limit", "login_rate_window",
		"dev_insecure_http", "enable_cors", "cors_allowed_origins",
	} {
		_ = viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}

	// Local runs keep secrets in a .env file; a missing file is fine.
	_ = godotenv.Load()
	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingJWTSigningKey = "config.missing_jwt_signing_key"
	configCodeInvalidAccessTTL     = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL    = "config.invalid_refresh_ttl"
	configCodeMissingDatabaseURL   = "config.missing_database_url"
	configCodeUninitializedConfig  = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig validates the viper-bound settings into a ServerConfig.
func LoadServerConfig() (authcore.ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authcore.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return authcore.ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return authcore.ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	if viper.GetString("database_url") == "" {
		return authcore.ServerConfig{}, configError(configCodeMissingDatabaseURL, "database_url must be provided")
	}

	return authcore.ServerConfig{
		JWTSigningKey:   []byte(jwtSigningKey),
		JWTIssuer:       viper.GetString("jwt_issuer"),
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: refreshTTL,
		ExpiryThreshold: authcore.DefaultExpiryThreshold,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authcore.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedConfig, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")

	gormDB, driverLabel, openErr := storage.Open(databaseURL)
	if openErr != nil {
		return openErr
	}
	logger.Info("database connected", zap.String("driver", driverLabel))

	userStore := storage.NewUserStore(gormDB)

	var refreshStore authcore.RefreshTokenStore
	if viper.GetBool("pgx_refresh_store") {
		pool, poolErr := authpg.BuildPool(context.Background(), databaseURL)
		if poolErr != nil {
			return poolErr
		}
		defer pool.Close()
		if schemaErr := authpg.EnsureSchema(context.Background(), pool); schemaErr != nil {
			return schemaErr
		}
		refreshStore = authpg.NewRefreshTokenStore(pool, serverConfig.RefreshTokenTTL)
		logger.Info("using pgx-native refresh token store")
	} else {
		refreshStore = storage.NewRefreshTokenStore(gormDB, serverConfig.RefreshTokenTTL)
	}

	codec := authcore.NewTokenCodec(serverConfig.JWTSigningKey, serverConfig.JWTIssuer, serverConfig.AccessTokenTTL)
	metrics := authcore.NewCounterMetrics()
	service := authcore.NewService(codec, refreshStore, userStore, logger, metrics)
	guard := authcore.NewGuard(codec, userStore, logger, metrics)

	var loginLimiter authcore.RateCounter
	if limit := viper.GetInt("login_rate_limit"); limit > 0 {
		loginLimiter = authcore.NewSlidingWindowCounter(limit, viper.GetDuration("login_rate_window"))
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if viper.GetBool("enable_cors") {
		corsMiddleware, corsErr := httpapi.ConfigureCORS(logger, viper.GetStringSlice("cors_allowed_origins"))
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/healthz", func(ginContext *gin.Context) {
		ginContext.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	httpapi.MountRoutes(router, httpapi.RouterConfig{
		Service:      service,
		Guard:        guard,
		Accounts:     userStore,
		LoginLimiter: loginLimiter,
		Metrics:      metrics,
		Logger:       logger,
		CookieSecure: !viper.GetBool("dev_insecure_http"),
	})

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	if interval := viper.GetDuration("sweep_interval"); interval > 0 {
		go runSweeper(shutdownCtx, refreshStore, interval, logger)
	}

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		shutdownCancel()
		graceCtx, graceCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

// runSweeper hard-deletes expired refresh token rows on a fixed cadence.
// The sweep is idempotent, so overlapping runs across replicas are safe.
func runSweeper(ctx context.Context, store authcore.RefreshTokenStore, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.SweepExpired(ctx)
			if err != nil {
				logger.Error("refresh token sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("refresh token sweep", zap.Int64("removed", removed))
			}
		}
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		startTime := time.Now()
		ginContext.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", ginContext.Request.Method),
			zap.String("path", ginContext.Request.URL.Path),
			zap.Int("status", ginContext.Writer.Status()),
			zap.String("ip", ginContext.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
