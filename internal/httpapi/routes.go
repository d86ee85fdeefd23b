// Package httpapi exposes the authentication core over gin route
// handlers. Marketplace resource routes (products, orders) mount their
// own groups behind the same guard.
package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ykurmanov/marketd/internal/authcore"
	"github.com/ykurmanov/marketd/internal/storage"
)

// RouterConfig carries the collaborators the auth routes need.
type RouterConfig struct {
	Service      *authcore.Service
	Guard        *authcore.Guard
	Accounts     *storage.UserStore
	LoginLimiter authcore.RateCounter
	Metrics      *authcore.CounterMetrics
	Logger       *zap.Logger
	// CookieSecure marks the session cookies Secure; disable only for
	// local plain-HTTP runs.
	CookieSecure bool
}

// MountRoutes registers the authentication surface on the router.
func MountRoutes(router gin.IRouter, config RouterConfig) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	auth := router.Group("/auth")
	auth.POST("/register", handleRegister(config, logger))
	auth.POST("/login", handleLogin(config, logger))
	auth.POST("/refresh", handleRefresh(config, logger))
	auth.POST("/logout", handleLogout(config))
	auth.POST("/logout-all", config.Guard.RequireAuth(), handleLogoutAll(config, logger))
	auth.GET("/token-status", handleTokenStatus(config))

	router.GET("/me", config.Guard.RequireAuth(), handleMe())

	admin := router.Group("/admin", config.Guard.RequireAuth(), config.Guard.RequireAdmin())
	admin.GET("/metrics", handleMetrics(config))
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3"`
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name"`
	IsSeller bool   `json:"is_seller"`
}

func handleRegister(config RouterConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		var request registerRequest
		if err := ginContext.ShouldBindJSON(&request); err != nil {
			ginContext.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if err := authcore.ValidatePassword(request.Password); err != nil {
			ginContext.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		passwordHash, hashErr := authcore.HashPassword(request.Password)
		if hashErr != nil {
			logger.Error("api.register.hash_failed", zap.Error(hashErr))
			ginContext.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		user, createErr := config.Accounts.Create(ginContext.Request.Context(), storage.NewUserParams{
			Email:        request.Email,
			Username:     request.Username,
			Phone:        request.Phone,
			PasswordHash: passwordHash,
			FullName:     request.FullName,
			IsSeller:     request.IsSeller,
		})
		if createErr != nil {
			if errors.Is(createErr, authcore.ErrConflict) {
				ginContext.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "account_exists"})
				return
			}
			logger.Error("api.register.create_failed", zap.Error(createErr))
			ginContext.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		ginContext.JSON(http.StatusCreated, sanitizeUser(user))
	}
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

func handleLogin(config RouterConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		if config.LoginLimiter != nil && !config.LoginLimiter.Allow(ginContext.ClientIP()) {
			ginContext.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		var request loginRequest
		if err := ginContext.ShouldBindJSON(&request); err != nil {
			ginContext.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		pair, err := config.Service.Login(ginContext.Request.Context(), request.Identifier, request.Password)
		if err != nil {
			if errors.Is(err, authcore.ErrInvalidCredentials) {
				ginContext.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
				return
			}
			logger.Error("api.login.failed", zap.Error(err))
			ginContext.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		writeSessionCookies(ginContext, config, pair)
		ginContext.JSON(http.StatusOK, tokenPairResponse(pair))
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func handleRefresh(config RouterConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		opaque := extractRefreshToken(ginContext)
		if opaque == "" {
			ginContext.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_or_expired_token"})
			return
		}
		pair, err := config.Service.Refresh(ginContext.Request.Context(), opaque)
		if err != nil {
			switch {
			case errors.Is(err, authcore.ErrInvalidOrExpiredToken), errors.Is(err, authcore.ErrUserNotFound):
				ginContext.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_or_expired_token"})
			default:
				logger.Error("api.refresh.failed", zap.Error(err))
				ginContext.AbortWithStatus(http.StatusInternalServerError)
			}
			return
		}
		writeSessionCookies(ginContext, config, pair)
		ginContext.JSON(http.StatusOK, tokenPairResponse(pair))
	}
}

func handleLogout(config RouterConfig) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		revoked := false
		if opaque := extractRefreshToken(ginContext); opaque != "" {
			revoked, _ = config.Service.Logout(ginContext.Request.Context(), opaque)
		}
		clearSessionCookies(ginContext, config)
		ginContext.JSON(http.StatusOK, gin.H{"revoked": revoked})
	}
}

func handleLogoutAll(config RouterConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		user, ok := authcore.CurrentUser(ginContext)
		if !ok {
			ginContext.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		count, err := config.Service.LogoutAll(ginContext.Request.Context(), user.ID)
		if err != nil {
			logger.Error("api.logout_all.failed", zap.String("user_id", user.ID), zap.Error(err))
			ginContext.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		clearSessionCookies(ginContext, config)
		ginContext.JSON(http.StatusOK, gin.H{"revoked_tokens": count})
	}
}

func handleTokenStatus(config RouterConfig) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		tokenString, ok := authcore.BearerToken(ginContext.Request)
		if !ok {
			ginContext.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_bearer_token"})
			return
		}
		status := config.Service.TokenStatus(tokenString)
		response := gin.H{
			"is_valid":          status.Valid,
			"is_expiring_soon":  status.ExpiringSoon,
			"remaining_seconds": int64(status.Remaining / time.Second),
		}
		if status.Valid {
			response["expires_at"] = status.ExpiresAt.UTC().Format(time.RFC3339)
		}
		ginContext.JSON(http.StatusOK, response)
	}
}

func handleMe() gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		user, ok := authcore.CurrentUser(ginContext)
		if !ok {
			ginContext.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		ginContext.JSON(http.StatusOK, sanitizeUser(user))
	}
}

func handleMetrics(config RouterConfig) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		if config.Metrics == nil {
			ginContext.JSON(http.StatusOK, gin.H{"counters": gin.H{}})
			return
		}
		ginContext.JSON(http.StatusOK, gin.H{"counters": config.Metrics.Snapshot()})
	}
}

func sanitizeUser(user *authcore.User) gin.H {
	response := gin.H{
		"id":          user.ID,
		"email":       user.Email,
		"username":    user.Username,
		"phone":       user.Phone,
		"is_seller":   user.IsSeller,
		"is_admin":    user.IsAdmin,
		"is_verified": user.IsVerified,
	}
	if user.LastLogin != nil {
		response["last_login"] = user.LastLogin.UTC().Format(time.RFC3339)
	}
	return response
}

func tokenPairResponse(pair *authcore.TokenPair) gin.H {
	return gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "bearer",
		"expires_at":    pair.AccessExpiresAt.UTC().Format(time.RFC3339),
	}
}

// extractRefreshToken reads the body first, then the refresh cookie, so
// API clients and browsers share the endpoints.
func extractRefreshToken(ginContext *gin.Context) string {
	var request refreshRequest
	if err := ginContext.ShouldBindJSON(&request); err == nil && strings.TrimSpace(request.RefreshToken) != "" {
		return strings.TrimSpace(request.RefreshToken)
	}
	cookie, err := ginContext.Request.Cookie(authcore.RefreshCookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}

func writeSessionCookies(ginContext *gin.Context, config RouterConfig, pair *authcore.TokenPair) {
	http.SetCookie(ginContext.Writer, &http.Cookie{
		Name:     authcore.SessionCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		Secure:   config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(ginContext.Writer, &http.Cookie{
		Name:     authcore.RefreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/auth",
		Expires:  pair.RefreshExpiresAt,
		Secure:   config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookies(ginContext *gin.Context, config RouterConfig) {
	for _, spec := range []struct {
		name string
		path string
	}{
		{authcore.SessionCookieName, "/"},
		{authcore.RefreshCookieName, "/auth"},
	} {
		http.SetCookie(ginContext.Writer, &http.Cookie{
			Name:     spec.name,
			Value:    "",
			Path:     spec.path,
			MaxAge:   -1,
			Secure:   config.CookieSecure,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
