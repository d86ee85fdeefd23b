package authcore

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContextUserKey is where the guard stores the resolved *User in the gin
// context.
const ContextUserKey = "auth_user"

const bearerPrefix = "Bearer "

// Guard authenticates inbound requests: it extracts a bearer token,
// verifies it, and resolves the subject to a concrete user.
type Guard struct {
	codec   *TokenCodec
	users   UserStore
	logger  *zap.Logger
	metrics MetricsRecorder
	// cookieName is the fallback extraction source for browser-facing
	// surfaces. The Authorization header always takes precedence.
	cookieName string
}

// NewGuard constructs a request guard. Logger and metrics may be nil.
func NewGuard(codec *TokenCodec, users UserStore, logger *zap.Logger, metrics MetricsRecorder) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Guard{
		codec:      codec,
		users:      users,
		logger:     logger,
		metrics:    metrics,
		cookieName: SessionCookieName,
	}
}

// Authenticate resolves a request to a live user or fails with
// ErrUnauthorized. A valid token whose user has since been deleted maps
// to the same error as an invalid token; the response must not disclose
// which accounts exist.
func (guard *Guard) Authenticate(request *http.Request) (*User, error) {
	tokenString := guard.extractToken(request)
	if tokenString == "" {
		return nil, ErrUnauthorized
	}
	subject, err := guard.codec.Verify(tokenString)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := guard.users.ByID(request.Context(), subject)
	if err != nil {
		guard.logger.Info("auth.guard.subject_unresolved", zap.String("user_id", subject))
		return nil, ErrUnauthorized
	}
	return user, nil
}

// RequireAuth rejects unauthenticated requests and injects the resolved
// user for downstream handlers.
func (guard *Guard) RequireAuth() gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		user, err := guard.Authenticate(ginContext.Request)
		if err != nil {
			guard.metrics.Increment(MetricGuardRejected)
			ginContext.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ginContext.Set(ContextUserKey, user)
		ginContext.Next()
	}
}

// RequireSeller gates seller-only operations. It assumes RequireAuth ran
// earlier in the chain.
func (guard *Guard) RequireSeller() gin.HandlerFunc {
	return guard.requireRole(func(user *User) bool { return user.IsSeller || user.IsAdmin })
}

// RequireAdmin gates admin-only operations.
func (guard *Guard) RequireAdmin() gin.HandlerFunc {
	return guard.requireRole(func(user *User) bool { return user.IsAdmin })
}

func (guard *Guard) requireRole(allowed func(*User) bool) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		user, ok := CurrentUser(ginContext)
		if !ok {
			ginContext.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !allowed(user) {
			ginContext.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		ginContext.Next()
	}
}

// CurrentUser returns the user the guard injected, if any.
func CurrentUser(ginContext *gin.Context) (*User, bool) {
	value, exists := ginContext.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// BearerToken extracts the token from a request's Authorization header.
// It reports false when the header is absent or not a bearer credential.
func BearerToken(request *http.Request) (string, bool) {
	header := request.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)), true
}

// extractToken picks exactly one source per call: the Authorization
// header when present, otherwise the session cookie. A malformed header
// never falls through to the cookie.
func (guard *Guard) extractToken(request *http.Request) string {
	if request.Header.Get("Authorization") != "" {
		token, _ := BearerToken(request)
		return token
	}
	cookie, err := request.Cookie(guard.cookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}
