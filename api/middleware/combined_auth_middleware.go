package middleware

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/nebula-migrate/config"
	"github.com/Annany2002/nebula-migrate/internal/auth"
	"github.com/Annany2002/nebula-migrate/internal/logger"
	"github.com/Annany2002/nebula-migrate/internal/storage"
)

var (
	customLog = logger.NewLogger()
)

// Context keys set by the auth middlewares.
const (
	UserIDKey   = "userId"
	IsAPIKeyKey = "isApiKey"
)

// CombinedAuthMiddleware accepts either "Bearer <jwt>" or "ApiKey <key>" in
// the Authorization header and sets the caller's user id on the context.
func CombinedAuthMiddleware(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			_ = c.Error(auth.ErrUnauthorized)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[1] == "" {
			_ = c.Error(fmt.Errorf("%w: invalid header format", auth.ErrTokenMalformed))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be 'Bearer {token}' or 'ApiKey {key}'"})
			return
		}

		scheme := strings.ToLower(parts[0])
		credentials := strings.TrimSpace(parts[1])

		var userId string
		var authErr error
		isApiKeyAuth := false

		switch scheme {
		case "apikey":
			if !strings.HasPrefix(credentials, storage.APIKeyPrefix) {
				authErr = fmt.Errorf("%w: invalid key prefix", auth.ErrForbidden)
				break
			}
			userId, authErr = storage.FindUserIDByAPIKey(c.Request.Context(), db, credentials)
			if errors.Is(authErr, storage.ErrAPIKeyNotFound) {
				authErr = fmt.Errorf("%w: unknown key", auth.ErrForbidden)
			}
			isApiKeyAuth = true

		case "bearer":
			userId, authErr = auth.ValidateJWT(credentials, cfg.JWTSecret)

		default:
			authErr = fmt.Errorf("%w: unsupported scheme '%s'", auth.ErrTokenMalformed, parts[0])
		}

		if authErr != nil {
			customLog.Warnf("CombinedAuthMiddleware: Authentication failed (Scheme: %s): %v", scheme, authErr)
			_ = c.Error(authErr)
			c.Abort() // ErrorHandler responds
			return
		}

		customLog.Debugf("CombinedAuthMiddleware: Auth success. UserID: %s (Scheme: %s)", userId, scheme)
		c.Set(UserIDKey, userId)
		c.Set(IsAPIKeyKey, isApiKeyAuth)

		c.Next()
	}
}
