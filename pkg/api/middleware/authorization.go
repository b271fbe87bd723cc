package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/auth"
)

// RequireScopes enforces that the authenticated token carries every one of
// the given scopes. AuthMiddleware must run earlier in the chain; a request
// that somehow reaches this guard without a token is rejected as
// unauthenticated rather than trusted.
func RequireScopes(logger *zap.Logger, scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := GetAuthToken(c)
		if token == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthenticated.Error()})
			return
		}

		for _, scope := range scopes {
			if !token.HasScope(scope) {
				GetLogger(c, logger).Warn("scope check failed",
					zap.String("token_id", token.ID),
					zap.String("required", strings.Join(scopes, " ")),
					zap.String("granted", strings.Join(token.Scopes, " ")),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: missing required scope"})
				return
			}
		}

		c.Next()
	}
}
