/*
 * Copyright (c) 2025, Flowplane Project.
 *
 * The Flowplane Project licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/auth"
	"github.com/flowplane/flowplane/pkg/metrics"
	"github.com/flowplane/flowplane/pkg/models"
)

// AuthTokenKey is the Gin context key holding the authenticated token.
const AuthTokenKey = "auth_token"

const bearerPrefix = "Bearer "

// AuthMiddleware authenticates requests with a personal access token from
// the Authorization header. OPTIONS requests pass through so CORS
// preflights never need credentials. Every authentication failure maps to
// the same 401 body; a failing token store maps to 503 because the service
// cannot decide either way.
func AuthMiddleware(authenticator *auth.Authenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		log := GetLogger(c, logger)

		secret := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, bearerPrefix) {
			secret = strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		}

		token, err := authenticator.Authenticate(secret)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
				log.Warn("authentication failed",
					zap.Error(err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthenticated.Error()})
				return
			}

			log.Error("authentication backend unavailable", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": fmt.Sprintf("auth service unavailable: %v", err)})
			return
		}

		metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()

		c.Set(AuthTokenKey, token)
		c.Set(LoggerKey, log.With(zap.String("token_id", token.ID)))

		c.Next()
	}
}

// GetAuthToken retrieves the authenticated token from the Gin context.
// Returns nil when the request was not authenticated.
func GetAuthToken(c *gin.Context) *models.PersonalAccessToken {
	if value, exists := c.Get(AuthTokenKey); exists {
		if token, ok := value.(*models.PersonalAccessToken); ok {
			return token
		}
	}
	return nil
}
