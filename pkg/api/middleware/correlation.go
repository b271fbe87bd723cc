package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/logger"
)

const (
	// CorrelationIDHeader is the HTTP header name for correlation ID
	CorrelationIDHeader = "X-Correlation-ID"
	// CorrelationIDKey is the Gin context key for correlation ID
	CorrelationIDKey = "correlation_id"
	// LoggerKey is the Gin context key for the correlation-aware logger
	LoggerKey = "logger"
)

// CorrelationIDMiddleware creates a middleware that handles correlation ID
// tracking. It reuses an incoming X-Correlation-ID header (case-insensitive
// per HTTP/1.1), generates a new UUID when absent, stores the ID and a
// correlation-aware logger in the Gin context, and echoes the ID on the
// response header.
func CorrelationIDMiddleware(baseLogger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(CorrelationIDKey, correlationID)
		c.Set(LoggerKey, logger.WithCorrelationID(baseLogger, correlationID))

		c.Header(CorrelationIDHeader, correlationID)

		c.Next()
	}
}

// GetLogger retrieves the correlation-aware logger from the Gin context.
// If not found, returns the provided fallback logger.
func GetLogger(c *gin.Context, fallback *zap.Logger) *zap.Logger {
	if value, exists := c.Get(LoggerKey); exists {
		if l, ok := value.(*zap.Logger); ok {
			return l
		}
	}
	return fallback
}

// GetCorrelationID retrieves the correlation ID from the Gin context.
// Returns empty string if not found.
func GetCorrelationID(c *gin.Context) string {
	if value, exists := c.Get(CorrelationIDKey); exists {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}
