package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RequestIDKey = "request_id"

// RequestID ensures every request has an identifier. A client supplied
// X-Request-ID of 1-64 bytes is kept, anything else is replaced by a new
// UUID. The id is echoed in the response headers and stored in the Gin
// context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if l := len(requestID); l < 1 || l > 64 {
			requestID = uuid.NewString()
		}

		c.Header("X-Request-ID", requestID)
		c.Set(RequestIDKey, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context.
// Returns empty string if no request ID is found.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// Logger returns log tagged with the request ID of c.
func Logger(c *gin.Context, log *zap.Logger) *zap.Logger {
	if id := GetRequestID(c); id != "" {
		return log.With(zap.String(RequestIDKey, id))
	}
	return log
}
