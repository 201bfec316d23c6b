package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID     = "X-Request-ID"
	RequestIDContextKey = "request_id"
)

// GinMiddleware assigns a request id, stores a request logger in the request context and logs
// the completed request.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(RequestIDContextKey, reqID)
		c.Header(HeaderRequestID, reqID)

		child := logger.With().
			Str(FieldRequestID, reqID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Logger()
		c.Request = c.Request.WithContext(WithRequestID(WithLogger(c.Request.Context(), child), reqID))

		c.Next()

		evt := child.Info().
			Int("status", c.Writer.Status()).
			Int64("latency_ms", time.Since(start).Milliseconds())
		if userID := c.GetString("userID"); userID != "" {
			evt = evt.Str(FieldUserID, userID)
		}
		evt.Msg("request completed")
	}
}
