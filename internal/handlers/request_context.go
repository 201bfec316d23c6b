package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"friendchat-service/internal/logging"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(logging.RequestIDContextKey); id != "" {
		return id
	}

	requestID := c.GetHeader(logging.HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(logging.RequestIDContextKey, requestID)
	return requestID
}

// userIDFromContext returns the id set by the auth middleware.
func userIDFromContext(c *gin.Context) string {
	return c.GetString("userID")
}
