package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"friendchat-service/internal/service"
)

const EventDebugPing = "debug.ping"

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter service.EventEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/event-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), EventDebugPing, userIDFromContext(c), gin.H{"request_id": requestIDFromContext(c)})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
