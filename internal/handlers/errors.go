package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"friendchat-service/internal/logging"
	"friendchat-service/internal/observability"
	"friendchat-service/internal/service"
)

// respondError maps service errors to status codes. Unexpected errors are logged, reported and
// answered with fallback.
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrSelfReference), errors.Is(err, service.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFriends), errors.Is(err, service.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		ctx := c.Request.Context()
		l := logging.Ctx(ctx)
		l.Error().Err(err).Str(logging.FieldUserID, userIDFromContext(c)).Msg(fallback)
		observability.CaptureError(ctx, err, map[string]string{
			"route":                c.FullPath(),
			logging.FieldRequestID: requestIDFromContext(c),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
