package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"friendchat-service/internal/logging"
	"friendchat-service/internal/models"
	"friendchat-service/internal/observability"
	"friendchat-service/internal/service"
)

// FriendHandler manages the friends list endpoints.
type FriendHandler struct {
	friends service.FriendService
}

// NewFriendHandler builds a FriendHandler.
func NewFriendHandler(friends service.FriendService) *FriendHandler {
	return &FriendHandler{friends: friends}
}

type friendResponse struct {
	ID                     string   `json:"id"`
	FirstName              string   `json:"first_name"`
	LastName               string   `json:"last_name"`
	Languages              []string `json:"languages,omitempty"`
	ProfilePictureLocation string   `json:"profile_picture_location,omitempty"`
}

// ListFriends returns the caller's friends sorted by last name.
func (h *FriendHandler) ListFriends(c *gin.Context) {
	friends, err := h.friends.ListFriends(c.Request.Context(), userIDFromContext(c), c.Query("search"))
	if err != nil {
		respondError(c, err, "failed to load friends")
		return
	}

	resp := make([]friendResponse, 0, len(friends))
	for _, f := range friends {
		resp = append(resp, toFriendResponse(f))
	}
	c.JSON(http.StatusOK, gin.H{"friends": resp})
}

// AddFriend records a mutual friendship.
func (h *FriendHandler) AddFriend(c *gin.Context) {
	var req struct {
		FriendID string `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.friends.AddFriend(c.Request.Context(), userIDFromContext(c), req.FriendID); err != nil {
		respondError(c, err, "failed to add friend")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"friend_id": req.FriendID})
}

// RemoveFriend removes the friendship, the pair's chat and both chat index entries. A partial
// failure answers 500 with the failed steps so the client can offer a retry.
func (h *FriendHandler) RemoveFriend(c *gin.Context) {
	friendID := c.Param("friend_id")
	userID := userIDFromContext(c)

	res, err := h.friends.RemoveFriend(c.Request.Context(), userID, friendID)
	if errors.Is(err, service.ErrPartialCascadeFailure) {
		ctx := c.Request.Context()
		l := logging.Ctx(ctx)
		l.Warn().Err(err).
			Str(logging.FieldUserID, userID).
			Str(logging.FieldFriendID, friendID).
			Interface("failed_steps", res.Failed).
			Msg("friend removal partially failed")
		observability.CaptureError(ctx, err, map[string]string{
			"route":                c.FullPath(),
			logging.FieldRequestID: requestIDFromContext(c),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":        "failed to remove friend completely",
			"failed_steps": res.Failed,
		})
		return
	}
	if err != nil {
		respondError(c, err, "failed to remove friend")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func toFriendResponse(u models.User) friendResponse {
	return friendResponse{
		ID:                     u.ID,
		FirstName:              u.FirstName,
		LastName:               u.LastName,
		Languages:              u.Languages,
		ProfilePictureLocation: u.ProfilePictureLocation,
	}
}
