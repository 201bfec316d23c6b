package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"friendchat-service/internal/service"
)

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	chats service.ChatService
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats service.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// ListChats returns the caller's chat index, most recent first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	entries, err := h.chats.ListChats(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		respondError(c, err, "failed to load chats")
		return
	}

	type chatResponse struct {
		ChatID      string    `json:"chat_id"`
		FriendID    string    `json:"friend_id"`
		LastMessage string    `json:"last_message"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	responses := make([]chatResponse, 0, len(entries))
	for _, e := range entries {
		responses = append(responses, chatResponse{
			ChatID:      e.ChatID,
			FriendID:    e.ReceiverID,
			LastMessage: e.LastMessage,
			UpdatedAt:   e.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"chats": responses})
}

// OpenChat returns the chat with a friend, creating it on first use.
func (h *ChatHandler) OpenChat(c *gin.Context) {
	var req struct {
		FriendID string `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chatID, err := h.chats.OpenChat(c.Request.Context(), userIDFromContext(c), req.FriendID)
	if err != nil {
		respondError(c, err, "could not open chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID})
}

// GetChatMessages returns the chat's messages to a member.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	msgs, err := h.chats.ListMessages(c.Request.Context(), c.Param("chat_id"), userIDFromContext(c))
	if err != nil {
		respondError(c, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostChatMessage appends a message to the chat.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chats.PostMessage(c.Request.Context(), c.Param("chat_id"), userIDFromContext(c), req.Text)
	if err != nil {
		respondError(c, err, "failed to store message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}
