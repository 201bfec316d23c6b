package service

import (
	"context"

	"friendchat-service/internal/models"
)

// FriendService is the friends list surface.
type FriendService interface {
	ListFriends(ctx context.Context, userID, search string) ([]models.User, error)
	AddFriend(ctx context.Context, userID, friendID string) error
	// RemoveFriend runs the friend removal cascade. A non-nil error carries the failed steps.
	RemoveFriend(ctx context.Context, userID, friendID string) (CascadeResult, error)
}

// ChatService is the chat surface.
type ChatService interface {
	// OpenChat resolves the thread between two friends, creating it on first use.
	OpenChat(ctx context.Context, userID, friendID string) (string, error)
	ListChats(ctx context.Context, userID string) ([]models.UserChatEntry, error)
	ListMessages(ctx context.Context, chatID, userID string) ([]models.Message, error)
	PostMessage(ctx context.Context, chatID, userID, text string) (models.Message, error)
}

// EventEmitter publishes domain events. Emission is fire and forget.
type EventEmitter interface {
	Emit(ctx context.Context, eventType, userID string, payload any)
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, string, string, any) {}

// Event types.
const (
	EventChatOpened    = "chat.opened"
	EventFriendAdded   = "friend.added"
	EventFriendRemoved = "friend.removed"
	EventMessagePosted = "message.posted"
)

type ChatOpenedPayload struct {
	ChatID   string `json:"chat_id"`
	FriendID string `json:"friend_id"`
	Created  bool   `json:"created"`
}

type FriendPayload struct {
	FriendID    string     `json:"friend_id"`
	FailedSteps []StepName `json:"failed_steps,omitempty"`
}

type MessagePostedPayload struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}
