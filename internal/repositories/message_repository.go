package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"friendchat-service/internal/docstore"
	"friendchat-service/internal/models"
)

var ErrNotParticipant = errors.New("user is not a chat member")

// MessageRepository defines interactions for chat messages. Messages are embedded in the
// thread document, so an append is a single-document update.
type MessageRepository interface {
	CreateChatMessage(ctx context.Context, chatID, senderID, text string, at time.Time) (models.Message, error)
	GetChatMessages(ctx context.Context, chatID, userID string) ([]models.Message, error)
}

// MessageRepo is a docstore-backed repository.
type MessageRepo struct {
	store docstore.Store
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(store docstore.Store) *MessageRepo {
	return &MessageRepo{store: store}
}

// CreateChatMessage appends a message to the thread. The membership check and the append happen
// inside the same atomic update.
func (r *MessageRepo) CreateChatMessage(ctx context.Context, chatID, senderID, text string, at time.Time) (models.Message, error) {
	msg := models.Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Text:      text,
		CreatedAt: at,
	}
	err := docstore.UpdateAs(ctx, r.store, ChatsCollection, chatID, func(c *models.ChatThread) error {
		if !c.HasMember(senderID) {
			return ErrNotParticipant
		}
		c.Messages = append(c.Messages, msg)
		c.UpdatedAt = at
		return nil
	})
	if err != nil {
		return models.Message{}, notFound(err, ErrChatNotFound, chatID)
	}
	return msg, nil
}

// GetChatMessages returns the thread's messages in append order, for members only.
func (r *MessageRepo) GetChatMessages(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	c, err := docstore.GetAs[models.ChatThread](ctx, r.store, ChatsCollection, chatID)
	if err != nil {
		return nil, notFound(err, ErrChatNotFound, chatID)
	}
	if !c.HasMember(userID) {
		return nil, ErrNotParticipant
	}
	if c.Messages == nil {
		return []models.Message{}, nil
	}
	return c.Messages, nil
}

var _ MessageRepository = (*MessageRepo)(nil)
