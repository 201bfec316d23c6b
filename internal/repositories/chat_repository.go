package repositories

import (
	"context"
	"fmt"
	"time"

	"friendchat-service/internal/docstore"
	"friendchat-service/internal/models"
)

var ErrChatNotFound = fmt.Errorf("chat %w", docstore.ErrNotFound)

// ChatRepository abstracts chat thread persistence.
type ChatRepository interface {
	// FindByMembers returns every thread whose members are exactly {a, b}, ordered by id.
	FindByMembers(ctx context.Context, a, b string) ([]models.ChatThread, error)
	ListByMember(ctx context.Context, userID string) ([]models.ChatThread, error)
	Create(ctx context.Context, a, b string, at time.Time) (string, error)
	Get(ctx context.Context, chatID string) (models.ChatThread, error)
	Touch(ctx context.Context, chatID string, at time.Time) error
	Delete(ctx context.Context, chatID string) error
}

// ChatRepo is a docstore implementation of ChatRepository.
type ChatRepo struct {
	store docstore.Store
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(store docstore.Store) *ChatRepo {
	return &ChatRepo{store: store}
}

// ListByMember returns every thread userID belongs to.
func (r *ChatRepo) ListByMember(ctx context.Context, userID string) ([]models.ChatThread, error) {
	docs, err := r.store.Find(ctx, ChatsCollection, docstore.Where("members", docstore.OpArrayContains, userID))
	if err != nil {
		return nil, err
	}
	chats := make([]models.ChatThread, 0, len(docs))
	for _, d := range docs {
		var c models.ChatThread
		if err := d.Decode(&c); err != nil {
			return nil, err
		}
		c.ID = d.ID
		chats = append(chats, c)
	}
	return chats, nil
}

// FindByMembers queries threads containing a and keeps the ones whose other member is b.
func (r *ChatRepo) FindByMembers(ctx context.Context, a, b string) ([]models.ChatThread, error) {
	all, err := r.ListByMember(ctx, a)
	if err != nil {
		return nil, err
	}
	var pair []models.ChatThread
	for _, c := range all {
		if c.IsPair(a, b) {
			pair = append(pair, c)
		}
	}
	return pair, nil
}

// Create stores a new empty thread between a and b and returns its generated id.
func (r *ChatRepo) Create(ctx context.Context, a, b string, at time.Time) (string, error) {
	if a == b {
		return "", fmt.Errorf("cannot create chat with self")
	}
	return r.store.Create(ctx, ChatsCollection, models.ChatThread{
		Members:   []string{a, b},
		Messages:  []models.Message{},
		CreatedAt: at,
		UpdatedAt: at,
	})
}

// Get fetches a thread by id.
func (r *ChatRepo) Get(ctx context.Context, chatID string) (models.ChatThread, error) {
	c, err := docstore.GetAs[models.ChatThread](ctx, r.store, ChatsCollection, chatID)
	if err != nil {
		return models.ChatThread{}, notFound(err, ErrChatNotFound, chatID)
	}
	c.ID = chatID
	return c, nil
}

// Touch bumps updatedAt on the thread.
func (r *ChatRepo) Touch(ctx context.Context, chatID string, at time.Time) error {
	err := docstore.UpdateAs(ctx, r.store, ChatsCollection, chatID, func(c *models.ChatThread) error {
		c.UpdatedAt = at
		return nil
	})
	return notFound(err, ErrChatNotFound, chatID)
}

// Delete removes the thread and its messages. Absent threads are a no-op.
func (r *ChatRepo) Delete(ctx context.Context, chatID string) error {
	return r.store.Delete(ctx, ChatsCollection, chatID)
}

var _ ChatRepository = (*ChatRepo)(nil)
