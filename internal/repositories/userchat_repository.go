package repositories

import (
	"context"
	"fmt"
	"time"

	"friendchat-service/internal/docstore"
	"friendchat-service/internal/models"
)

var ErrEntryNotFound = fmt.Errorf("chat index entry %w", docstore.ErrNotFound)

// EntryKey is the document id of the (ownerID, chatID) index entry.
func EntryKey(ownerID, chatID string) string {
	return ownerID + ":" + chatID
}

// UserChatRepository stores per-user chat index entries, one document per (owner, chat).
type UserChatRepository interface {
	Upsert(ctx context.Context, entry models.UserChatEntry) error
	Get(ctx context.Context, ownerID, chatID string) (models.UserChatEntry, error)
	Touch(ctx context.Context, ownerID, chatID string, at time.Time) error
	Delete(ctx context.Context, ownerID, chatID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]models.UserChatEntry, error)
	// FindByReceiver returns ownerID's entries pointing at receiverID, ordered by chat id.
	FindByReceiver(ctx context.Context, ownerID, receiverID string) ([]models.UserChatEntry, error)
}

// UserChatRepo is a docstore implementation of UserChatRepository.
type UserChatRepo struct {
	store docstore.Store
}

// NewUserChatRepo constructs a UserChatRepo.
func NewUserChatRepo(store docstore.Store) *UserChatRepo {
	return &UserChatRepo{store: store}
}

// Upsert creates or replaces the entry keyed by (OwnerID, ChatID).
func (r *UserChatRepo) Upsert(ctx context.Context, entry models.UserChatEntry) error {
	return r.store.Set(ctx, UserChatsCollection, EntryKey(entry.OwnerID, entry.ChatID), entry)
}

// Get fetches a single entry.
func (r *UserChatRepo) Get(ctx context.Context, ownerID, chatID string) (models.UserChatEntry, error) {
	key := EntryKey(ownerID, chatID)
	e, err := docstore.GetAs[models.UserChatEntry](ctx, r.store, UserChatsCollection, key)
	if err != nil {
		return models.UserChatEntry{}, notFound(err, ErrEntryNotFound, key)
	}
	return e, nil
}

// Touch bumps updatedAt and keeps lastMessage.
func (r *UserChatRepo) Touch(ctx context.Context, ownerID, chatID string, at time.Time) error {
	key := EntryKey(ownerID, chatID)
	err := docstore.UpdateAs(ctx, r.store, UserChatsCollection, key, func(e *models.UserChatEntry) error {
		e.UpdatedAt = at
		return nil
	})
	return notFound(err, ErrEntryNotFound, key)
}

// Delete removes the entry by key. Absent entries are a no-op.
func (r *UserChatRepo) Delete(ctx context.Context, ownerID, chatID string) error {
	return r.store.Delete(ctx, UserChatsCollection, EntryKey(ownerID, chatID))
}

// ListByOwner returns every entry owned by ownerID, ordered by chat id.
func (r *UserChatRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.UserChatEntry, error) {
	docs, err := r.store.Find(ctx, UserChatsCollection, docstore.Where("ownerId", docstore.OpEqual, ownerID))
	if err != nil {
		return nil, err
	}
	entries := make([]models.UserChatEntry, 0, len(docs))
	for _, d := range docs {
		var e models.UserChatEntry
		if err := d.Decode(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FindByReceiver filters ListByOwner on receiverId.
func (r *UserChatRepo) FindByReceiver(ctx context.Context, ownerID, receiverID string) ([]models.UserChatEntry, error) {
	all, err := r.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var matched []models.UserChatEntry
	for _, e := range all {
		if e.ReceiverID == receiverID {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

var _ UserChatRepository = (*UserChatRepo)(nil)
