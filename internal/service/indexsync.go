package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"friendchat-service/internal/models"
	"friendchat-service/internal/repositories"
)

// IndexSynchronizer keeps each user's chat index in step with the threads. Entries are keyed by
// (owner, chat), so every write below is a point write on one document.
type IndexSynchronizer struct {
	entries repositories.UserChatRepository
}

func NewIndexSynchronizer(entries repositories.UserChatRepository) *IndexSynchronizer {
	return &IndexSynchronizer{entries: entries}
}

// UpsertIndexEntry creates or replaces the (ownerID, chatID) entry.
func (s *IndexSynchronizer) UpsertIndexEntry(ctx context.Context, ownerID, chatID, receiverID, lastMessage string, updatedAt time.Time) error {
	return s.entries.Upsert(ctx, models.UserChatEntry{
		OwnerID:     ownerID,
		ChatID:      chatID,
		ReceiverID:  receiverID,
		LastMessage: lastMessage,
		UpdatedAt:   updatedAt,
	})
}

// RemoveIndexEntry deletes the owner's entry for entry.ChatID. Removing an absent entry is a no-op.
func (s *IndexSynchronizer) RemoveIndexEntry(ctx context.Context, ownerID string, entry models.UserChatEntry) error {
	return s.entries.Delete(ctx, ownerID, entry.ChatID)
}

// TouchIndexEntry bumps updatedAt, recreating the entry with an empty lastMessage when it is
// missing.
func (s *IndexSynchronizer) TouchIndexEntry(ctx context.Context, ownerID, chatID, receiverID string, at time.Time) error {
	err := s.entries.Touch(ctx, ownerID, chatID, at)
	if errors.Is(err, repositories.ErrEntryNotFound) {
		return s.UpsertIndexEntry(ctx, ownerID, chatID, receiverID, "", at)
	}
	return err
}

// EntriesFor returns ownerID's entries pointing at receiverID.
func (s *IndexSynchronizer) EntriesFor(ctx context.Context, ownerID, receiverID string) ([]models.UserChatEntry, error) {
	return s.entries.FindByReceiver(ctx, ownerID, receiverID)
}

// ListIndex returns ownerID's entries, most recently updated first.
func (s *IndexSynchronizer) ListIndex(ctx context.Context, ownerID string) ([]models.UserChatEntry, error) {
	entries, err := s.entries.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
		}
		return entries[i].ChatID < entries[j].ChatID
	})
	return entries, nil
}
