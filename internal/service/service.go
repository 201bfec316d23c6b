package service

import (
	"context"
	"strings"
	"time"

	"friendchat-service/internal/docstore"
	"friendchat-service/internal/logging"
	"friendchat-service/internal/models"
	"friendchat-service/internal/repositories"
)

// Options wires a Service. Repositories left nil are built on Store.
type Options struct {
	Store    docstore.Store
	Users    repositories.UserRepository
	Chats    repositories.ChatRepository
	Entries  repositories.UserChatRepository
	Messages repositories.MessageRepository
	Events   EventEmitter
	Now      func() time.Time
}

// Service implements FriendService and ChatService on top of the four core components.
type Service struct {
	Friendships *FriendshipStore
	Resolver    *ThreadResolver
	Index       *IndexSynchronizer
	Cascade     *CascadeCoordinator

	messages repositories.MessageRepository
	chats    repositories.ChatRepository
	events   EventEmitter
	now      func() time.Time
}

func New(opts Options) *Service {
	if opts.Users == nil {
		opts.Users = repositories.NewUserRepo(opts.Store)
	}
	if opts.Chats == nil {
		opts.Chats = repositories.NewChatRepo(opts.Store)
	}
	if opts.Entries == nil {
		opts.Entries = repositories.NewUserChatRepo(opts.Store)
	}
	if opts.Messages == nil {
		opts.Messages = repositories.NewMessageRepo(opts.Store)
	}
	if opts.Events == nil {
		opts.Events = noopEmitter{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	friendships := NewFriendshipStore(opts.Users)
	index := NewIndexSynchronizer(opts.Entries)
	return &Service{
		Friendships: friendships,
		Resolver:    NewThreadResolver(opts.Chats, index, opts.Now),
		Index:       index,
		Cascade:     NewCascadeCoordinator(friendships, opts.Chats, index),
		messages:    opts.Messages,
		chats:       opts.Chats,
		events:      opts.Events,
		now:         opts.Now,
	}
}

var (
	_ FriendService = (*Service)(nil)
	_ ChatService   = (*Service)(nil)
)

func (s *Service) ListFriends(ctx context.Context, userID, search string) ([]models.User, error) {
	return s.Friendships.ListFriends(ctx, userID, search)
}

func (s *Service) AddFriend(ctx context.Context, userID, friendID string) error {
	if err := s.Friendships.AddFriendship(ctx, userID, friendID); err != nil {
		return err
	}
	s.events.Emit(ctx, EventFriendAdded, userID, FriendPayload{FriendID: friendID})
	return nil
}

func (s *Service) RemoveFriend(ctx context.Context, userID, friendID string) (CascadeResult, error) {
	res, err := s.Cascade.RemoveFriend(ctx, userID, friendID)
	if err == nil || len(res.Failed) > 0 {
		s.events.Emit(ctx, EventFriendRemoved, userID, FriendPayload{FriendID: friendID, FailedSteps: res.Failed})
	}
	return res, err
}

// OpenChat requires the users to be friends before resolving their thread.
func (s *Service) OpenChat(ctx context.Context, userID, friendID string) (string, error) {
	if userID == friendID {
		return "", ErrSelfReference
	}
	ok, err := s.Friendships.AreFriends(ctx, userID, friendID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotFriends
	}

	chatID, created, err := s.Resolver.ResolveOrCreateThread(ctx, userID, friendID)
	if err != nil {
		l := logging.Ctx(ctx)
		l.Error().Err(err).Str(logging.FieldUserID, userID).Str(logging.FieldFriendID, friendID).Msg("failed to open chat")
		return "", err
	}
	s.events.Emit(ctx, EventChatOpened, userID, ChatOpenedPayload{ChatID: chatID, FriendID: friendID, Created: created})
	return chatID, nil
}

func (s *Service) ListChats(ctx context.Context, userID string) ([]models.UserChatEntry, error) {
	return s.Index.ListIndex(ctx, userID)
}

func (s *Service) ListMessages(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	return s.messages.GetChatMessages(ctx, chatID, userID)
}

// PostMessage appends the message to the thread, then refreshes both members' index entries.
// The message stays posted when an index refresh fails.
func (s *Service) PostMessage(ctx context.Context, chatID, userID, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}
	msg, err := s.messages.CreateChatMessage(ctx, chatID, userID, text, s.now().UTC())
	if err != nil {
		return models.Message{}, err
	}

	l := logging.Ctx(ctx)
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		l.Warn().Err(err).Str(logging.FieldChatID, chatID).Msg("failed to load chat after posting message")
	} else {
		for _, owner := range chat.Members {
			if err := s.Index.UpsertIndexEntry(ctx, owner, chatID, chat.Other(owner), text, msg.CreatedAt); err != nil {
				l.Warn().Err(err).Str(logging.FieldChatID, chatID).Str(logging.FieldUserID, owner).Msg("failed to update chat index entry")
			}
		}
	}

	s.events.Emit(ctx, EventMessagePosted, userID, MessagePostedPayload{ChatID: chatID, MessageID: msg.ID})
	return msg, nil
}
