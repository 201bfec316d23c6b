package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"friendchat-service/internal/models"
	"friendchat-service/internal/service"
)

// PublisherMock stands in for the AMQP publisher behind the event emitter.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// FriendServiceMock backs the friends handlers.
type FriendServiceMock struct {
	mock.Mock
}

func (m *FriendServiceMock) ListFriends(ctx context.Context, userID, search string) ([]models.User, error) {
	args := m.Called(ctx, userID, search)
	var list []models.User
	if val := args.Get(0); val != nil {
		list = val.([]models.User)
	}
	return list, args.Error(1)
}

func (m *FriendServiceMock) AddFriend(ctx context.Context, userID, friendID string) error {
	args := m.Called(ctx, userID, friendID)
	return args.Error(0)
}

func (m *FriendServiceMock) RemoveFriend(ctx context.Context, userID, friendID string) (service.CascadeResult, error) {
	args := m.Called(ctx, userID, friendID)
	var res service.CascadeResult
	if val := args.Get(0); val != nil {
		res = val.(service.CascadeResult)
	}
	return res, args.Error(1)
}

// ChatServiceMock backs the chat handlers.
type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) OpenChat(ctx context.Context, userID, friendID string) (string, error) {
	args := m.Called(ctx, userID, friendID)
	return args.String(0), args.Error(1)
}

func (m *ChatServiceMock) ListChats(ctx context.Context, userID string) ([]models.UserChatEntry, error) {
	args := m.Called(ctx, userID)
	var list []models.UserChatEntry
	if val := args.Get(0); val != nil {
		list = val.([]models.UserChatEntry)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) ListMessages(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	args := m.Called(ctx, chatID, userID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) PostMessage(ctx context.Context, chatID, userID, text string) (models.Message, error) {
	args := m.Called(ctx, chatID, userID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type EventEmitterMock struct {
	mock.Mock
}

func (m *EventEmitterMock) Emit(ctx context.Context, eventType, userID string, payload any) {
	m.Called(ctx, eventType, userID, payload)
}

var (
	_ service.FriendService = (*FriendServiceMock)(nil)
	_ service.ChatService   = (*ChatServiceMock)(nil)
	_ service.EventEmitter  = (*EventEmitterMock)(nil)
)
