package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
)

type DirectoryRepositoryMock struct {
	mock.Mock
}

func (m *DirectoryRepositoryMock) GetUser(ctx context.Context, userID int64) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *DirectoryRepositoryMock) RoomExists(ctx context.Context, roomID int64) (bool, error) {
	args := m.Called(ctx, roomID)
	return args.Bool(0), args.Error(1)
}

type ChannelRepositoryMock struct {
	mock.Mock
}

func (m *ChannelRepositoryMock) GetByID(ctx context.Context, channelID int64) (models.Channel, error) {
	args := m.Called(ctx, channelID)
	var ch models.Channel
	if val := args.Get(0); val != nil {
		ch = val.(models.Channel)
	}
	return ch, args.Error(1)
}

func (m *ChannelRepositoryMock) GetByRoom(ctx context.Context, roomID int64) (models.Channel, error) {
	args := m.Called(ctx, roomID)
	var ch models.Channel
	if val := args.Get(0); val != nil {
		ch = val.(models.Channel)
	}
	return ch, args.Error(1)
}

func (m *ChannelRepositoryMock) CreateIfAbsent(ctx context.Context, roomID int64) (models.Channel, error) {
	args := m.Called(ctx, roomID)
	var ch models.Channel
	if val := args.Get(0); val != nil {
		ch = val.(models.Channel)
	}
	return ch, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, channelID, senderID int64, content string) (models.Message, error) {
	args := m.Called(ctx, channelID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Page(ctx context.Context, channelID int64, limit int, cursor *int64) ([]models.Message, error) {
	args := m.Called(ctx, channelID, limit, cursor)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	args := m.Called(ctx, routingKey, message, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ repositories.DirectoryRepository = (*DirectoryRepositoryMock)(nil)
var _ repositories.ChannelRepository = (*ChannelRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
