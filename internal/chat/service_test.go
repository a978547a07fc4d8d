package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roomchat-service/internal/mocks"
	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
)

func roomID(id int64) *int64 { return &id }

func newTestService() (*Service, *mocks.DirectoryRepositoryMock, *mocks.ChannelRepositoryMock, *mocks.MessageRepositoryMock) {
	directory := new(mocks.DirectoryRepositoryMock)
	channels := new(mocks.ChannelRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	return NewService(directory, channels, messages), directory, channels, messages
}

func TestSendMessageSuccess(t *testing.T) {
	svc, directory, channels, messages := newTestService()

	user := models.User{ID: 1, Username: "alice", Role: "CITIZEN", RoomID: roomID(7)}
	channel := models.Channel{ID: 3, Kind: models.ChannelKindRoom, RoomID: 7}
	stored := models.Message{ID: 42, ChannelID: 3, Content: "hello", CreatedAt: time.Now(), Sender: models.Sender{ID: 1, Username: "alice", Role: "CITIZEN"}}

	directory.On("GetUser", mock.Anything, int64(1)).Return(user, nil)
	channels.On("GetByRoom", mock.Anything, int64(7)).Return(channel, nil)
	channels.On("GetByID", mock.Anything, int64(3)).Return(channel, nil)
	messages.On("Append", mock.Anything, int64(3), int64(1), "hello").Return(stored, nil).Once()

	ch, msg, err := svc.SendMessage(context.Background(), 1, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, int64(3), ch.ID)
	assert.Equal(t, int64(42), msg.ID)
	messages.AssertExpectations(t)
}

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"empty", "", ErrEmptyContent},
		{"whitespace only", "   \n\t  ", ErrEmptyContent},
		{"over limit", strings.Repeat("a", MaxContentLength+1), ErrContentTooLong},
		{"over limit multibyte", strings.Repeat("ありがとう", 401), ErrContentTooLong},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, directory, _, messages := newTestService()

			_, _, err := svc.SendMessage(context.Background(), 1, tc.content)
			require.ErrorIs(t, err, tc.wantErr)
			directory.AssertNotCalled(t, "GetUser")
			messages.AssertNotCalled(t, "Append")
		})
	}
}

func TestSendMessageAtLengthLimit(t *testing.T) {
	svc, directory, channels, messages := newTestService()

	content := strings.Repeat("a", MaxContentLength)
	user := models.User{ID: 1, RoomID: roomID(7)}
	channel := models.Channel{ID: 3, RoomID: 7}

	directory.On("GetUser", mock.Anything, int64(1)).Return(user, nil)
	channels.On("GetByRoom", mock.Anything, int64(7)).Return(channel, nil)
	channels.On("GetByID", mock.Anything, int64(3)).Return(channel, nil)
	messages.On("Append", mock.Anything, int64(3), int64(1), content).
		Return(models.Message{ID: 1, ChannelID: 3, Content: content}, nil).Once()

	_, _, err := svc.SendMessage(context.Background(), 1, content)
	require.NoError(t, err)
	messages.AssertExpectations(t)
}

func TestSendMessageUserWithoutRoom(t *testing.T) {
	svc, directory, _, _ := newTestService()

	directory.On("GetUser", mock.Anything, int64(1)).Return(models.User{ID: 1}, nil)

	_, _, err := svc.SendMessage(context.Background(), 1, "hi")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestSendMessageUnknownUser(t *testing.T) {
	svc, directory, _, _ := newTestService()

	directory.On("GetUser", mock.Anything, int64(9)).Return(models.User{}, repositories.ErrUserNotFound)

	_, _, err := svc.SendMessage(context.Background(), 9, "hi")
	require.ErrorIs(t, err, repositories.ErrUserNotFound)
}

func TestResolveChannelLazyCreation(t *testing.T) {
	svc, directory, channels, _ := newTestService()

	user := models.User{ID: 1, RoomID: roomID(7)}
	created := models.Channel{ID: 5, Kind: models.ChannelKindRoom, RoomID: 7}

	directory.On("GetUser", mock.Anything, int64(1)).Return(user, nil)
	channels.On("GetByRoom", mock.Anything, int64(7)).Return(models.Channel{}, repositories.ErrChannelNotFound).Once()
	directory.On("RoomExists", mock.Anything, int64(7)).Return(true, nil).Once()
	channels.On("CreateIfAbsent", mock.Anything, int64(7)).Return(created, nil).Once()

	ch, err := svc.GetChannelForUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, created, ch)
	channels.AssertExpectations(t)
}

func TestResolveChannelRoomGone(t *testing.T) {
	svc, directory, channels, _ := newTestService()

	directory.On("GetUser", mock.Anything, int64(1)).Return(models.User{ID: 1, RoomID: roomID(7)}, nil)
	channels.On("GetByRoom", mock.Anything, int64(7)).Return(models.Channel{}, repositories.ErrChannelNotFound)
	directory.On("RoomExists", mock.Anything, int64(7)).Return(false, nil)

	_, err := svc.GetChannelForUser(context.Background(), 1)
	require.ErrorIs(t, err, ErrRoomNotFound)
	channels.AssertNotCalled(t, "CreateIfAbsent", mock.Anything, mock.Anything)
}

func TestAssertAccessRoomMismatch(t *testing.T) {
	svc, directory, channels, _ := newTestService()

	channels.On("GetByID", mock.Anything, int64(3)).Return(models.Channel{ID: 3, RoomID: 7}, nil)
	directory.On("GetUser", mock.Anything, int64(2)).Return(models.User{ID: 2, RoomID: roomID(8)}, nil)

	_, err := svc.AssertAccess(context.Background(), 2, 3)
	require.ErrorIs(t, err, ErrNotChannelMember)
}

func TestAssertAccessUnknownChannel(t *testing.T) {
	svc, _, channels, _ := newTestService()

	channels.On("GetByID", mock.Anything, int64(99)).Return(models.Channel{}, repositories.ErrChannelNotFound)

	_, err := svc.AssertAccess(context.Background(), 1, 99)
	require.ErrorIs(t, err, repositories.ErrChannelNotFound)
}

func TestAssertAccessFollowsRoomChange(t *testing.T) {
	svc, directory, channels, _ := newTestService()

	channel := models.Channel{ID: 3, RoomID: 7}
	channels.On("GetByID", mock.Anything, int64(3)).Return(channel, nil)

	// First request: user still in room 7.
	directory.On("GetUser", mock.Anything, int64(1)).Return(models.User{ID: 1, RoomID: roomID(7)}, nil).Once()
	_, err := svc.AssertAccess(context.Background(), 1, 3)
	require.NoError(t, err)

	// Reassigned to room 8: the very next request is denied.
	directory.On("GetUser", mock.Anything, int64(1)).Return(models.User{ID: 1, RoomID: roomID(8)}, nil).Once()
	_, err = svc.AssertAccess(context.Background(), 1, 3)
	require.ErrorIs(t, err, ErrNotChannelMember)
}

func TestGetMessagesLimitClamping(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		wantLimit int
	}{
		{"zero uses default", 0, DefaultPageSize},
		{"negative uses default", -5, DefaultPageSize},
		{"over max clamps", 500, MaxPageSize},
		{"in range passes through", 50, 50},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, directory, channels, messages := newTestService()

			user := models.User{ID: 1, RoomID: roomID(7)}
			channel := models.Channel{ID: 3, RoomID: 7}
			directory.On("GetUser", mock.Anything, int64(1)).Return(user, nil)
			channels.On("GetByRoom", mock.Anything, int64(7)).Return(channel, nil)
			channels.On("GetByID", mock.Anything, int64(3)).Return(channel, nil)
			messages.On("Page", mock.Anything, int64(3), tc.wantLimit, (*int64)(nil)).
				Return([]models.Message{}, nil).Once()

			_, err := svc.GetMessages(context.Background(), 1, tc.requested, nil)
			require.NoError(t, err)
			messages.AssertExpectations(t)
		})
	}
}

func TestGetMessagesNextCursor(t *testing.T) {
	svc, directory, channels, messages := newTestService()

	user := models.User{ID: 1, RoomID: roomID(7)}
	channel := models.Channel{ID: 3, RoomID: 7}
	directory.On("GetUser", mock.Anything, int64(1)).Return(user, nil)
	channels.On("GetByRoom", mock.Anything, int64(7)).Return(channel, nil)
	channels.On("GetByID", mock.Anything, int64(3)).Return(channel, nil)

	// Full page: cursor names the oldest returned message.
	full := []models.Message{{ID: 10, ChannelID: 3}, {ID: 9, ChannelID: 3}}
	messages.On("Page", mock.Anything, int64(3), 2, (*int64)(nil)).Return(full, nil).Once()

	page, err := svc.GetMessages(context.Background(), 1, 2, nil)
	require.NoError(t, err)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, int64(9), *page.NextCursor)

	// Short page: end of history.
	cursor := int64(9)
	short := []models.Message{{ID: 8, ChannelID: 3}}
	messages.On("Page", mock.Anything, int64(3), 2, &cursor).Return(short, nil).Once()

	page, err = svc.GetMessages(context.Background(), 1, 2, &cursor)
	require.NoError(t, err)
	assert.Nil(t, page.NextCursor)
	assert.Len(t, page.Items, 1)
}
