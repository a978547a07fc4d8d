package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
)

// MaxContentLength is the message length bound in code points, applied
// after trimming surrounding whitespace.
const MaxContentLength = 2000

// DefaultPageSize and MaxPageSize bound the messages page endpoint.
const (
	DefaultPageSize = 30
	MaxPageSize     = 100
)

var (
	ErrEmptyContent     = errors.New("message content is empty")
	ErrContentTooLong   = errors.New("message content exceeds length limit")
	ErrRoomNotFound     = errors.New("room not found")
	ErrNotChannelMember = errors.New("not a member of this room chat")
)

// Service orchestrates channel resolution, access control, and the message
// log. It is the single write path shared by the REST and websocket
// transports, so validation and authorization are identical on both.
type Service struct {
	directory repositories.DirectoryRepository
	channels  repositories.ChannelRepository
	messages  repositories.MessageRepository
}

// NewService constructs a Service.
func NewService(directory repositories.DirectoryRepository, channels repositories.ChannelRepository, messages repositories.MessageRepository) *Service {
	return &Service{directory: directory, channels: channels, messages: messages}
}

// GetChannelForUser resolves (lazily creating, if needed) the channel bound
// to the user's current room.
func (s *Service) GetChannelForUser(ctx context.Context, userID int64) (models.Channel, error) {
	return s.resolveChannel(ctx, userID)
}

// AssertAccess verifies the channel exists and is the caller's resolved
// channel. Pure authorization check, no mutation.
func (s *Service) AssertAccess(ctx context.Context, userID, channelID int64) (models.Channel, error) {
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return models.Channel{}, err
	}

	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return models.Channel{}, err
	}
	if user.RoomID == nil || *user.RoomID != ch.RoomID {
		return models.Channel{}, ErrNotChannelMember
	}
	return ch, nil
}

// SendMessage validates, authorizes, and appends a message to the caller's
// room channel.
func (s *Service) SendMessage(ctx context.Context, userID int64, content string) (models.Channel, models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Channel{}, models.Message{}, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return models.Channel{}, models.Message{}, ErrContentTooLong
	}

	ch, err := s.resolveChannel(ctx, userID)
	if err != nil {
		return models.Channel{}, models.Message{}, err
	}
	if _, err := s.AssertAccess(ctx, userID, ch.ID); err != nil {
		return models.Channel{}, models.Message{}, err
	}

	msg, err := s.messages.Append(ctx, ch.ID, userID, content)
	if err != nil {
		return models.Channel{}, models.Message{}, err
	}
	return ch, msg, nil
}

// GetMessages returns one newest-first page of the caller's room channel.
// The cursor names the oldest message of the previous page and is exclusive.
func (s *Service) GetMessages(ctx context.Context, userID int64, limit int, cursor *int64) (models.MessagePage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	ch, err := s.resolveChannel(ctx, userID)
	if err != nil {
		return models.MessagePage{}, err
	}
	if _, err := s.AssertAccess(ctx, userID, ch.ID); err != nil {
		return models.MessagePage{}, err
	}

	items, err := s.messages.Page(ctx, ch.ID, limit, cursor)
	if err != nil {
		return models.MessagePage{}, err
	}

	// A short page signals end-of-history; a full page names its oldest
	// message as the anchor for the next request.
	var nextCursor *int64
	if len(items) == limit && limit > 0 {
		last := items[len(items)-1].ID
		nextCursor = &last
	}
	return models.MessagePage{ChannelID: ch.ID, Items: items, NextCursor: nextCursor}, nil
}

// resolveChannel looks up the user's room and returns its channel, creating
// it on first access. The create path is a repair for rooms that predate
// chat channels; room creation normally provisions the channel.
func (s *Service) resolveChannel(ctx context.Context, userID int64) (models.Channel, error) {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return models.Channel{}, err
	}
	if user.RoomID == nil {
		return models.Channel{}, ErrRoomNotFound
	}

	ch, err := s.channels.GetByRoom(ctx, *user.RoomID)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, repositories.ErrChannelNotFound) {
		return models.Channel{}, err
	}

	exists, err := s.directory.RoomExists(ctx, *user.RoomID)
	if err != nil {
		return models.Channel{}, err
	}
	if !exists {
		return models.Channel{}, ErrRoomNotFound
	}
	return s.channels.CreateIfAbsent(ctx, *user.RoomID)
}
