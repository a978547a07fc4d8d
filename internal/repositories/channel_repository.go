package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"roomchat-service/internal/models"
)

var ErrChannelNotFound = errors.New("channel not found")

// ChannelRepository abstracts chat channel persistence.
type ChannelRepository interface {
	GetByID(ctx context.Context, channelID int64) (models.Channel, error)
	GetByRoom(ctx context.Context, roomID int64) (models.Channel, error)
	CreateIfAbsent(ctx context.Context, roomID int64) (models.Channel, error)
}

// ChannelRepo is a sqlx implementation of ChannelRepository.
type ChannelRepo struct {
	db *sqlx.DB
}

// NewChannelRepo constructs a ChannelRepo.
func NewChannelRepo(db *sqlx.DB) *ChannelRepo {
	return &ChannelRepo{db: db}
}

// GetByID fetches a channel by id.
func (r *ChannelRepo) GetByID(ctx context.Context, channelID int64) (models.Channel, error) {
	var ch models.Channel
	err := r.db.GetContext(ctx, &ch, `SELECT id, kind, room_id, created_at FROM chat_channels WHERE id=$1`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Channel{}, ErrChannelNotFound
	}
	return ch, err
}

// GetByRoom fetches the channel bound to a room.
func (r *ChannelRepo) GetByRoom(ctx context.Context, roomID int64) (models.Channel, error) {
	var ch models.Channel
	err := r.db.GetContext(ctx, &ch, `SELECT id, kind, room_id, created_at FROM chat_channels WHERE room_id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Channel{}, ErrChannelNotFound
	}
	return ch, err
}

// CreateIfAbsent creates the channel for a room, or returns the existing
// one. Concurrent first-access callers race on the room_id uniqueness
// constraint; the loser reads back the winner's row instead of erroring.
func (r *ChannelRepo) CreateIfAbsent(ctx context.Context, roomID int64) (models.Channel, error) {
	var ch models.Channel
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chat_channels (kind, room_id) VALUES ($1, $2)
        ON CONFLICT (room_id) DO NOTHING
        RETURNING id, kind, room_id, created_at`, models.ChannelKindRoom, roomID).
		StructScan(&ch)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Channel{}, err
	}
	return r.GetByRoom(ctx, roomID)
}
