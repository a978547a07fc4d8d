package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"roomchat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository is the durable, append-only message log.
type MessageRepository interface {
	Append(ctx context.Context, channelID, senderID int64, content string) (models.Message, error)
	Page(ctx context.Context, channelID int64, limit int, cursor *int64) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
}

// MessageRepo is a sqlx-backed MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `m.id, m.channel_id, m.content, m.created_at,
        u.id AS "sender.id", u.username AS "sender.username", u.role AS "sender.role"`

// Append atomically inserts a message with server-assigned id and timestamp
// and returns the stored row with the sender attached.
func (r *MessageRepo) Append(ctx context.Context, channelID, senderID int64, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `WITH ins AS (
            INSERT INTO chat_messages (channel_id, sender_id, content)
            VALUES ($1, $2, $3)
            RETURNING id, channel_id, sender_id, content, created_at
        )
        SELECT ins.id, ins.channel_id, ins.content, ins.created_at,
               u.id AS "sender.id", u.username AS "sender.username", u.role AS "sender.role"
        FROM ins JOIN users u ON u.id = ins.sender_id`, channelID, senderID, content).
		StructScan(&msg)
	return msg, err
}

// Page returns up to limit non-deleted messages newest-first. The cursor is
// exclusive: results are strictly older than the named message in the
// (created_at, id) order, so the page is stable under concurrent appends.
func (r *MessageRepo) Page(ctx context.Context, channelID int64, limit int, cursor *int64) ([]models.Message, error) {
	msgs := []models.Message{}
	if cursor == nil {
		err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+`
            FROM chat_messages m
            JOIN users u ON u.id = m.sender_id
            WHERE m.channel_id=$1 AND m.deleted_at IS NULL
            ORDER BY m.created_at DESC, m.id DESC
            LIMIT $2`, channelID, limit)
		return msgs, err
	}

	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+`
        FROM chat_messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.channel_id=$1 AND m.deleted_at IS NULL
          AND (m.created_at, m.id) < (SELECT c.created_at, c.id FROM chat_messages c WHERE c.id=$2)
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $3`, channelID, *cursor, limit)
	return msgs, err
}

// GetMessage retrieves a single non-deleted message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+`
        FROM chat_messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.id=$1 AND m.deleted_at IS NULL`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
