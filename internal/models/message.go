package models

import "time"

// Sender is the denormalized author view attached to every message.
type Sender struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Role     string `db:"role" json:"role"`
}

// Message is an immutable chat message. Rows are never updated; the
// deleted_at column exists for a future moderation path and is only
// filtered on reads.
type Message struct {
	ID        int64     `db:"id" json:"id"`
	ChannelID int64     `db:"channel_id" json:"channelId"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	Sender    Sender    `db:"sender" json:"sender"`
}

// MessagePage is one page of a newest-first cursor walk. NextCursor is the
// id of the oldest item returned, or nil when history is exhausted.
type MessagePage struct {
	ChannelID  int64     `json:"channelId"`
	Items      []Message `json:"items"`
	NextCursor *int64    `json:"nextCursor"`
}

// ChatEvent is the envelope pushed over websocket connections.
type ChatEvent struct {
	Type          string   `json:"type"`
	Message       *Message `json:"message,omitempty"`
	CorrelationID string   `json:"correlationId,omitempty"`
	Error         string   `json:"error,omitempty"`
	OK            bool     `json:"ok,omitempty"`
}

// Websocket event types.
const (
	EventNewMessage = "new_message"
	EventAck        = "ack"
	EventError      = "error"
)
