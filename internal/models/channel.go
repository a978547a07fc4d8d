package models

import "time"

// ChannelKindRoom is the only channel kind: one chat surface per dorm room.
const ChannelKindRoom = "room"

// Channel represents the chat surface bound to one room.
type Channel struct {
	ID        int64     `db:"id" json:"id"`
	Kind      string    `db:"kind" json:"kind"`
	RoomID    int64     `db:"room_id" json:"roomId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
