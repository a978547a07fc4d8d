package models

// User is the directory view of a dorm resident consumed by the chat
// service: identity plus the current room assignment. RoomID is nil for
// residents not assigned to a room.
type User struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Role     string `db:"role" json:"role"`
	RoomID   *int64 `db:"room_id" json:"roomId"`
}
