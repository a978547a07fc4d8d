package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"roomchat-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// DirectoryRepository reads resident and room data owned by the main dorm
// application. The chat service never writes through it.
type DirectoryRepository interface {
	GetUser(ctx context.Context, userID int64) (models.User, error)
	RoomExists(ctx context.Context, roomID int64) (bool, error)
}

// DirectoryRepo is a sqlx-backed DirectoryRepository.
type DirectoryRepo struct {
	db *sqlx.DB
}

// NewDirectoryRepo constructs a DirectoryRepo.
func NewDirectoryRepo(db *sqlx.DB) *DirectoryRepo {
	return &DirectoryRepo{db: db}
}

// GetUser fetches a resident with their current room assignment.
func (r *DirectoryRepo) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username, role, room_id FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// RoomExists reports whether the room is present in the directory.
func (r *DirectoryRepo) RoomExists(ctx context.Context, roomID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id=$1)`, roomID)
	return exists, err
}
