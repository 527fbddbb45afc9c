package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"room-chat-service/internal/models"
)

const roomColumns = `id, name, image_ref, creator_id, created_at, active, version`

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	q sqlx.ExtContext
}

// NewRoomRepo constructs a RoomRepo over a pool or an open transaction.
func NewRoomRepo(q sqlx.ExtContext) *RoomRepo {
	return &RoomRepo{q: q}
}

// CreateRoom inserts an active room at version 0.
func (r *RoomRepo) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	room.Active = true
	room.Version = 0
	err := r.q.QueryRowxContext(ctx,
		`INSERT INTO chat_rooms (name, image_ref, creator_id, created_at, active, version)
         VALUES ($1, $2, $3, NOW(), TRUE, 0) RETURNING id, created_at`,
		room.Name, room.ImageRef, room.CreatorID,
	).Scan(&room.ID, &room.CreatedAt)
	return mapErr(err, ErrRoomNotFound)
}

func (r *RoomRepo) GetRoom(ctx context.Context, roomID int64) (models.ChatRoom, error) {
	var room models.ChatRoom
	err := sqlx.GetContext(ctx, r.q, &room, `SELECT `+roomColumns+` FROM chat_rooms WHERE id=$1`, roomID)
	return room, mapErr(err, ErrRoomNotFound)
}

func (r *RoomRepo) LockRoom(ctx context.Context, roomID int64) (models.ChatRoom, error) {
	var room models.ChatRoom
	err := sqlx.GetContext(ctx, r.q, &room, `SELECT `+roomColumns+` FROM chat_rooms WHERE id=$1 FOR UPDATE`, roomID)
	return room, mapErr(err, ErrRoomNotFound)
}

// ListActiveRooms returns active rooms, newest first.
func (r *RoomRepo) ListActiveRooms(ctx context.Context, limit int) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	err := sqlx.SelectContext(ctx, r.q, &rooms,
		`SELECT `+roomColumns+` FROM chat_rooms WHERE active=TRUE ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	return rooms, mapErr(err, ErrRoomNotFound)
}

func (r *RoomRepo) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE chat_rooms SET name=$3, image_ref=$4, active=$5, version=version+1
         WHERE id=$1 AND version=$2`,
		room.ID, room.Version, room.Name, room.ImageRef, room.Active)
	if err != nil {
		return mapErr(err, ErrRoomNotFound)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionConflict
	}
	room.Version++
	return nil
}
