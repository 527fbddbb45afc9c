package repositories

import (
	"context"
	"strings"
	"time"

	"room-chat-service/internal/apperrors"
	"room-chat-service/internal/models"
)

var (
	ErrUserNotFound    = apperrors.NotFound("user not found")
	ErrNicknameTaken   = apperrors.Conflict("nickname already in use")
	ErrRoomNotFound    = apperrors.NotFound("room not found")
	ErrMemberNotFound  = apperrors.NotFound("membership not found")
	ErrMessageNotFound = apperrors.NotFound("message not found")
	ErrVersionConflict = apperrors.Conflict("room was modified concurrently")
)

// Store groups the repositories behind one transactional boundary.
type Store interface {
	Users() UserRepository
	Rooms() RoomRepository
	Members() MemberRepository
	Messages() MessageRepository
	// WithinTx runs fn against a transactional view of the store. A non-nil
	// error from fn rolls every write back. Nested calls join the outer transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

// UserRepository is the identity store.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID int64) (models.User, error)
	GetUserByNickname(ctx context.Context, nickname string) (models.User, error)
	NicknameExists(ctx context.Context, nickname string) (bool, error)
	UpdateUser(ctx context.Context, user models.User) error
	ListUsersByIDs(ctx context.Context, userIDs []int64) ([]models.User, error)
}

// RoomRepository persists rooms. SaveRoom is a compare-and-swap on Version.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	GetRoom(ctx context.Context, roomID int64) (models.ChatRoom, error)
	// LockRoom is GetRoom holding the room row lock until the transaction
	// ends. Appends take it so a room's message ids commit in id order.
	LockRoom(ctx context.Context, roomID int64) (models.ChatRoom, error)
	ListActiveRooms(ctx context.Context, limit int) ([]models.ChatRoom, error)
	// SaveRoom writes room if its stored version still equals room.Version and
	// bumps room.Version. It returns ErrVersionConflict otherwise.
	SaveRoom(ctx context.Context, room *models.ChatRoom) error
}

// MemberRepository persists membership rows, one per (room, user).
type MemberRepository interface {
	GetMember(ctx context.Context, roomID, userID int64) (models.ChatRoomMember, error)
	// GetMemberForUpdate is GetMember holding a row lock until the transaction ends.
	GetMemberForUpdate(ctx context.Context, roomID, userID int64) (models.ChatRoomMember, error)
	InsertMember(ctx context.Context, member *models.ChatRoomMember) error
	UpdateMember(ctx context.Context, member models.ChatRoomMember) error
	ListActiveMembers(ctx context.Context, roomID int64) ([]models.ChatRoomMember, error)
	ListActiveRoomIDs(ctx context.Context, userID int64) ([]int64, error)
}

// MessageRepository persists the per-room message log. Reads skip deleted messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListRoomMessages(ctx context.Context, roomID int64, since *time.Time) ([]models.Message, error)
	SearchRoomMessages(ctx context.Context, roomID int64, keyword string) ([]models.Message, error)
	LastRoomMessage(ctx context.Context, roomID int64) (models.Message, error)
	// CountUnread counts messages after afterID not sent by userID, system notices excluded.
	CountUnread(ctx context.Context, roomID, userID, afterID int64) (int, error)
	MarkDeleted(ctx context.Context, messageID int64) error
}

func escapeLike(keyword string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(keyword)
}
