package handlers

import (
	"context"
	"time"

	"room-chat-service/internal/models"
	"room-chat-service/internal/services"
)

// RoomService is the room lifecycle and membership surface the handlers use.
type RoomService interface {
	CreateRoom(ctx context.Context, creatorID int64, name, imageRef string) (services.RoomView, error)
	ListRooms(ctx context.Context, viewerID *int64) ([]services.RoomView, error)
	GetRoom(ctx context.Context, roomID int64, viewerID *int64) (services.RoomView, error)
	UpdateRoom(ctx context.Context, roomID, requesterID int64, name, imageRef string) (services.RoomView, error)
	DeactivateRoom(ctx context.Context, roomID, requesterID int64) error
	Join(ctx context.Context, roomID, userID int64) (services.JoinResult, error)
	Leave(ctx context.Context, roomID, userID int64) error
	ListActiveMembers(ctx context.Context, roomID int64) ([]services.MemberView, error)
	UpdateMemberPresence(ctx context.Context, roomID, userID int64, online bool) error
	Heartbeat(ctx context.Context, roomID, userID int64) error
}

// MessageService reads and writes room messages.
type MessageService interface {
	SendMessage(ctx context.Context, roomID, senderID int64, body models.MessageBody) (services.MessageView, error)
	ListMessages(ctx context.Context, roomID int64, viewerID *int64) ([]services.MessageView, error)
	SearchMessages(ctx context.Context, roomID int64, keyword string) ([]services.MessageView, error)
	DeleteMessage(ctx context.Context, roomID, messageID, requesterID int64) error
}

// ReadService owns read cursors and unread counts.
type ReadService interface {
	MarkRead(ctx context.Context, userID, roomID int64) (*services.ReadStatusEvent, error)
	UnreadCountFor(ctx context.Context, userID, roomID int64) (int, error)
	AllUnreadCounts(ctx context.Context, userID int64) (map[int64]int, error)
	UnreadMapping(ctx context.Context, roomID int64) (map[int]int64, error)
}

// UserService resolves users by nickname.
type UserService interface {
	Login(ctx context.Context, req services.LoginRequest) (models.User, bool, error)
	GetUser(ctx context.Context, userID int64) (models.User, error)
	NicknameAvailable(ctx context.Context, nickname string) (bool, error)
}

// TokenIssuer signs session tokens for logged in users.
type TokenIssuer interface {
	IssueToken(userID int64, now time.Time) (string, error)
}
