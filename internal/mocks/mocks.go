package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"room-chat-service/internal/models"
	"room-chat-service/internal/services"
)

type RoomServiceMock struct {
	mock.Mock
}

func (m *RoomServiceMock) CreateRoom(ctx context.Context, creatorID int64, name, imageRef string) (services.RoomView, error) {
	args := m.Called(ctx, creatorID, name, imageRef)
	var room services.RoomView
	if val := args.Get(0); val != nil {
		room = val.(services.RoomView)
	}
	return room, args.Error(1)
}

func (m *RoomServiceMock) ListRooms(ctx context.Context, viewerID *int64) ([]services.RoomView, error) {
	args := m.Called(ctx, viewerID)
	var rooms []services.RoomView
	if val := args.Get(0); val != nil {
		rooms = val.([]services.RoomView)
	}
	return rooms, args.Error(1)
}

func (m *RoomServiceMock) GetRoom(ctx context.Context, roomID int64, viewerID *int64) (services.RoomView, error) {
	args := m.Called(ctx, roomID, viewerID)
	var room services.RoomView
	if val := args.Get(0); val != nil {
		room = val.(services.RoomView)
	}
	return room, args.Error(1)
}

func (m *RoomServiceMock) UpdateRoom(ctx context.Context, roomID, requesterID int64, name, imageRef string) (services.RoomView, error) {
	args := m.Called(ctx, roomID, requesterID, name, imageRef)
	var room services.RoomView
	if val := args.Get(0); val != nil {
		room = val.(services.RoomView)
	}
	return room, args.Error(1)
}

func (m *RoomServiceMock) DeactivateRoom(ctx context.Context, roomID, requesterID int64) error {
	return m.Called(ctx, roomID, requesterID).Error(0)
}

func (m *RoomServiceMock) Join(ctx context.Context, roomID, userID int64) (services.JoinResult, error) {
	args := m.Called(ctx, roomID, userID)
	var result services.JoinResult
	if val := args.Get(0); val != nil {
		result = val.(services.JoinResult)
	}
	return result, args.Error(1)
}

func (m *RoomServiceMock) Leave(ctx context.Context, roomID, userID int64) error {
	return m.Called(ctx, roomID, userID).Error(0)
}

func (m *RoomServiceMock) ListActiveMembers(ctx context.Context, roomID int64) ([]services.MemberView, error) {
	args := m.Called(ctx, roomID)
	var members []services.MemberView
	if val := args.Get(0); val != nil {
		members = val.([]services.MemberView)
	}
	return members, args.Error(1)
}

func (m *RoomServiceMock) UpdateMemberPresence(ctx context.Context, roomID, userID int64, online bool) error {
	return m.Called(ctx, roomID, userID, online).Error(0)
}

func (m *RoomServiceMock) Heartbeat(ctx context.Context, roomID, userID int64) error {
	return m.Called(ctx, roomID, userID).Error(0)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) SendMessage(ctx context.Context, roomID, senderID int64, body models.MessageBody) (services.MessageView, error) {
	args := m.Called(ctx, roomID, senderID, body)
	var msg services.MessageView
	if val := args.Get(0); val != nil {
		msg = val.(services.MessageView)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) ListMessages(ctx context.Context, roomID int64, viewerID *int64) ([]services.MessageView, error) {
	args := m.Called(ctx, roomID, viewerID)
	var msgs []services.MessageView
	if val := args.Get(0); val != nil {
		msgs = val.([]services.MessageView)
	}
	return msgs, args.Error(1)
}

func (m *MessageServiceMock) SearchMessages(ctx context.Context, roomID int64, keyword string) ([]services.MessageView, error) {
	args := m.Called(ctx, roomID, keyword)
	var msgs []services.MessageView
	if val := args.Get(0); val != nil {
		msgs = val.([]services.MessageView)
	}
	return msgs, args.Error(1)
}

func (m *MessageServiceMock) DeleteMessage(ctx context.Context, roomID, messageID, requesterID int64) error {
	return m.Called(ctx, roomID, messageID, requesterID).Error(0)
}

type ReadServiceMock struct {
	mock.Mock
}

func (m *ReadServiceMock) MarkRead(ctx context.Context, userID, roomID int64) (*services.ReadStatusEvent, error) {
	args := m.Called(ctx, userID, roomID)
	var event *services.ReadStatusEvent
	if val := args.Get(0); val != nil {
		event = val.(*services.ReadStatusEvent)
	}
	return event, args.Error(1)
}

func (m *ReadServiceMock) UnreadCountFor(ctx context.Context, userID, roomID int64) (int, error) {
	args := m.Called(ctx, userID, roomID)
	return args.Int(0), args.Error(1)
}

func (m *ReadServiceMock) AllUnreadCounts(ctx context.Context, userID int64) (map[int64]int, error) {
	args := m.Called(ctx, userID)
	var counts map[int64]int
	if val := args.Get(0); val != nil {
		counts = val.(map[int64]int)
	}
	return counts, args.Error(1)
}

func (m *ReadServiceMock) UnreadMapping(ctx context.Context, roomID int64) (map[int]int64, error) {
	args := m.Called(ctx, roomID)
	var mapping map[int]int64
	if val := args.Get(0); val != nil {
		mapping = val.(map[int]int64)
	}
	return mapping, args.Error(1)
}

type UserServiceMock struct {
	mock.Mock
}

func (m *UserServiceMock) Login(ctx context.Context, req services.LoginRequest) (models.User, bool, error) {
	args := m.Called(ctx, req)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Bool(1), args.Error(2)
}

func (m *UserServiceMock) GetUser(ctx context.Context, userID int64) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserServiceMock) NicknameAvailable(ctx context.Context, nickname string) (bool, error) {
	args := m.Called(ctx, nickname)
	return args.Bool(0), args.Error(1)
}
