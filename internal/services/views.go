package services

import (
	"context"
	"time"

	"room-chat-service/internal/models"
	"room-chat-service/internal/repositories"
)

// MessageView is a message enriched for display.
type MessageView struct {
	ID             int64              `json:"id"`
	RoomID         int64              `json:"room_id"`
	SenderID       *int64             `json:"sender_id,omitempty"`
	SenderNickname string             `json:"sender_nickname,omitempty"`
	SenderColor    string             `json:"sender_profile_color,omitempty"`
	Type           models.MessageType `json:"type"`
	Content        string             `json:"content"`
	SentAt         time.Time          `json:"sent_at"`
	Attachment     *models.Attachment `json:"attachment,omitempty"`
	// UnreadCount is omitted for system notices.
	UnreadCount *int `json:"unread_count,omitempty"`
}

// MemberView is an active member as shown in a room roster.
type MemberView struct {
	UserID            int64     `json:"user_id"`
	Nickname          string    `json:"nickname"`
	ProfileColor      string    `json:"profile_color"`
	ProfileImage      string    `json:"profile_image,omitempty"`
	JoinedAt          time.Time `json:"joined_at"`
	Online            bool      `json:"online"`
	RecentlyActive    bool      `json:"recently_active"`
	LastReadMessageID *int64    `json:"last_read_message_id,omitempty"`
}

// MemberAvatar is the compact member summary shown on room cards.
type MemberAvatar struct {
	UserID       int64  `json:"user_id"`
	Nickname     string `json:"nickname"`
	ProfileColor string `json:"profile_color"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// RoomView is a room as seen by one viewer.
type RoomView struct {
	ID                 int64          `json:"id"`
	Name               string         `json:"name"`
	ImageRef           string         `json:"image_ref,omitempty"`
	CreatorID          int64          `json:"creator_id"`
	CreatorNickname    string         `json:"creator_nickname"`
	CreatedAt          time.Time      `json:"created_at"`
	Active             bool           `json:"active"`
	MemberCount        int            `json:"member_count"`
	IsMember           bool           `json:"is_member"`
	UnreadCount        int            `json:"unread_count"`
	LastMessagePreview string         `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time     `json:"last_message_at,omitempty"`
	MemberAvatars      []MemberAvatar `json:"member_avatars"`
}

const maxAvatars = 4

func loadUsers(ctx context.Context, users repositories.UserRepository, ids []int64) (map[int64]models.User, error) {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}
	byID := make(map[int64]models.User, len(unique))
	if len(unique) == 0 {
		return byID, nil
	}
	list, err := users.ListUsersByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	for _, u := range list {
		byID[u.ID] = u
	}
	return byID, nil
}

func senderIDs(msgs []models.Message) []int64 {
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID != nil {
			ids = append(ids, *m.SenderID)
		}
	}
	return ids
}

func newMessageView(msg models.Message, users map[int64]models.User, unread map[int64]int) MessageView {
	view := MessageView{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		Type:       msg.Type,
		Content:    msg.Content,
		SentAt:     msg.SentAt,
		Attachment: msg.Attachment,
	}
	if msg.SenderID != nil {
		if u, ok := users[*msg.SenderID]; ok {
			view.SenderNickname = u.Nickname
			view.SenderColor = u.ProfileColor
		}
	}
	if !msg.IsSystem() {
		if n, ok := unread[msg.ID]; ok {
			count := n
			view.UnreadCount = &count
		}
	}
	return view
}

func newAvatar(u models.User) MemberAvatar {
	return MemberAvatar{
		UserID:       u.ID,
		Nickname:     u.Nickname,
		ProfileColor: u.ProfileColor,
		ProfileImage: u.ProfileImage,
	}
}
