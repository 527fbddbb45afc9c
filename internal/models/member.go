package models

import (
	"time"

	"room-chat-service/internal/apperrors"
)

// ChatRoomMember is the single membership row for a (room, user) pair.
// Leaving deactivates it; rejoining reuses it.
type ChatRoomMember struct {
	ID                int64      `db:"id" json:"id"`
	RoomID            int64      `db:"room_id" json:"room_id"`
	UserID            int64      `db:"user_id" json:"user_id"`
	JoinedAt          time.Time  `db:"joined_at" json:"joined_at"`
	LeftAt            *time.Time `db:"left_at" json:"left_at,omitempty"`
	Active            bool       `db:"active" json:"active"`
	Online            bool       `db:"online" json:"online"`
	LastActiveAt      time.Time  `db:"last_active_at" json:"last_active_at"`
	LastReadMessageID *int64     `db:"last_read_message_id" json:"last_read_message_id,omitempty"`
}

// NewMember returns an active, online membership with an unset read cursor.
func NewMember(roomID, userID int64, now time.Time) ChatRoomMember {
	return ChatRoomMember{
		RoomID:       roomID,
		UserID:       userID,
		JoinedAt:     now,
		Active:       true,
		Online:       true,
		LastActiveAt: now,
	}
}

// Leave deactivates the membership.
func (m *ChatRoomMember) Leave(now time.Time) error {
	if !m.Active {
		return apperrors.InvalidState("user %d is not an active member of room %d", m.UserID, m.RoomID)
	}
	m.Active = false
	m.Online = false
	m.LeftAt = &now
	return nil
}

// Rejoin reactivates a left membership with a fresh join time. The read cursor is kept.
func (m *ChatRoomMember) Rejoin(now time.Time) error {
	if m.Active {
		return apperrors.InvalidState("user %d is already an active member of room %d", m.UserID, m.RoomID)
	}
	m.Active = true
	m.Online = true
	m.JoinedAt = now
	m.LeftAt = nil
	m.LastActiveAt = now
	return nil
}

// SetOnline records a presence change.
func (m *ChatRoomMember) SetOnline(online bool, now time.Time) {
	m.Online = online
	m.LastActiveAt = now
}

// Touch records a heartbeat.
func (m *ChatRoomMember) Touch(now time.Time) {
	m.Online = true
	m.LastActiveAt = now
}

// AdvanceCursor moves the read cursor forward to messageID. It never moves
// backwards and reports whether the cursor changed.
func (m *ChatRoomMember) AdvanceCursor(messageID int64) bool {
	if m.LastReadMessageID != nil && *m.LastReadMessageID >= messageID {
		return false
	}
	id := messageID
	m.LastReadMessageID = &id
	return true
}

// CursorID returns the read cursor, 0 when unset. Message ids start at 1.
func (m ChatRoomMember) CursorID() int64 {
	if m.LastReadMessageID == nil {
		return 0
	}
	return *m.LastReadMessageID
}

// HasRead reports whether the cursor has reached messageID.
func (m ChatRoomMember) HasRead(messageID int64) bool {
	return m.CursorID() >= messageID
}

// RecentlyActive reports an active, online member seen within window of now.
func (m ChatRoomMember) RecentlyActive(now time.Time, window time.Duration) bool {
	return m.Active && m.Online && now.Sub(m.LastActiveAt) < window
}
