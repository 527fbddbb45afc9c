package services

import "time"

const (
	EventTypeMessage        = "message"
	EventTypeMessageDeleted = "message_deleted"
	EventTypeReadStatus     = "READ_STATUS_UPDATE"
)

// MessageEvent is published on RoomTopic.
type MessageEvent struct {
	Type      string       `json:"type"`
	RoomID    int64        `json:"room_id"`
	Message   *MessageView `json:"message,omitempty"`
	MessageID int64        `json:"message_id,omitempty"`
}

// ReadStatusEvent is published on ReadStatusTopic.
type ReadStatusEvent struct {
	Type              string    `json:"type"`
	RoomID            int64     `json:"room_id"`
	UserID            int64     `json:"user_id"`
	Nickname          string    `json:"nickname"`
	LastReadMessageID int64     `json:"last_read_message_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}
