package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"room-chat-service/internal/apperrors"
)

// MessageType is the persisted discriminator of a message variant.
type MessageType string

const (
	MessageTypeText    MessageType = "TEXT"
	MessageTypeImage   MessageType = "IMAGE"
	MessageTypeSticker MessageType = "STICKER"
	MessageTypeSystem  MessageType = "SYSTEM"
)

const (
	// MaxTextLength is counted in characters, not bytes.
	MaxTextLength = 5000
	// MaxPayloadBytes bounds the encoded image/sticker payload.
	MaxPayloadBytes = 10 * 1024 * 1024

	stickerContent = "[sticker]"
)

// Message is one entry of a room's log. SenderID is nil for system notices.
type Message struct {
	ID         int64       `db:"id" json:"id"`
	RoomID     int64       `db:"room_id" json:"room_id"`
	SenderID   *int64      `db:"sender_id" json:"sender_id,omitempty"`
	Type       MessageType `db:"message_type" json:"type"`
	Content    string      `db:"content" json:"content"`
	SentAt     time.Time   `db:"sent_at" json:"sent_at"`
	Deleted    bool        `db:"deleted" json:"deleted"`
	Attachment *Attachment `db:"-" json:"attachment,omitempty"`
}

// IsSystem reports whether the message is a sender-less notice.
func (m Message) IsSystem() bool {
	return m.Type == MessageTypeSystem
}

// SentBy reports whether userID authored the message.
func (m Message) SentBy(userID int64) bool {
	return m.SenderID != nil && *m.SenderID == userID
}

// MediaKind is the kind of payload an attachment carries.
type MediaKind string

const (
	MediaKindImage   MediaKind = "IMAGE"
	MediaKindSticker MediaKind = "STICKER"
)

// Attachment belongs to exactly one IMAGE or STICKER message.
type Attachment struct {
	ID        int64     `db:"id" json:"id"`
	MessageID int64     `db:"message_id" json:"message_id"`
	Kind      MediaKind `db:"media_kind" json:"kind"`
	FileName  string    `db:"file_name" json:"file_name,omitempty"`
	FileRef   string    `db:"file_ref" json:"file_ref"`
}

// MessageBody is the closed set of message variants accepted by the log.
type MessageBody interface {
	Type() MessageType
	Validate() error
	sealed()
}

// TextBody is a plain text message.
type TextBody struct {
	Text string
}

// ImageBody carries an encoded image payload and its display name.
type ImageBody struct {
	FileName string
	Payload  string
}

// StickerBody carries a sticker payload.
type StickerBody struct {
	Payload string
}

// SystemBody is a membership notice authored by nobody.
type SystemBody struct {
	Notice string
}

func (TextBody) Type() MessageType    { return MessageTypeText }
func (ImageBody) Type() MessageType   { return MessageTypeImage }
func (StickerBody) Type() MessageType { return MessageTypeSticker }
func (SystemBody) Type() MessageType  { return MessageTypeSystem }

func (TextBody) sealed()    {}
func (ImageBody) sealed()   {}
func (StickerBody) sealed() {}
func (SystemBody) sealed()  {}

func (b TextBody) Validate() error {
	if strings.TrimSpace(b.Text) == "" {
		return apperrors.InvalidArgument("message content must not be blank")
	}
	if n := utf8.RuneCountInString(b.Text); n > MaxTextLength {
		return apperrors.InvalidArgument("text message is %d characters, limit is %d", n, MaxTextLength)
	}
	return nil
}

func (b ImageBody) Validate() error {
	if strings.TrimSpace(b.FileName) == "" {
		return apperrors.InvalidArgument("image file name must not be blank")
	}
	return validatePayload(b.Payload, "image")
}

func (b StickerBody) Validate() error {
	return validatePayload(b.Payload, "sticker")
}

func (b SystemBody) Validate() error {
	if strings.TrimSpace(b.Notice) == "" {
		return apperrors.InvalidArgument("system notice must not be blank")
	}
	return nil
}

func validatePayload(payload, what string) error {
	if strings.TrimSpace(payload) == "" {
		return apperrors.InvalidArgument("%s payload must not be blank", what)
	}
	if len(payload) > MaxPayloadBytes {
		return apperrors.InvalidArgument("%s payload is %d bytes, limit is %d", what, len(payload), MaxPayloadBytes)
	}
	return nil
}

// NewMessage builds an unsaved message for body. Media payloads land in
// Attachment.FileRef until the attachment store replaces them with a reference.
func NewMessage(roomID int64, senderID *int64, body MessageBody, sentAt time.Time) Message {
	msg := Message{
		RoomID:   roomID,
		SenderID: senderID,
		Type:     body.Type(),
		SentAt:   sentAt,
	}
	switch b := body.(type) {
	case TextBody:
		msg.Content = b.Text
	case ImageBody:
		msg.Content = b.FileName
		msg.Attachment = &Attachment{Kind: MediaKindImage, FileName: b.FileName, FileRef: b.Payload}
	case StickerBody:
		msg.Content = stickerContent
		msg.Attachment = &Attachment{Kind: MediaKindSticker, FileRef: b.Payload}
	case SystemBody:
		msg.SenderID = nil
		msg.Content = b.Notice
	}
	return msg
}

// Preview renders the one-line summary used by room listings.
func (m Message) Preview() string {
	switch m.Type {
	case MessageTypeImage:
		return "[photo]"
	case MessageTypeSticker:
		return stickerContent
	default:
		return m.Content
	}
}
