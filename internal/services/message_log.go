package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"room-chat-service/internal/apperrors"
	"room-chat-service/internal/models"
	"room-chat-service/internal/observability"
	"room-chat-service/internal/repositories"
	"room-chat-service/internal/storage"
)

// MessageLog is the append-only, per-room ordered message store.
type MessageLog struct {
	store       repositories.Store
	attachments storage.AttachmentStore
	clock       Clock
}

// NewMessageLog constructs a MessageLog. A nil attachment store keeps payloads inline.
func NewMessageLog(store repositories.Store, attachments storage.AttachmentStore, clock Clock) *MessageLog {
	if attachments == nil {
		attachments = storage.InlineStore{}
	}
	return &MessageLog{store: store, attachments: attachments, clock: orSystemClock(clock)}
}

// Append validates body and appends it to the room's log in one transaction.
// Non-system messages require senderID to be an active member.
func (l *MessageLog) Append(ctx context.Context, roomID int64, senderID *int64, body models.MessageBody) (models.Message, error) {
	if body == nil {
		return models.Message{}, apperrors.InvalidArgument("message body is required")
	}
	if err := body.Validate(); err != nil {
		return models.Message{}, err
	}
	if body.Type() != models.MessageTypeSystem && senderID == nil {
		return models.Message{}, apperrors.InvalidArgument("sender is required")
	}

	msg := models.NewMessage(roomID, senderID, body, l.clock())
	upload := msg.Attachment != nil && msg.Attachment.Kind == models.MediaKindImage
	if upload {
		// Authorize before the payload leaves the process; insert checks again under the room lock.
		room, err := l.store.Rooms().GetRoom(ctx, roomID)
		if err != nil {
			return models.Message{}, err
		}
		if err := checkSender(ctx, l.store, room, msg); err != nil {
			return models.Message{}, err
		}
		ref, err := l.attachments.Put(ctx, roomID, msg.Attachment.FileName, msg.Attachment.FileRef)
		if err != nil {
			return models.Message{}, apperrors.Transient(err, "store image")
		}
		msg.Attachment.FileRef = ref
	}

	err := l.store.WithinTx(ctx, func(tx repositories.Store) error {
		return l.insert(ctx, tx, &msg)
	})
	if err != nil {
		if upload {
			if derr := l.attachments.Delete(ctx, msg.Attachment.FileRef); derr != nil {
				log.Warn().Err(derr).Int64("room_id", roomID).Msg("orphaned attachment")
			}
		}
		return models.Message{}, err
	}
	return msg, nil
}

// appendSystem appends a sender-less notice within an open transaction.
func (l *MessageLog) appendSystem(ctx context.Context, tx repositories.Store, roomID int64, notice string) (models.Message, error) {
	body := models.SystemBody{Notice: notice}
	if err := body.Validate(); err != nil {
		return models.Message{}, err
	}
	msg := models.NewMessage(roomID, nil, body, l.clock())
	if err := l.insert(ctx, tx, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// insert writes msg under the room row lock, so ids within a room become
// visible in id order.
func (l *MessageLog) insert(ctx context.Context, tx repositories.Store, msg *models.Message) error {
	room, err := tx.Rooms().LockRoom(ctx, msg.RoomID)
	if err != nil {
		return err
	}
	if err := checkSender(ctx, tx, room, *msg); err != nil {
		return err
	}

	msg.SentAt = l.clock()
	if err := tx.Messages().CreateMessage(ctx, msg); err != nil {
		return err
	}
	observability.IncMessageAppended(string(msg.Type))
	log.Debug().Int64("room_id", msg.RoomID).Int64("message_id", msg.ID).Str("type", string(msg.Type)).Msg("message appended")
	return nil
}

// checkSender requires an open room and an active sender. System notices pass.
func checkSender(ctx context.Context, st repositories.Store, room models.ChatRoom, msg models.Message) error {
	if msg.IsSystem() {
		return nil
	}
	if !room.Active {
		return apperrors.InvalidState("room %d is closed", room.ID)
	}
	member, err := st.Members().GetMember(ctx, msg.RoomID, *msg.SenderID)
	if errors.Is(err, repositories.ErrMemberNotFound) || (err == nil && !member.Active) {
		return apperrors.InvalidState("user %d is not an active member of room %d", *msg.SenderID, msg.RoomID)
	}
	return err
}

// ListSince returns the room's live messages in log order. With a viewer, only
// messages sent since the viewer's current join are visible, and a viewer
// without an active membership sees nothing.
func (l *MessageLog) ListSince(ctx context.Context, roomID int64, viewerID *int64) ([]models.Message, error) {
	if _, err := l.store.Rooms().GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if viewerID == nil {
		return l.store.Messages().ListRoomMessages(ctx, roomID, nil)
	}

	member, err := l.store.Members().GetMember(ctx, roomID, *viewerID)
	if errors.Is(err, repositories.ErrMemberNotFound) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !member.Active {
		return []models.Message{}, nil
	}
	joinedAt := member.JoinedAt
	return l.store.Messages().ListRoomMessages(ctx, roomID, &joinedAt)
}

// Search finds live messages whose content contains keyword, newest first.
func (l *MessageLog) Search(ctx context.Context, roomID int64, keyword string) ([]models.Message, error) {
	keyword = strings.TrimSpace(keyword)
	if err := validateInput(keywordInput{Keyword: keyword}); err != nil {
		return nil, err
	}
	if _, err := l.store.Rooms().GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return l.store.Messages().SearchRoomMessages(ctx, roomID, keyword)
}

// SoftDelete hides a message of roomID from every read while keeping its id
// slot. Only the sender may delete.
func (l *MessageLog) SoftDelete(ctx context.Context, roomID, messageID, requesterID int64) (models.Message, error) {
	var msg models.Message
	err := l.store.WithinTx(ctx, func(tx repositories.Store) error {
		var err error
		msg, err = tx.Messages().GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		if msg.Deleted || msg.RoomID != roomID {
			return repositories.ErrMessageNotFound
		}
		if !msg.SentBy(requesterID) {
			return apperrors.InvalidState("only the sender may delete message %d", messageID)
		}
		if err := tx.Messages().MarkDeleted(ctx, messageID); err != nil {
			return err
		}
		msg.Deleted = true
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// LastMessage returns the room's newest live message; ok is false when there is none.
func (l *MessageLog) LastMessage(ctx context.Context, roomID int64) (msg models.Message, ok bool, err error) {
	msg, err = l.store.Messages().LastRoomMessage(ctx, roomID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, false, nil
	}
	if err != nil {
		return models.Message{}, false, err
	}
	return msg, true, nil
}

// Get returns a message by id, deleted or not.
func (l *MessageLog) Get(ctx context.Context, messageID int64) (models.Message, error) {
	return l.store.Messages().GetMessage(ctx, messageID)
}
