package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"room-chat-service/internal/models"
)

const messageSelect = `SELECT m.id, m.room_id, m.sender_id, m.message_type, m.content, m.sent_at, m.deleted,
       a.id AS attachment_id, a.media_kind, a.file_name, a.file_ref
FROM messages m LEFT JOIN attachments a ON a.message_id = m.id`

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	q sqlx.ExtContext
}

// NewMessageRepo constructs a MessageRepo over a pool or an open transaction.
func NewMessageRepo(q sqlx.ExtContext) *MessageRepo {
	return &MessageRepo{q: q}
}

type messageRow struct {
	models.Message
	AttachmentID sql.NullInt64  `db:"attachment_id"`
	MediaKind    sql.NullString `db:"media_kind"`
	FileName     sql.NullString `db:"file_name"`
	FileRef      sql.NullString `db:"file_ref"`
}

func (row messageRow) toModel() models.Message {
	msg := row.Message
	if row.AttachmentID.Valid {
		msg.Attachment = &models.Attachment{
			ID:        row.AttachmentID.Int64,
			MessageID: msg.ID,
			Kind:      models.MediaKind(row.MediaKind.String),
			FileName:  row.FileName.String,
			FileRef:   row.FileRef.String,
		}
	}
	return msg
}

func toModels(rows []messageRow) []models.Message {
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return msgs
}

// CreateMessage inserts msg and its attachment, filling in the generated ids.
// Callers run it inside WithinTx so both rows commit together.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg *models.Message) error {
	err := r.q.QueryRowxContext(ctx,
		`INSERT INTO messages (room_id, sender_id, message_type, content, sent_at, deleted)
         VALUES ($1, $2, $3, $4, $5, FALSE) RETURNING id`,
		msg.RoomID, msg.SenderID, msg.Type, msg.Content, msg.SentAt,
	).Scan(&msg.ID)
	if err != nil {
		return mapErr(err, ErrMessageNotFound)
	}

	if msg.Attachment == nil {
		return nil
	}
	msg.Attachment.MessageID = msg.ID
	err = r.q.QueryRowxContext(ctx,
		`INSERT INTO attachments (message_id, media_kind, file_name, file_ref) VALUES ($1, $2, $3, $4) RETURNING id`,
		msg.ID, msg.Attachment.Kind, msg.Attachment.FileName, msg.Attachment.FileRef,
	).Scan(&msg.Attachment.ID)
	return mapErr(err, ErrMessageNotFound)
}

// GetMessage returns a message whether or not it was deleted.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var row messageRow
	if err := sqlx.GetContext(ctx, r.q, &row, messageSelect+` WHERE m.id=$1`, messageID); err != nil {
		return models.Message{}, mapErr(err, ErrMessageNotFound)
	}
	return row.toModel(), nil
}

// ListRoomMessages returns live messages in log order, optionally from since onwards.
func (r *MessageRepo) ListRoomMessages(ctx context.Context, roomID int64, since *time.Time) ([]models.Message, error) {
	var rows []messageRow
	err := sqlx.SelectContext(ctx, r.q, &rows,
		messageSelect+` WHERE m.room_id=$1 AND m.deleted=FALSE AND ($2::timestamptz IS NULL OR m.sent_at >= $2)
         ORDER BY m.id ASC`, roomID, since)
	if err != nil {
		return nil, mapErr(err, ErrMessageNotFound)
	}
	return toModels(rows), nil
}

// SearchRoomMessages matches content case-insensitively, newest first.
func (r *MessageRepo) SearchRoomMessages(ctx context.Context, roomID int64, keyword string) ([]models.Message, error) {
	var rows []messageRow
	err := sqlx.SelectContext(ctx, r.q, &rows,
		messageSelect+` WHERE m.room_id=$1 AND m.deleted=FALSE AND m.content ILIKE '%' || $2 || '%'
         ORDER BY m.id DESC`, roomID, escapeLike(keyword))
	if err != nil {
		return nil, mapErr(err, ErrMessageNotFound)
	}
	return toModels(rows), nil
}

func (r *MessageRepo) LastRoomMessage(ctx context.Context, roomID int64) (models.Message, error) {
	var row messageRow
	err := sqlx.GetContext(ctx, r.q, &row,
		messageSelect+` WHERE m.room_id=$1 AND m.deleted=FALSE ORDER BY m.id DESC LIMIT 1`, roomID)
	if err != nil {
		return models.Message{}, mapErr(err, ErrMessageNotFound)
	}
	return row.toModel(), nil
}

func (r *MessageRepo) CountUnread(ctx context.Context, roomID, userID, afterID int64) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.q, &count,
		`SELECT COUNT(*) FROM messages
         WHERE room_id=$1 AND deleted=FALSE AND id > $3 AND sender_id IS NOT NULL AND sender_id <> $2`,
		roomID, userID, afterID)
	return count, mapErr(err, ErrMessageNotFound)
}

func (r *MessageRepo) MarkDeleted(ctx context.Context, messageID int64) error {
	res, err := r.q.ExecContext(ctx, `UPDATE messages SET deleted=TRUE WHERE id=$1`, messageID)
	if err != nil {
		return mapErr(err, ErrMessageNotFound)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMessageNotFound
	}
	return nil
}
