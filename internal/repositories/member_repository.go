package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"room-chat-service/internal/models"
)

const memberColumns = `id, room_id, user_id, joined_at, left_at, active, online, last_active_at, last_read_message_id`

// MemberRepo is a sqlx implementation of MemberRepository.
type MemberRepo struct {
	q sqlx.ExtContext
}

// NewMemberRepo constructs a MemberRepo over a pool or an open transaction.
func NewMemberRepo(q sqlx.ExtContext) *MemberRepo {
	return &MemberRepo{q: q}
}

func (r *MemberRepo) GetMember(ctx context.Context, roomID, userID int64) (models.ChatRoomMember, error) {
	var member models.ChatRoomMember
	err := sqlx.GetContext(ctx, r.q, &member,
		`SELECT `+memberColumns+` FROM chat_room_members WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	return member, mapErr(err, ErrMemberNotFound)
}

func (r *MemberRepo) GetMemberForUpdate(ctx context.Context, roomID, userID int64) (models.ChatRoomMember, error) {
	var member models.ChatRoomMember
	err := sqlx.GetContext(ctx, r.q, &member,
		`SELECT `+memberColumns+` FROM chat_room_members WHERE room_id=$1 AND user_id=$2 FOR UPDATE`, roomID, userID)
	return member, mapErr(err, ErrMemberNotFound)
}

func (r *MemberRepo) InsertMember(ctx context.Context, member *models.ChatRoomMember) error {
	err := r.q.QueryRowxContext(ctx,
		`INSERT INTO chat_room_members (room_id, user_id, joined_at, left_at, active, online, last_active_at, last_read_message_id)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		member.RoomID, member.UserID, member.JoinedAt, member.LeftAt, member.Active, member.Online,
		member.LastActiveAt, member.LastReadMessageID,
	).Scan(&member.ID)
	if isUniqueViolation(err) {
		// a concurrent join created the row first
		return ErrVersionConflict
	}
	return mapErr(err, ErrMemberNotFound)
}

// UpdateMember writes the mutable columns. The read cursor only moves forward
// even if a stale row is written.
func (r *MemberRepo) UpdateMember(ctx context.Context, member models.ChatRoomMember) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE chat_room_members
         SET joined_at=$2, left_at=$3, active=$4, online=$5, last_active_at=$6,
             last_read_message_id=GREATEST(last_read_message_id, $7)
         WHERE id=$1`,
		member.ID, member.JoinedAt, member.LeftAt, member.Active, member.Online,
		member.LastActiveAt, member.LastReadMessageID)
	if err != nil {
		return mapErr(err, ErrMemberNotFound)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// ListActiveMembers returns a room's active members in join order.
func (r *MemberRepo) ListActiveMembers(ctx context.Context, roomID int64) ([]models.ChatRoomMember, error) {
	var members []models.ChatRoomMember
	err := sqlx.SelectContext(ctx, r.q, &members,
		`SELECT `+memberColumns+` FROM chat_room_members WHERE room_id=$1 AND active=TRUE ORDER BY joined_at ASC, id ASC`, roomID)
	return members, mapErr(err, ErrMemberNotFound)
}

func (r *MemberRepo) ListActiveRoomIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, r.q, &ids,
		`SELECT room_id FROM chat_room_members WHERE user_id=$1 AND active=TRUE ORDER BY room_id`, userID)
	return ids, mapErr(err, ErrMemberNotFound)
}
