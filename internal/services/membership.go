package services

import (
	"context"
	"errors"

	"room-chat-service/internal/apperrors"
	"room-chat-service/internal/models"
	"room-chat-service/internal/observability"
	"room-chat-service/internal/repositories"
)

// JoinOutcome tells which join path was taken.
type JoinOutcome string

const (
	JoinedNew     JoinOutcome = "joined"
	Rejoined      JoinOutcome = "rejoined"
	AlreadyMember JoinOutcome = "already_member"
)

// MembershipRegistry owns the per-(room, user) membership rows.
type MembershipRegistry struct {
	store repositories.Store
	clock Clock
}

// NewMembershipRegistry constructs a MembershipRegistry.
func NewMembershipRegistry(store repositories.Store, clock Clock) *MembershipRegistry {
	return &MembershipRegistry{store: store, clock: orSystemClock(clock)}
}

// IsActiveMember reports whether userID currently belongs to roomID.
func (r *MembershipRegistry) IsActiveMember(ctx context.Context, roomID, userID int64) (bool, error) {
	member, err := r.store.Members().GetMember(ctx, roomID, userID)
	if errors.Is(err, repositories.ErrMemberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return member.Active, nil
}

// ActiveMembers lists a room's active members in join order.
func (r *MembershipRegistry) ActiveMembers(ctx context.Context, roomID int64) ([]models.ChatRoomMember, error) {
	return r.store.Members().ListActiveMembers(ctx, roomID)
}

// activate creates, reactivates or leaves untouched the membership row.
func (r *MembershipRegistry) activate(ctx context.Context, tx repositories.Store, roomID, userID int64) (models.ChatRoomMember, JoinOutcome, error) {
	member, err := tx.Members().GetMemberForUpdate(ctx, roomID, userID)
	switch {
	case errors.Is(err, repositories.ErrMemberNotFound):
		member = models.NewMember(roomID, userID, r.clock())
		if err := tx.Members().InsertMember(ctx, &member); err != nil {
			return models.ChatRoomMember{}, "", err
		}
		observability.IncMembershipTransition(string(JoinedNew))
		return member, JoinedNew, nil
	case err != nil:
		return models.ChatRoomMember{}, "", err
	case member.Active:
		return member, AlreadyMember, nil
	}

	if err := member.Rejoin(r.clock()); err != nil {
		return models.ChatRoomMember{}, "", err
	}
	if err := tx.Members().UpdateMember(ctx, member); err != nil {
		return models.ChatRoomMember{}, "", err
	}
	observability.IncMembershipTransition(string(Rejoined))
	return member, Rejoined, nil
}

// deactivate marks the active membership as left.
func (r *MembershipRegistry) deactivate(ctx context.Context, tx repositories.Store, roomID, userID int64) (models.ChatRoomMember, error) {
	member, err := tx.Members().GetMemberForUpdate(ctx, roomID, userID)
	if errors.Is(err, repositories.ErrMemberNotFound) {
		return models.ChatRoomMember{}, apperrors.InvalidState("user %d is not a member of room %d", userID, roomID)
	}
	if err != nil {
		return models.ChatRoomMember{}, err
	}
	if err := member.Leave(r.clock()); err != nil {
		return models.ChatRoomMember{}, err
	}
	if err := tx.Members().UpdateMember(ctx, member); err != nil {
		return models.ChatRoomMember{}, err
	}
	observability.IncMembershipTransition("left")
	return member, nil
}

// advanceTo moves member's cursor to msg, which must belong to the member's room.
func (r *MembershipRegistry) advanceTo(member *models.ChatRoomMember, msg models.Message) (bool, error) {
	if msg.RoomID != member.RoomID {
		return false, apperrors.InvalidArgument("message %d does not belong to room %d", msg.ID, member.RoomID)
	}
	return member.AdvanceCursor(msg.ID), nil
}

// advanceToLatest moves member's cursor to the room's newest live message, if any.
func (r *MembershipRegistry) advanceToLatest(ctx context.Context, tx repositories.Store, member *models.ChatRoomMember) (bool, error) {
	last, err := tx.Messages().LastRoomMessage(ctx, member.RoomID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.advanceTo(member, last)
}
