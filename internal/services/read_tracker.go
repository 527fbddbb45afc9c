package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"room-chat-service/internal/apperrors"
	"room-chat-service/internal/models"
	"room-chat-service/internal/repositories"
)

// ReadTracker maintains read cursors and derives unread counts from them.
type ReadTracker struct {
	store       repositories.Store
	membership  *MembershipRegistry
	broadcaster Broadcaster
	clock       Clock
}

// NewReadTracker constructs a ReadTracker.
func NewReadTracker(store repositories.Store, membership *MembershipRegistry, broadcaster Broadcaster, clock Clock) *ReadTracker {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &ReadTracker{store: store, membership: membership, broadcaster: broadcaster, clock: orSystemClock(clock)}
}

// MarkRead moves the user's cursor to the room's newest message and publishes
// the resulting read status. A room without messages is a no-op and yields a nil event.
func (t *ReadTracker) MarkRead(ctx context.Context, userID, roomID int64) (event *ReadStatusEvent, err error) {
	ctx, span := startSpan(ctx, "ReadTracker.MarkRead")
	defer func() { finishSpan(span, err) }()

	err = t.store.WithinTx(ctx, func(tx repositories.Store) error {
		event = nil
		if _, err := tx.Rooms().GetRoom(ctx, roomID); err != nil {
			return err
		}
		user, err := tx.Users().GetUser(ctx, userID)
		if err != nil {
			return err
		}
		last, err := tx.Messages().LastRoomMessage(ctx, roomID)
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		member, err := tx.Members().GetMemberForUpdate(ctx, roomID, userID)
		if err != nil {
			return err
		}
		if !member.Active {
			return apperrors.NotFound("user %d has no active membership in room %d", userID, roomID)
		}

		advanced, err := t.membership.advanceTo(&member, last)
		if err != nil {
			return err
		}
		if advanced {
			if err := tx.Members().UpdateMember(ctx, member); err != nil {
				return err
			}
		}

		event = &ReadStatusEvent{
			Type:              EventTypeReadStatus,
			RoomID:            roomID,
			UserID:            userID,
			Nickname:          user.Nickname,
			LastReadMessageID: member.CursorID(),
			UpdatedAt:         t.clock(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, nil
	}

	if perr := t.broadcaster.Publish(ctx, ReadStatusTopic(roomID), *event); perr != nil {
		log.Warn().Err(perr).Int64("room_id", roomID).Int64("user_id", userID).Msg("read status broadcast failed")
	}
	return event, nil
}

// UnreadCountFor counts live messages after the user's cursor that others sent.
// Users without an active membership have nothing unread.
func (t *ReadTracker) UnreadCountFor(ctx context.Context, userID, roomID int64) (int, error) {
	member, err := t.store.Members().GetMember(ctx, roomID, userID)
	if errors.Is(err, repositories.ErrMemberNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return t.countFor(ctx, t.store, member)
}

func (t *ReadTracker) countFor(ctx context.Context, st repositories.Store, member models.ChatRoomMember) (int, error) {
	if !member.Active {
		return 0, nil
	}
	return st.Messages().CountUnread(ctx, member.RoomID, member.UserID, member.CursorID())
}

// UnreadCountForMessage counts active members, sender excluded, whose cursor
// has not reached msg.
func (t *ReadTracker) UnreadCountForMessage(ctx context.Context, msg models.Message) (int, error) {
	members, err := t.store.Members().ListActiveMembers(ctx, msg.RoomID)
	if err != nil {
		return 0, err
	}
	return unreadTally(members, msg), nil
}

// UnreadCountsForMessages computes UnreadCountForMessage for a batch of one
// room's messages against a single roster read.
func (t *ReadTracker) UnreadCountsForMessages(ctx context.Context, roomID int64, msgs []models.Message) (map[int64]int, error) {
	counts := make(map[int64]int, len(msgs))
	if len(msgs) == 0 {
		return counts, nil
	}
	members, err := t.store.Members().ListActiveMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		counts[msg.ID] = unreadTally(members, msg)
	}
	return counts, nil
}

// AllUnreadCounts maps every open room the user actively belongs to onto its unread count.
func (t *ReadTracker) AllUnreadCounts(ctx context.Context, userID int64) (map[int64]int, error) {
	roomIDs, err := t.store.Members().ListActiveRoomIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	counts := make(map[int64]int, len(roomIDs))
	for _, roomID := range roomIDs {
		room, err := t.store.Rooms().GetRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if !room.Active {
			continue
		}
		n, err := t.UnreadCountFor(ctx, userID, roomID)
		if err != nil {
			return nil, err
		}
		counts[roomID] = n
	}
	return counts, nil
}

// UnreadMapping maps each unread tally in the room onto the newest non-system
// message carrying it, so a client can resolve any message's tally by id range.
func (t *ReadTracker) UnreadMapping(ctx context.Context, roomID int64) (map[int]int64, error) {
	if _, err := t.store.Rooms().GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	msgs, err := t.store.Messages().ListRoomMessages(ctx, roomID, nil)
	if err != nil {
		return nil, err
	}
	counts, err := t.UnreadCountsForMessages(ctx, roomID, msgs)
	if err != nil {
		return nil, err
	}
	mapping := make(map[int]int64)
	for _, msg := range msgs {
		if msg.IsSystem() {
			continue
		}
		mapping[counts[msg.ID]] = msg.ID
	}
	return mapping, nil
}

func unreadTally(members []models.ChatRoomMember, msg models.Message) int {
	n := 0
	for _, m := range members {
		if !m.Active || msg.SentBy(m.UserID) {
			continue
		}
		if !m.HasRead(msg.ID) {
			n++
		}
	}
	return n
}
