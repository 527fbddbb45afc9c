package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"room-chat-service/internal/models"
)

// DefaultPresenceWindow is how long after its last heartbeat a member still
// counts as recently active. Clients heartbeat every 15s.
const DefaultPresenceWindow = 30 * time.Second

// PresenceIndex mirrors member activity into a shared store so rosters can be
// answered without scanning rows.
type PresenceIndex interface {
	Touch(ctx context.Context, roomID, userID int64, at time.Time) error
	Remove(ctx context.Context, roomID, userID int64) error
	ActiveSince(ctx context.Context, roomID int64, since time.Time) ([]int64, error)
}

// PresenceMonitor decides whether members are recently active.
type PresenceMonitor struct {
	window time.Duration
	clock  Clock
	index  PresenceIndex
}

// NewPresenceMonitor constructs a PresenceMonitor. index may be nil.
func NewPresenceMonitor(window time.Duration, index PresenceIndex, clock Clock) *PresenceMonitor {
	if window <= 0 {
		window = DefaultPresenceWindow
	}
	return &PresenceMonitor{window: window, clock: orSystemClock(clock), index: index}
}

func (p *PresenceMonitor) Window() time.Duration {
	return p.window
}

// IsRecentlyActive reports an active, online member whose last activity is inside the window.
func (p *PresenceMonitor) IsRecentlyActive(member models.ChatRoomMember) bool {
	return member.RecentlyActive(p.clock(), p.window)
}

// observe records member's presence in the index. Index failures are logged only.
func (p *PresenceMonitor) observe(ctx context.Context, member models.ChatRoomMember) {
	if p.index == nil {
		return
	}
	var err error
	if member.Active && member.Online {
		err = p.index.Touch(ctx, member.RoomID, member.UserID, member.LastActiveAt)
	} else {
		err = p.index.Remove(ctx, member.RoomID, member.UserID)
	}
	if err != nil {
		log.Warn().Err(err).Int64("room_id", member.RoomID).Int64("user_id", member.UserID).Msg("presence index update failed")
	}
}

// RecentlyActiveUserIDs returns which of members are recently active. The
// index answers when available; the rows are the fallback.
func (p *PresenceMonitor) RecentlyActiveUserIDs(ctx context.Context, roomID int64, members []models.ChatRoomMember) map[int64]bool {
	active := make(map[int64]bool, len(members))
	if p.index != nil {
		ids, err := p.index.ActiveSince(ctx, roomID, p.clock().Add(-p.window))
		if err == nil {
			online := make(map[int64]bool, len(ids))
			for _, id := range ids {
				online[id] = true
			}
			for _, m := range members {
				if m.Active && m.Online && online[m.UserID] {
					active[m.UserID] = true
				}
			}
			return active
		}
		log.Warn().Err(err).Int64("room_id", roomID).Msg("presence index read failed, using membership rows")
	}
	for _, m := range members {
		if p.IsRecentlyActive(m) {
			active[m.UserID] = true
		}
	}
	return active
}
