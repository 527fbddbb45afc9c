package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"room-chat-service/internal/apperrors"
	"room-chat-service/internal/models"
	"room-chat-service/internal/observability"
	"room-chat-service/internal/repositories"
)

const (
	DefaultRoomListLimit      = 100
	DefaultMaxConflictRetries = 3
)

// CoordinatorDeps are the collaborators of a RoomCoordinator.
type CoordinatorDeps struct {
	Store       repositories.Store
	Log         *MessageLog
	Membership  *MembershipRegistry
	Reads       *ReadTracker
	Presence    *PresenceMonitor
	Broadcaster Broadcaster
	Sessions    SessionRegistry
	Clock       Clock
}

// CoordinatorOptions tune list sizes and conflict handling.
type CoordinatorOptions struct {
	ListLimit          int
	MaxConflictRetries int
}

// RoomCoordinator orchestrates room lifecycle, membership transitions, system
// notices and the broadcasts that follow them.
type RoomCoordinator struct {
	store       repositories.Store
	log         *MessageLog
	membership  *MembershipRegistry
	reads       *ReadTracker
	presence    *PresenceMonitor
	broadcaster Broadcaster
	sessions    SessionRegistry
	clock       Clock
	listLimit   int
	maxRetries  int
}

// NewRoomCoordinator constructs a RoomCoordinator.
func NewRoomCoordinator(deps CoordinatorDeps, opts CoordinatorOptions) *RoomCoordinator {
	if deps.Broadcaster == nil {
		deps.Broadcaster = NopBroadcaster{}
	}
	if deps.Presence == nil {
		deps.Presence = NewPresenceMonitor(DefaultPresenceWindow, nil, deps.Clock)
	}
	if deps.Sessions == nil {
		deps.Sessions = nopSessions{}
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = DefaultRoomListLimit
	}
	if opts.MaxConflictRetries <= 0 {
		opts.MaxConflictRetries = DefaultMaxConflictRetries
	}
	return &RoomCoordinator{
		store:       deps.Store,
		log:         deps.Log,
		membership:  deps.Membership,
		reads:       deps.Reads,
		presence:    deps.Presence,
		broadcaster: deps.Broadcaster,
		sessions:    deps.Sessions,
		clock:       orSystemClock(deps.Clock),
		listLimit:   opts.ListLimit,
		maxRetries:  opts.MaxConflictRetries,
	}
}

// JoinResult reports a join.
type JoinResult struct {
	Outcome           JoinOutcome `json:"outcome"`
	RoomID            int64       `json:"room_id"`
	LastReadMessageID *int64      `json:"last_read_message_id,omitempty"`
}

// CreateRoom creates an active room with creatorID as its first member and
// announces it with a system notice.
func (c *RoomCoordinator) CreateRoom(ctx context.Context, creatorID int64, name, imageRef string) (view RoomView, err error) {
	ctx, span := startSpan(ctx, "RoomCoordinator.CreateRoom")
	defer func() { finishSpan(span, err) }()

	name = strings.TrimSpace(name)
	if err := validateInput(roomNameInput{Name: name}); err != nil {
		return RoomView{}, err
	}

	var (
		room   models.ChatRoom
		member models.ChatRoomMember
		notice models.Message
	)
	err = c.store.WithinTx(ctx, func(tx repositories.Store) error {
		creator, err := tx.Users().GetUser(ctx, creatorID)
		if err != nil {
			return err
		}
		room = models.ChatRoom{Name: name, ImageRef: strings.TrimSpace(imageRef), CreatorID: creatorID}
		if err := tx.Rooms().CreateRoom(ctx, &room); err != nil {
			return err
		}
		member = models.NewMember(room.ID, creatorID, c.clock())
		if err := tx.Members().InsertMember(ctx, &member); err != nil {
			return err
		}
		notice, err = c.log.appendSystem(ctx, tx, room.ID, fmt.Sprintf("%s created the room", creator.Nickname))
		return err
	})
	if err != nil {
		return RoomView{}, err
	}

	observability.IncMembershipTransition(string(JoinedNew))
	log.Info().Int64("room_id", room.ID).Int64("creator_id", creatorID).Msg("room created")
	c.presence.observe(ctx, member)
	c.publishMessage(ctx, notice)
	return c.GetRoom(ctx, room.ID, &creatorID)
}

// mutateRoom runs fn against a fresh copy of the room inside a transaction.
// When fn reports a structural change the room's version is bumped, and a
// concurrent bump restarts the whole attempt. fn must reset any state it
// captures since it may run more than once.
func (c *RoomCoordinator) mutateRoom(ctx context.Context, roomID int64, fn func(tx repositories.Store, room *models.ChatRoom) (bool, error)) error {
	for attempt := 0; ; attempt++ {
		err := c.store.WithinTx(ctx, func(tx repositories.Store) error {
			room, err := tx.Rooms().GetRoom(ctx, roomID)
			if err != nil {
				return err
			}
			changed, err := fn(tx, &room)
			if err != nil || !changed {
				return err
			}
			return tx.Rooms().SaveRoom(ctx, &room)
		})
		if !errors.Is(err, repositories.ErrVersionConflict) {
			return err
		}

		observability.IncRoomVersionConflict()
		if attempt >= c.maxRetries {
			return apperrors.Wrap(apperrors.KindConflict, err, "room %d is busy, retry later", roomID)
		}
		log.Warn().Int64("room_id", roomID).Int("attempt", attempt+1).Msg("room version conflict, retrying")
	}
}

// Join makes userID an active member of roomID. Joining again while active is
// a no-op apart from catching the read cursor up. Rejoining reuses the old
// membership row. Every path leaves the cursor on the newest message.
func (c *RoomCoordinator) Join(ctx context.Context, roomID, userID int64) (result JoinResult, err error) {
	ctx, span := startSpan(ctx, "RoomCoordinator.Join")
	defer func() { finishSpan(span, err) }()

	var (
		member models.ChatRoomMember
		notice *models.Message
	)
	err = c.mutateRoom(ctx, roomID, func(tx repositories.Store, room *models.ChatRoom) (bool, error) {
		notice = nil
		if !room.Active {
			return false, apperrors.InvalidState("room %d is closed", roomID)
		}
		user, err := tx.Users().GetUser(ctx, userID)
		if err != nil {
			return false, err
		}

		var outcome JoinOutcome
		member, outcome, err = c.membership.activate(ctx, tx, roomID, userID)
		if err != nil {
			return false, err
		}
		result = JoinResult{Outcome: outcome, RoomID: roomID}

		if outcome != AlreadyMember {
			msg, err := c.log.appendSystem(ctx, tx, roomID, fmt.Sprintf("%s joined", user.Nickname))
			if err != nil {
				return false, err
			}
			notice = &msg
		}

		advanced, err := c.membership.advanceToLatest(ctx, tx, &member)
		if err != nil {
			return false, err
		}
		if advanced {
			if err := tx.Members().UpdateMember(ctx, member); err != nil {
				return false, err
			}
		}
		return outcome != AlreadyMember, nil
	})
	if err != nil {
		return JoinResult{}, err
	}

	result.LastReadMessageID = member.LastReadMessageID
	log.Info().Int64("room_id", roomID).Int64("user_id", userID).Str("outcome", string(result.Outcome)).Msg("room join")
	c.presence.observe(ctx, member)
	if notice != nil {
		c.publishMessage(ctx, *notice)
	}
	return result, nil
}

// Leave deactivates userID's membership and announces it.
func (c *RoomCoordinator) Leave(ctx context.Context, roomID, userID int64) (err error) {
	ctx, span := startSpan(ctx, "RoomCoordinator.Leave")
	defer func() { finishSpan(span, err) }()

	var (
		member models.ChatRoomMember
		notice models.Message
	)
	err = c.mutateRoom(ctx, roomID, func(tx repositories.Store, _ *models.ChatRoom) (bool, error) {
		user, err := tx.Users().GetUser(ctx, userID)
		if err != nil {
			return false, err
		}
		member, err = c.membership.deactivate(ctx, tx, roomID, userID)
		if err != nil {
			return false, err
		}
		notice, err = c.log.appendSystem(ctx, tx, roomID, fmt.Sprintf("%s left", user.Nickname))
		return err == nil, err
	})
	if err != nil {
		return err
	}

	log.Info().Int64("room_id", roomID).Int64("user_id", userID).Msg("room leave")
	c.presence.observe(ctx, member)
	c.publishMessage(ctx, notice)
	if n := c.sessions.DropUser(roomID, userID); n > 0 {
		log.Debug().Int64("room_id", roomID).Int64("user_id", userID).Int("sessions", n).Msg("closed sessions of departed member")
	}
	return nil
}

// UpdateRoom renames the room or replaces its image. Only the creator may.
func (c *RoomCoordinator) UpdateRoom(ctx context.Context, roomID, requesterID int64, name, imageRef string) (view RoomView, err error) {
	ctx, span := startSpan(ctx, "RoomCoordinator.UpdateRoom")
	defer func() { finishSpan(span, err) }()

	name = strings.TrimSpace(name)
	if err := validateInput(roomNameInput{Name: name}); err != nil {
		return RoomView{}, err
	}
	err = c.mutateRoom(ctx, roomID, func(_ repositories.Store, room *models.ChatRoom) (bool, error) {
		if room.CreatorID != requesterID {
			return false, apperrors.InvalidState("only the creator may edit room %d", roomID)
		}
		if !room.Active {
			return false, apperrors.InvalidState("room %d is closed", roomID)
		}
		room.Name = name
		room.ImageRef = strings.TrimSpace(imageRef)
		return true, nil
	})
	if err != nil {
		return RoomView{}, err
	}
	log.Info().Int64("room_id", roomID).Msg("room updated")
	return c.GetRoom(ctx, roomID, &requesterID)
}

// DeactivateRoom closes the room. Its history and memberships are kept.
func (c *RoomCoordinator) DeactivateRoom(ctx context.Context, roomID, requesterID int64) (err error) {
	ctx, span := startSpan(ctx, "RoomCoordinator.DeactivateRoom")
	defer func() { finishSpan(span, err) }()

	err = c.mutateRoom(ctx, roomID, func(_ repositories.Store, room *models.ChatRoom) (bool, error) {
		if room.CreatorID != requesterID {
			return false, apperrors.InvalidState("only the creator may close room %d", roomID)
		}
		if !room.Active {
			return false, apperrors.InvalidState("room %d is already closed", roomID)
		}
		room.Active = false
		return true, nil
	})
	if err != nil {
		return err
	}
	log.Info().Int64("room_id", roomID).Msg("room deactivated")
	return nil
}

// UpdateMemberPresence records a member going online or offline. Coming online
// catches the read cursor up. Unknown or departed members are ignored.
func (c *RoomCoordinator) UpdateMemberPresence(ctx context.Context, roomID, userID int64, online bool) error {
	return c.touchMember(ctx, roomID, userID, func(m *models.ChatRoomMember) bool {
		m.SetOnline(online, c.clock())
		return online
	})
}

// Heartbeat refreshes a member's activity and catches the read cursor up.
// Unknown or departed members are ignored.
func (c *RoomCoordinator) Heartbeat(ctx context.Context, roomID, userID int64) error {
	return c.touchMember(ctx, roomID, userID, func(m *models.ChatRoomMember) bool {
		m.Touch(c.clock())
		return true
	})
}

// touchMember applies a per-member update. It only locks the member row.
func (c *RoomCoordinator) touchMember(ctx context.Context, roomID, userID int64, apply func(m *models.ChatRoomMember) (advance bool)) error {
	var (
		member models.ChatRoomMember
		found  bool
	)
	err := c.store.WithinTx(ctx, func(tx repositories.Store) error {
		found = false
		if _, err := tx.Rooms().GetRoom(ctx, roomID); err != nil {
			return err
		}
		var err error
		member, err = tx.Members().GetMemberForUpdate(ctx, roomID, userID)
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !member.Active {
			return nil
		}
		found = true

		if apply(&member) {
			if _, err := c.membership.advanceToLatest(ctx, tx, &member); err != nil {
				return err
			}
		}
		return tx.Members().UpdateMember(ctx, member)
	})
	if err != nil {
		return err
	}
	if found {
		c.presence.observe(ctx, member)
	}
	return nil
}

// SendMessage appends a user message and broadcasts it with its unread tally.
func (c *RoomCoordinator) SendMessage(ctx context.Context, roomID, senderID int64, body models.MessageBody) (view MessageView, err error) {
	ctx, span := startSpan(ctx, "RoomCoordinator.SendMessage")
	defer func() { finishSpan(span, err) }()

	msg, err := c.log.Append(ctx, roomID, &senderID, body)
	if err != nil {
		return MessageView{}, err
	}
	view, err = c.messageView(ctx, msg)
	if err != nil {
		return MessageView{}, err
	}
	c.publish(ctx, RoomTopic(roomID), MessageEvent{Type: EventTypeMessage, RoomID: roomID, Message: &view})
	return view, nil
}

// ListMessages returns the messages visible to viewerID (all live messages when nil).
func (c *RoomCoordinator) ListMessages(ctx context.Context, roomID int64, viewerID *int64) ([]MessageView, error) {
	msgs, err := c.log.ListSince(ctx, roomID, viewerID)
	if err != nil {
		return nil, err
	}
	return c.messageViews(ctx, roomID, msgs)
}

// SearchMessages finds live messages containing keyword, newest first.
func (c *RoomCoordinator) SearchMessages(ctx context.Context, roomID int64, keyword string) ([]MessageView, error) {
	msgs, err := c.log.Search(ctx, roomID, keyword)
	if err != nil {
		return nil, err
	}
	return c.messageViews(ctx, roomID, msgs)
}

// DeleteMessage soft-deletes the requester's own message of roomID and announces it.
func (c *RoomCoordinator) DeleteMessage(ctx context.Context, roomID, messageID, requesterID int64) (err error) {
	ctx, span := startSpan(ctx, "RoomCoordinator.DeleteMessage")
	defer func() { finishSpan(span, err) }()

	msg, err := c.log.SoftDelete(ctx, roomID, messageID, requesterID)
	if err != nil {
		return err
	}
	log.Info().Int64("room_id", msg.RoomID).Int64("message_id", msg.ID).Msg("message deleted")
	c.publish(ctx, RoomTopic(msg.RoomID), MessageEvent{Type: EventTypeMessageDeleted, RoomID: msg.RoomID, MessageID: msg.ID})
	return nil
}

// ListActiveMembers returns a room's roster in join order.
func (c *RoomCoordinator) ListActiveMembers(ctx context.Context, roomID int64) ([]MemberView, error) {
	if _, err := c.store.Rooms().GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	members, err := c.membership.ActiveMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := loadUsers(ctx, c.store.Users(), ids)
	if err != nil {
		return nil, err
	}
	recent := c.presence.RecentlyActiveUserIDs(ctx, roomID, members)

	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		u := users[m.UserID]
		views = append(views, MemberView{
			UserID:            m.UserID,
			Nickname:          u.Nickname,
			ProfileColor:      u.ProfileColor,
			ProfileImage:      u.ProfileImage,
			JoinedAt:          m.JoinedAt,
			Online:            m.Online,
			RecentlyActive:    recent[m.UserID],
			LastReadMessageID: m.LastReadMessageID,
		})
	}
	return views, nil
}

// ListRooms returns the newest active rooms as seen by viewerID (anonymous when nil).
func (c *RoomCoordinator) ListRooms(ctx context.Context, viewerID *int64) ([]RoomView, error) {
	rooms, err := c.store.Rooms().ListActiveRooms(ctx, c.listLimit)
	if err != nil {
		return nil, err
	}
	views := make([]RoomView, 0, len(rooms))
	for _, room := range rooms {
		view, err := c.roomView(ctx, room, viewerID)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// GetRoom returns one room as seen by viewerID.
func (c *RoomCoordinator) GetRoom(ctx context.Context, roomID int64, viewerID *int64) (RoomView, error) {
	room, err := c.store.Rooms().GetRoom(ctx, roomID)
	if err != nil {
		return RoomView{}, err
	}
	return c.roomView(ctx, room, viewerID)
}

func (c *RoomCoordinator) roomView(ctx context.Context, room models.ChatRoom, viewerID *int64) (RoomView, error) {
	members, err := c.store.Members().ListActiveMembers(ctx, room.ID)
	if err != nil {
		return RoomView{}, err
	}

	view := RoomView{
		ID:            room.ID,
		Name:          room.Name,
		ImageRef:      room.ImageRef,
		CreatorID:     room.CreatorID,
		CreatedAt:     room.CreatedAt,
		Active:        room.Active,
		MemberCount:   len(members),
		MemberAvatars: []MemberAvatar{},
	}

	userIDs := []int64{room.CreatorID}
	var viewer *models.ChatRoomMember
	for i, m := range members {
		if viewerID != nil && m.UserID == *viewerID {
			viewer = &members[i]
			continue
		}
		if len(userIDs) <= maxAvatars {
			userIDs = append(userIDs, m.UserID)
		}
	}
	users, err := loadUsers(ctx, c.store.Users(), userIDs)
	if err != nil {
		return RoomView{}, err
	}
	view.CreatorNickname = users[room.CreatorID].Nickname
	for _, id := range userIDs[1:] {
		if u, ok := users[id]; ok {
			view.MemberAvatars = append(view.MemberAvatars, newAvatar(u))
		}
	}

	if viewer == nil {
		return view, nil
	}
	view.IsMember = true
	if view.UnreadCount, err = c.reads.countFor(ctx, c.store, *viewer); err != nil {
		return RoomView{}, err
	}
	last, ok, err := c.log.LastMessage(ctx, room.ID)
	if err != nil {
		return RoomView{}, err
	}
	if ok {
		view.LastMessagePreview = last.Preview()
		sentAt := last.SentAt
		view.LastMessageAt = &sentAt
	}
	return view, nil
}

func (c *RoomCoordinator) messageView(ctx context.Context, msg models.Message) (MessageView, error) {
	views, err := c.messageViews(ctx, msg.RoomID, []models.Message{msg})
	if err != nil {
		return MessageView{}, err
	}
	return views[0], nil
}

func (c *RoomCoordinator) messageViews(ctx context.Context, roomID int64, msgs []models.Message) ([]MessageView, error) {
	users, err := loadUsers(ctx, c.store.Users(), senderIDs(msgs))
	if err != nil {
		return nil, err
	}
	unread, err := c.reads.UnreadCountsForMessages(ctx, roomID, msgs)
	if err != nil {
		return nil, err
	}
	views := make([]MessageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, newMessageView(msg, users, unread))
	}
	return views, nil
}

func (c *RoomCoordinator) publishMessage(ctx context.Context, msg models.Message) {
	view, err := c.messageView(ctx, msg)
	if err != nil {
		log.Warn().Err(err).Int64("message_id", msg.ID).Msg("could not render message for broadcast")
		view = newMessageView(msg, nil, nil)
	}
	c.publish(ctx, RoomTopic(msg.RoomID), MessageEvent{Type: EventTypeMessage, RoomID: msg.RoomID, Message: &view})
}

// publish delivers after commit. Failures are logged and never reach the caller.
func (c *RoomCoordinator) publish(ctx context.Context, topic string, event any) {
	if err := c.broadcaster.Publish(ctx, topic, event); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("broadcast failed")
	}
}
