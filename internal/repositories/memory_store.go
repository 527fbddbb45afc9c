package repositories

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"room-chat-service/internal/models"
)

// MemoryStore is an in-process Store for local runs and tests. Transactions
// hold the store lock for their whole duration and restore a snapshot on error.
type MemoryStore struct {
	mu    *sync.Mutex
	state *memState
	inTx  bool
	now   func() time.Time
}

type memState struct {
	users    map[int64]models.User
	rooms    map[int64]models.ChatRoom
	members  map[int64]models.ChatRoomMember
	messages map[int64]models.Message

	nextUserID       int64
	nextRoomID       int64
	nextMemberID     int64
	nextMessageID    int64
	nextAttachmentID int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu: &sync.Mutex{},
		state: &memState{
			users:    map[int64]models.User{},
			rooms:    map[int64]models.ChatRoom{},
			members:  map[int64]models.ChatRoomMember{},
			messages: map[int64]models.Message{},
		},
		now: time.Now,
	}
}

// WithClock overrides the clock used for generated timestamps.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Users() UserRepository       { return memUsers{s} }
func (s *MemoryStore) Rooms() RoomRepository       { return memRooms{s} }
func (s *MemoryStore) Members() MemberRepository   { return memMembers{s} }
func (s *MemoryStore) Messages() MessageRepository { return memMessages{s} }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	tx := &MemoryStore{mu: s.mu, state: s.state, inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		*s.state = *snapshot
		return err
	}
	return nil
}

// lock guards single statements issued outside a transaction.
func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (st *memState) clone() *memState {
	c := *st
	c.users = make(map[int64]models.User, len(st.users))
	for k, v := range st.users {
		c.users[k] = v
	}
	c.rooms = make(map[int64]models.ChatRoom, len(st.rooms))
	for k, v := range st.rooms {
		c.rooms[k] = v
	}
	c.members = make(map[int64]models.ChatRoomMember, len(st.members))
	for k, v := range st.members {
		c.members[k] = copyMember(v)
	}
	c.messages = make(map[int64]models.Message, len(st.messages))
	for k, v := range st.messages {
		c.messages[k] = copyMessage(v)
	}
	return &c
}

func copyMember(m models.ChatRoomMember) models.ChatRoomMember {
	if m.LeftAt != nil {
		t := *m.LeftAt
		m.LeftAt = &t
	}
	if m.LastReadMessageID != nil {
		id := *m.LastReadMessageID
		m.LastReadMessageID = &id
	}
	return m
}

func copyMessage(m models.Message) models.Message {
	if m.SenderID != nil {
		id := *m.SenderID
		m.SenderID = &id
	}
	if m.Attachment != nil {
		a := *m.Attachment
		m.Attachment = &a
	}
	return m
}

type memUsers struct{ s *MemoryStore }

func (r memUsers) CreateUser(_ context.Context, user *models.User) error {
	defer r.s.lock()()
	for _, u := range r.s.state.users {
		if u.Nickname == user.Nickname {
			return ErrNicknameTaken
		}
	}
	r.s.state.nextUserID++
	now := r.s.now()
	user.ID = r.s.state.nextUserID
	user.CreatedAt = now
	user.LastActiveAt = now
	r.s.state.users[user.ID] = *user
	return nil
}

func (r memUsers) GetUser(_ context.Context, userID int64) (models.User, error) {
	defer r.s.lock()()
	u, ok := r.s.state.users[userID]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return u, nil
}

func (r memUsers) GetUserByNickname(_ context.Context, nickname string) (models.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.state.users {
		if u.Nickname == nickname {
			return u, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

func (r memUsers) NicknameExists(ctx context.Context, nickname string) (bool, error) {
	_, err := r.GetUserByNickname(ctx, nickname)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r memUsers) UpdateUser(_ context.Context, user models.User) error {
	defer r.s.lock()()
	existing, ok := r.s.state.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	existing.ProfileColor = user.ProfileColor
	existing.ProfileImage = user.ProfileImage
	existing.LastActiveAt = user.LastActiveAt
	r.s.state.users[user.ID] = existing
	return nil
}

func (r memUsers) ListUsersByIDs(_ context.Context, userIDs []int64) ([]models.User, error) {
	defer r.s.lock()()
	var users []models.User
	for _, id := range userIDs {
		if u, ok := r.s.state.users[id]; ok {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

type memRooms struct{ s *MemoryStore }

func (r memRooms) CreateRoom(_ context.Context, room *models.ChatRoom) error {
	defer r.s.lock()()
	r.s.state.nextRoomID++
	room.ID = r.s.state.nextRoomID
	room.CreatedAt = r.s.now()
	room.Active = true
	room.Version = 0
	r.s.state.rooms[room.ID] = *room
	return nil
}

func (r memRooms) GetRoom(_ context.Context, roomID int64) (models.ChatRoom, error) {
	defer r.s.lock()()
	room, ok := r.s.state.rooms[roomID]
	if !ok {
		return models.ChatRoom{}, ErrRoomNotFound
	}
	return room, nil
}

// LockRoom needs no extra lock: a memory transaction holds the store mutex.
func (r memRooms) LockRoom(ctx context.Context, roomID int64) (models.ChatRoom, error) {
	return r.GetRoom(ctx, roomID)
}

func (r memRooms) ListActiveRooms(_ context.Context, limit int) ([]models.ChatRoom, error) {
	defer r.s.lock()()
	var rooms []models.ChatRoom
	for _, room := range r.s.state.rooms {
		if room.Active {
			rooms = append(rooms, room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID > rooms[j].ID
	})
	if limit > 0 && len(rooms) > limit {
		rooms = rooms[:limit]
	}
	return rooms, nil
}

func (r memRooms) SaveRoom(_ context.Context, room *models.ChatRoom) error {
	defer r.s.lock()()
	stored, ok := r.s.state.rooms[room.ID]
	if !ok || stored.Version != room.Version {
		return ErrVersionConflict
	}
	stored.Name = room.Name
	stored.ImageRef = room.ImageRef
	stored.Active = room.Active
	stored.Version++
	r.s.state.rooms[room.ID] = stored
	room.Version = stored.Version
	return nil
}

type memMembers struct{ s *MemoryStore }

func (r memMembers) find(roomID, userID int64) (models.ChatRoomMember, bool) {
	for _, m := range r.s.state.members {
		if m.RoomID == roomID && m.UserID == userID {
			return copyMember(m), true
		}
	}
	return models.ChatRoomMember{}, false
}

func (r memMembers) GetMember(_ context.Context, roomID, userID int64) (models.ChatRoomMember, error) {
	defer r.s.lock()()
	m, ok := r.find(roomID, userID)
	if !ok {
		return models.ChatRoomMember{}, ErrMemberNotFound
	}
	return m, nil
}

func (r memMembers) GetMemberForUpdate(ctx context.Context, roomID, userID int64) (models.ChatRoomMember, error) {
	return r.GetMember(ctx, roomID, userID)
}

func (r memMembers) InsertMember(_ context.Context, member *models.ChatRoomMember) error {
	defer r.s.lock()()
	if _, exists := r.find(member.RoomID, member.UserID); exists {
		return ErrVersionConflict
	}
	r.s.state.nextMemberID++
	member.ID = r.s.state.nextMemberID
	r.s.state.members[member.ID] = copyMember(*member)
	return nil
}

func (r memMembers) UpdateMember(_ context.Context, member models.ChatRoomMember) error {
	defer r.s.lock()()
	stored, ok := r.s.state.members[member.ID]
	if !ok {
		return ErrMemberNotFound
	}
	updated := copyMember(member)
	if stored.CursorID() > updated.CursorID() {
		updated.LastReadMessageID = stored.LastReadMessageID
	}
	r.s.state.members[member.ID] = updated
	return nil
}

func (r memMembers) ListActiveMembers(_ context.Context, roomID int64) ([]models.ChatRoomMember, error) {
	defer r.s.lock()()
	var members []models.ChatRoomMember
	for _, m := range r.s.state.members {
		if m.RoomID == roomID && m.Active {
			members = append(members, copyMember(m))
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].ID < members[j].ID
	})
	return members, nil
}

func (r memMembers) ListActiveRoomIDs(_ context.Context, userID int64) ([]int64, error) {
	defer r.s.lock()()
	var ids []int64
	for _, m := range r.s.state.members {
		if m.UserID == userID && m.Active {
			ids = append(ids, m.RoomID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type memMessages struct{ s *MemoryStore }

func (r memMessages) CreateMessage(_ context.Context, msg *models.Message) error {
	defer r.s.lock()()
	r.s.state.nextMessageID++
	msg.ID = r.s.state.nextMessageID
	msg.Deleted = false
	if msg.Attachment != nil {
		r.s.state.nextAttachmentID++
		msg.Attachment.ID = r.s.state.nextAttachmentID
		msg.Attachment.MessageID = msg.ID
	}
	r.s.state.messages[msg.ID] = copyMessage(*msg)
	return nil
}

func (r memMessages) GetMessage(_ context.Context, messageID int64) (models.Message, error) {
	defer r.s.lock()()
	msg, ok := r.s.state.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return copyMessage(msg), nil
}

// live returns a room's non-deleted messages in id order. Caller holds the lock.
func (r memMessages) live(roomID int64) []models.Message {
	var msgs []models.Message
	for _, m := range r.s.state.messages {
		if m.RoomID == roomID && !m.Deleted {
			msgs = append(msgs, copyMessage(m))
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs
}

func (r memMessages) ListRoomMessages(_ context.Context, roomID int64, since *time.Time) ([]models.Message, error) {
	defer r.s.lock()()
	var out []models.Message
	for _, m := range r.live(roomID) {
		if since != nil && m.SentAt.Before(*since) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r memMessages) SearchRoomMessages(_ context.Context, roomID int64, keyword string) ([]models.Message, error) {
	defer r.s.lock()()
	needle := strings.ToLower(keyword)
	msgs := r.live(roomID)
	var out []models.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if strings.Contains(strings.ToLower(msgs[i].Content), needle) {
			out = append(out, msgs[i])
		}
	}
	return out, nil
}

func (r memMessages) LastRoomMessage(_ context.Context, roomID int64) (models.Message, error) {
	defer r.s.lock()()
	msgs := r.live(roomID)
	if len(msgs) == 0 {
		return models.Message{}, ErrMessageNotFound
	}
	return msgs[len(msgs)-1], nil
}

func (r memMessages) CountUnread(_ context.Context, roomID, userID, afterID int64) (int, error) {
	defer r.s.lock()()
	count := 0
	for _, m := range r.live(roomID) {
		if m.ID > afterID && m.SenderID != nil && *m.SenderID != userID {
			count++
		}
	}
	return count, nil
}

func (r memMessages) MarkDeleted(_ context.Context, messageID int64) error {
	defer r.s.lock()()
	msg, ok := r.s.state.messages[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	msg.Deleted = true
	r.s.state.messages[messageID] = msg
	return nil
}
