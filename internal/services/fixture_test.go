package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"room-chat-service/internal/models"
	"room-chat-service/internal/repositories"
)

type published struct {
	topic string
	event any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (b *recordingBroadcaster) Publish(_ context.Context, topic string, event any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{topic: topic, event: event})
	return b.err
}

func (b *recordingBroadcaster) onTopic(topic string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []any
	for _, p := range b.events {
		if p.topic == topic {
			out = append(out, p.event)
		}
	}
	return out
}

func (b *recordingBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// tickingClock advances by one millisecond on every read so successive
// timestamps are strictly ordered.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *tickingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx        context.Context
	memory     *repositories.MemoryStore
	clock      *tickingClock
	bus        *recordingBroadcaster
	users      *UserDirectory
	log        *MessageLog
	membership *MembershipRegistry
	reads      *ReadTracker
	presence   *PresenceMonitor
	rooms      *RoomCoordinator
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil)
}

// newFixtureWith builds the services over wrap(memory store) when wrap is non-nil.
func newFixtureWith(t *testing.T, wrap func(repositories.Store) repositories.Store) *fixture {
	t.Helper()
	clock := newTickingClock()
	memory := repositories.NewMemoryStore().WithClock(clock.Now)
	var store repositories.Store = memory
	if wrap != nil {
		store = wrap(memory)
	}

	bus := &recordingBroadcaster{}
	membership := NewMembershipRegistry(store, clock.Now)
	msgLog := NewMessageLog(store, nil, clock.Now)
	reads := NewReadTracker(store, membership, bus, clock.Now)
	presence := NewPresenceMonitor(DefaultPresenceWindow, nil, clock.Now)
	rooms := NewRoomCoordinator(CoordinatorDeps{
		Store:       store,
		Log:         msgLog,
		Membership:  membership,
		Reads:       reads,
		Presence:    presence,
		Broadcaster: bus,
		Clock:       clock.Now,
	}, CoordinatorOptions{})

	return &fixture{
		ctx:        context.Background(),
		memory:     memory,
		clock:      clock,
		bus:        bus,
		users:      NewUserDirectory(store, clock.Now),
		log:        msgLog,
		membership: membership,
		reads:      reads,
		presence:   presence,
		rooms:      rooms,
	}
}

func (f *fixture) user(t *testing.T, nickname string) int64 {
	t.Helper()
	u, _, err := f.users.Login(f.ctx, LoginRequest{Nickname: nickname})
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) room(t *testing.T, creatorID int64, name string) int64 {
	t.Helper()
	view, err := f.rooms.CreateRoom(f.ctx, creatorID, name, "")
	require.NoError(t, err)
	return view.ID
}

func (f *fixture) member(t *testing.T, roomID, userID int64) memberSnapshot {
	t.Helper()
	m, err := f.memory.Members().GetMember(f.ctx, roomID, userID)
	require.NoError(t, err)
	return memberSnapshot{id: m.ID, active: m.Active, online: m.Online, cursor: m.CursorID(), lastActiveAt: m.LastActiveAt, joinedAt: m.JoinedAt}
}

type memberSnapshot struct {
	id           int64
	active       bool
	online       bool
	cursor       int64
	lastActiveAt time.Time
	joinedAt     time.Time
}

// conflictingStore fails the next n room saves with a version conflict.
type conflictingStore struct {
	repositories.Store
	remaining *int32
	attempts  *int32
}

func withConflicts(n int32) (func(repositories.Store) repositories.Store, *int32) {
	remaining, attempts := new(int32), new(int32)
	*remaining = n
	return func(inner repositories.Store) repositories.Store {
		return conflictingStore{Store: inner, remaining: remaining, attempts: attempts}
	}, attempts
}

func (s conflictingStore) Rooms() repositories.RoomRepository {
	return conflictingRooms{RoomRepository: s.Store.Rooms(), remaining: s.remaining, attempts: s.attempts}
}

func (s conflictingStore) WithinTx(ctx context.Context, fn func(tx repositories.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repositories.Store) error {
		return fn(conflictingStore{Store: tx, remaining: s.remaining, attempts: s.attempts})
	})
}

type conflictingRooms struct {
	repositories.RoomRepository
	remaining *int32
	attempts  *int32
}

func (r conflictingRooms) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	atomic.AddInt32(r.attempts, 1)
	if atomic.AddInt32(r.remaining, -1) >= 0 {
		return repositories.ErrVersionConflict
	}
	return r.RoomRepository.SaveRoom(ctx, room)
}
