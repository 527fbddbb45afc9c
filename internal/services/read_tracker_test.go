package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-chat-service/internal/apperrors"
	"room-chat-service/internal/models"
)

func TestUnreadMappingTracksTallies(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	room := f.room(t, alice, "general")
	for _, id := range []int64{bob, carol} {
		_, err := f.rooms.Join(f.ctx, room, id)
		require.NoError(t, err)
	}

	first, err := f.rooms.SendMessage(f.ctx, room, alice, models.TextBody{Text: "first"})
	require.NoError(t, err)
	assert.Equal(t, 2, *first.UnreadCount)

	_, err = f.reads.MarkRead(f.ctx, bob, room)
	require.NoError(t, err)
	second, err := f.rooms.SendMessage(f.ctx, room, alice, models.TextBody{Text: "second"})
	require.NoError(t, err)

	mapping, err := f.reads.UnreadMapping(f.ctx, room)
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{1: first.ID, 2: second.ID}, mapping)

	_, err = f.reads.MarkRead(f.ctx, carol, room)
	require.NoError(t, err)
	mapping, err = f.reads.UnreadMapping(f.ctx, room)
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{0: first.ID, 1: second.ID}, mapping)

	views, err := f.rooms.ListMessages(f.ctx, room, nil)
	require.NoError(t, err)
	for _, v := range views {
		if v.Type == models.MessageTypeSystem {
			assert.Nil(t, v.UnreadCount)
		}
	}
}

func TestUnreadCountIgnoresOwnAndSystemMessages(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice, "general")
	_, err := f.rooms.Join(f.ctx, room, bob)
	require.NoError(t, err)

	_, err = f.rooms.SendMessage(f.ctx, room, bob, models.TextBody{Text: "mine"})
	require.NoError(t, err)
	n, err := f.reads.UnreadCountFor(f.ctx, bob, room)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// alice's cursor was never advanced past creation; bob's join notice does not count
	n, err = f.reads.UnreadCountFor(f.ctx, alice, room)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarkReadErrors(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice, "general")

	_, err := f.reads.MarkRead(f.ctx, bob, room)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = f.reads.MarkRead(f.ctx, 999, room)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = f.reads.MarkRead(f.ctx, alice, 404)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = f.rooms.Join(f.ctx, room, bob)
	require.NoError(t, err)
	require.NoError(t, f.rooms.Leave(f.ctx, room, bob))
	_, err = f.reads.MarkRead(f.ctx, bob, room)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	room := f.room(t, alice, "general")

	first, err := f.reads.MarkRead(f.ctx, alice, room)
	require.NoError(t, err)
	second, err := f.reads.MarkRead(f.ctx, alice, room)
	require.NoError(t, err)
	assert.Equal(t, first.LastReadMessageID, second.LastReadMessageID)
	assert.Len(t, f.bus.onTopic(ReadStatusTopic(room)), 2)
}

func TestCursorNeverMovesBackwards(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice, "general")
	_, err := f.rooms.Join(f.ctx, room, bob)
	require.NoError(t, err)
	sent, err := f.rooms.SendMessage(f.ctx, room, alice, models.TextBody{Text: "x"})
	require.NoError(t, err)

	stale, err := f.memory.Members().GetMember(f.ctx, room, bob)
	require.NoError(t, err)
	_, err = f.reads.MarkRead(f.ctx, bob, room)
	require.NoError(t, err)

	// a writer holding the pre-read row must not undo the read
	stale.Online = false
	require.NoError(t, f.memory.Members().UpdateMember(f.ctx, stale))
	assert.Equal(t, sent.ID, f.member(t, room, bob).cursor)

	require.NoError(t, f.rooms.Heartbeat(f.ctx, room, bob))
	assert.Equal(t, sent.ID, f.member(t, room, bob).cursor)
}

func TestAllUnreadCounts(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	open := f.room(t, alice, "open")
	closed := f.room(t, alice, "closed")
	left := f.room(t, alice, "left")
	for _, room := range []int64{open, closed, left} {
		_, err := f.rooms.Join(f.ctx, room, bob)
		require.NoError(t, err)
		_, err = f.rooms.SendMessage(f.ctx, room, alice, models.TextBody{Text: "news"})
		require.NoError(t, err)
	}
	_, err := f.rooms.SendMessage(f.ctx, open, alice, models.TextBody{Text: "more news"})
	require.NoError(t, err)
	require.NoError(t, f.rooms.DeactivateRoom(f.ctx, closed, alice))
	require.NoError(t, f.rooms.Leave(f.ctx, left, bob))

	counts, err := f.reads.AllUnreadCounts(f.ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{open: 2}, counts)

	counts, err = f.reads.AllUnreadCounts(f.ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestUnreadCountForMessageExcludesSender(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice, "general")
	_, err := f.rooms.Join(f.ctx, room, bob)
	require.NoError(t, err)

	sent, err := f.rooms.SendMessage(f.ctx, room, bob, models.TextBody{Text: "hi alice"})
	require.NoError(t, err)
	msg, err := f.log.Get(f.ctx, sent.ID)
	require.NoError(t, err)

	n, err := f.reads.UnreadCountForMessage(f.ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, f.rooms.Leave(f.ctx, room, alice))
	n, err = f.reads.UnreadCountForMessage(f.ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
