package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-chat-service/internal/services"
)

var _ services.PresenceIndex = (*RedisIndex)(nil)

func newTestIndex(t *testing.T) (*RedisIndex, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIndex(client), mr
}

func TestRedisIndexActiveSince(t *testing.T) {
	index, mr := newTestIndex(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, index.Touch(ctx, 1, 10, now.Add(-40*time.Second)))
	require.NoError(t, index.Touch(ctx, 1, 11, now.Add(-5*time.Second)))
	require.NoError(t, index.Touch(ctx, 1, 12, now))
	require.NoError(t, index.Touch(ctx, 2, 13, now))

	ids, err := index.ActiveSince(ctx, 1, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 12}, ids)

	require.NoError(t, index.Remove(ctx, 1, 12))
	ids, err = index.ActiveSince(ctx, 1, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []int64{11}, ids)

	assert.True(t, mr.Exists("presence:room:2"))
}

func TestRedisIndexBoundaryIsExclusive(t *testing.T) {
	index, _ := newTestIndex(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, index.Touch(ctx, 1, 10, now.Add(-30*time.Second)))
	ids, err := index.ActiveSince(ctx, 1, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisIndexPrunesStaleEntries(t *testing.T) {
	index, mr := newTestIndex(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, index.Touch(ctx, 1, 10, now.Add(-time.Hour)))
	require.NoError(t, index.Touch(ctx, 1, 11, now))

	members, err := mr.ZMembers("presence:room:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"11"}, members)
}

func TestConnectFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
