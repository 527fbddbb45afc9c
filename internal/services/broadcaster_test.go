package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {
	assert.Equal(t, "/topic/chatroom/42", RoomTopic(42))
	assert.Equal(t, "/topic/chatroom/42/read-status", ReadStatusTopic(42))
}

func TestFanoutDeliversPastFailingSink(t *testing.T) {
	failing := &recordingBroadcaster{err: errors.New("broker unreachable")}
	healthy := &recordingBroadcaster{}
	fanout := NewFanout().Add("amqp", failing).Add("nil", nil).Add("ws", healthy)
	assert.Equal(t, []string{"amqp", "ws"}, fanout.Sinks())

	event := MessageEvent{Type: EventTypeMessageDeleted, RoomID: 1, MessageID: 9}
	err := fanout.Publish(context.Background(), RoomTopic(1), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amqp: broker unreachable")
	assert.ErrorIs(t, err, failing.err)

	assert.Equal(t, []any{event}, failing.onTopic(RoomTopic(1)))
	assert.Equal(t, []any{event}, healthy.onTopic(RoomTopic(1)))
}

func TestEmptyFanoutAndNop(t *testing.T) {
	assert.NoError(t, NewFanout().Publish(context.Background(), RoomTopic(1), nil))
	assert.NoError(t, NopBroadcaster{}.Publish(context.Background(), RoomTopic(1), nil))
}
