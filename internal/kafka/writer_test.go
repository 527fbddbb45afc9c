package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	k "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-chat-service/internal/observability"
)

type fakeWriter struct {
	msgs   []k.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...k.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestRoomRelayKeysByTopic(t *testing.T) {
	w := &fakeWriter{}
	relay := &RoomRelay{w: w}
	ctx := observability.WithRequestID(context.Background(), "req-3")

	require.NoError(t, relay.Publish(ctx, "/topic/chatroom/8", map[string]string{"type": "message"}))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "/topic/chatroom/8", string(msg.Key))
	assert.Equal(t, []k.Header{{Key: "x-request-id", Value: []byte("req-3")}}, msg.Headers)

	var env observability.EventEnvelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, "room_event", env.EventType)
	assert.Equal(t, "chatroom/8", env.EventName)
	assert.Equal(t, "req-3", env.RequestID)
	assert.Equal(t, map[string]any{"type": "message"}, env.Payload)

	require.NoError(t, relay.Close())
	assert.True(t, w.closed)
}

func TestRoomRelayReturnsWriteError(t *testing.T) {
	relay := &RoomRelay{w: &fakeWriter{err: errors.New("leader not available")}}
	assert.EqualError(t, relay.Publish(context.Background(), "/topic/chatroom/1", nil), "leader not available")
}

func TestWriterDoesNotBlockPublishers(t *testing.T) {
	w := newWriter([]string{"kafka-1:9092"}, "room-chat-events")
	defer w.Close()

	assert.True(t, w.Async)
	require.NotNil(t, w.Completion)
	_, ok := w.Balancer.(*k.Hash)
	assert.True(t, ok)
}

func TestReportDeliveryCountsFailedMessages(t *testing.T) {
	before := kafkaFailures(t)

	reportDelivery([]k.Message{{Key: []byte("a")}, {Key: []byte("b")}}, nil)
	assert.Equal(t, before, kafkaFailures(t))

	reportDelivery([]k.Message{{Key: []byte("a")}, {Key: []byte("b")}}, errors.New("broker down"))
	assert.Equal(t, before+2, kafkaFailures(t))
}

func kafkaFailures(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "chat_broadcast_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "sink" && l.GetValue() == "kafka" {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRoomRelayRejectsUnencodableEvent(t *testing.T) {
	w := &fakeWriter{}
	relay := &RoomRelay{w: w}
	assert.Error(t, relay.Publish(context.Background(), "/topic/chatroom/1", func() {}))
	assert.Empty(t, w.msgs)
}
