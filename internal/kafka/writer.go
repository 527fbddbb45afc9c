package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	k "github.com/segmentio/kafka-go"
	"github.com/rs/zerolog/log"

	"room-chat-service/internal/observability"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...k.Message) error
	Close() error
}

// RoomRelay appends room topic events to a Kafka topic. Messages are keyed by
// the room topic address so each room's events stay on one partition in order.
type RoomRelay struct {
	w messageWriter
}

// NewRoomRelay builds a relay writing to topic on the given brokers. Writes are
// asynchronous: Publish only enqueues, delivery failures surface in reportDelivery.
func NewRoomRelay(brokers []string, topic string) *RoomRelay {
	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka relay configured")
	return &RoomRelay{w: newWriter(brokers, topic)}
}

func newWriter(brokers []string, topic string) *k.Writer {
	return &k.Writer{
		Addr:         k.TCP(brokers...),
		Topic:        topic,
		Balancer:     &k.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: k.RequireOne,
		Async:        true,
		Completion:   reportDelivery,
	}
}

func reportDelivery(msgs []k.Message, err error) {
	if err == nil {
		return
	}
	for range msgs {
		observability.IncBroadcastFailure("kafka")
	}
	log.Warn().Err(err).Int("messages", len(msgs)).Msg("kafka delivery failed")
}

func (r *RoomRelay) Publish(ctx context.Context, topic string, event any) error {
	env := observability.NewEnvelope(ctx, "room_event", strings.TrimPrefix(topic, "/topic/"), event)
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := k.Message{
		Key:   []byte(topic),
		Value: value,
		Time:  env.OccurredAt,
	}
	for name, v := range observability.BuildHeaders(env.RequestID, env.TraceID) {
		msg.Headers = append(msg.Headers, k.Header{Key: name, Value: []byte(v)})
	}
	return r.w.WriteMessages(ctx, msg)
}

func (r *RoomRelay) Close() error { return r.w.Close() }
