package rabbitmq

import (
	"context"
	"strings"

	"room-chat-service/internal/observability"
)

const roomEventType = "room_event"

// RoomRelay forwards room topic events to the exchange so other services can
// follow room activity. Topic "/topic/chatroom/5/read-status" is published
// with routing key "chatroom.5.read-status".
type RoomRelay struct {
	publisher Publisher
}

func NewRoomRelay(publisher Publisher) *RoomRelay {
	return &RoomRelay{publisher: publisher}
}

func (r *RoomRelay) Publish(ctx context.Context, topic string, event any) error {
	key := RoutingKey(topic)
	return r.publisher.Publish(ctx, key, observability.NewEnvelope(ctx, roomEventType, key, event))
}

// RoutingKey converts a topic address into a dotted routing key.
func RoutingKey(topic string) string {
	topic = strings.TrimPrefix(topic, "/topic/")
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}
