package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"room-chat-service/internal/observability"
	"room-chat-service/internal/services"
)

const (
	wsKind       = "room"
	wsRoutingKey = "ws_events.rooms"
	writeWait    = 10 * time.Second
)

// EventPublisher receives websocket lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// client is one websocket connection. Writes are serialized per connection.
type client struct {
	conn    *websocket.Conn
	info    ConnInfo
	mu      sync.Mutex
	evicted string
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("connection closed")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// evict tells the peer the session is over and closes the connection.
func (c *client) evict(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evicted = reason
	if c.conn != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
}

func (c *client) evictReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evicted
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Hub fans events out to the connections subscribed to each topic address.
type Hub struct {
	topics map[string]map[*client]struct{}
	mu     sync.RWMutex
	events EventPublisher
}

// NewHub creates an empty hub. events may be nil.
func NewHub(events EventPublisher) *Hub {
	return &Hub{
		topics: make(map[string]map[*client]struct{}),
		events: events,
	}
}

func (h *Hub) subscribe(topic string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[*client]struct{})
	}
	h.topics[topic][c] = struct{}{}
}

// unsubscribeAll drops c from every topic and reports whether it was subscribed anywhere.
func (h *Hub) unsubscribeAll(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	found := false
	for topic, clients := range h.topics {
		if _, ok := clients[c]; ok {
			found = true
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	return found
}

// DropUser closes every session userID holds in roomID and returns how many
// were closed.
func (h *Hub) DropUser(roomID, userID int64) int {
	h.mu.Lock()
	var dropped []*client
	for c := range h.topics[services.RoomTopic(roomID)] {
		if c.info.UserID == userID {
			dropped = append(dropped, c)
		}
	}
	for _, topic := range []string{services.RoomTopic(roomID), services.ReadStatusTopic(roomID)} {
		for _, c := range dropped {
			delete(h.topics[topic], c)
		}
		if len(h.topics[topic]) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()

	for _, c := range dropped {
		c.evict("left room")
	}
	return len(dropped)
}

// SubscriberCount returns how many connections listen on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// userConnected reports whether userID still has a connection on topic.
func (h *Hub) userConnected(topic string, userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.topics[topic] {
		if c.info.UserID == userID {
			return true
		}
	}
	return false
}

// Publish writes event to every subscriber of topic. A failed connection is
// closed and dropped without affecting the others; the failures are returned joined.
func (h *Hub) Publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	var errs []error
	for _, c := range clients {
		if err := c.write(payload); err != nil {
			log.Warn().Err(err).Str("topic", topic).Str("conn_id", c.info.ConnID).Msg("websocket write error")
			c.close()
			if h.unsubscribeAll(c) {
				h.publishLifecycle(ctx, "ws_error", c.info, err.Error())
			}
			errs = append(errs, fmt.Errorf("conn %s: %w", c.info.ConnID, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) publishLifecycle(ctx context.Context, name string, info ConnInfo, reason string) {
	observability.IncWSEvent(wsKind, name)
	if h.events == nil {
		return
	}
	var duration int64
	if name != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	env := observability.NewEnvelope(ctx, "ws_events", name, observability.WSEventPayload{
		RoomID:     info.RoomID,
		Event:      name,
		ConnID:     info.ConnID,
		DurationMS: duration,
		Reason:     reason,
		UserID:     info.UserID,
		DeviceID:   info.DeviceID,
		IP:         info.IP,
	})
	if env.RequestID == "" {
		env.RequestID = info.RequestID
	}
	if env.TraceID == "" {
		env.TraceID = info.TraceID
	}
	if err := h.events.Publish(ctx, wsRoutingKey, env); err != nil {
		log.Warn().Err(err).Str("event", name).Msg("ws lifecycle publish failed")
	}
}
