package services

import (
	"context"
	"errors"
	"fmt"

	"room-chat-service/internal/observability"
)

// Broadcaster delivers real-time events to the subscribers of a topic address.
// Delivery is best effort; a returned error never undoes the mutation that produced the event.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, event any) error
}

// RoomTopic is the address carrying new and deleted messages of a room.
func RoomTopic(roomID int64) string {
	return fmt.Sprintf("/topic/chatroom/%d", roomID)
}

// ReadStatusTopic is the address carrying read-cursor changes of a room.
func ReadStatusTopic(roomID int64) string {
	return RoomTopic(roomID) + "/read-status"
}

// SessionRegistry ends the live sessions of a user who lost access to a room.
type SessionRegistry interface {
	DropUser(roomID, userID int64) int
}

type nopSessions struct{}

func (nopSessions) DropUser(int64, int64) int { return 0 }

// NopBroadcaster drops every event.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(context.Context, string, any) error { return nil }

type sink struct {
	name string
	b    Broadcaster
}

// Fanout publishes each event to every registered sink in registration order.
// A failing sink does not keep the event from the others.
type Fanout struct {
	sinks []sink
}

// NewFanout returns an empty Fanout.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers b under name, which labels failure metrics and errors.
func (f *Fanout) Add(name string, b Broadcaster) *Fanout {
	if b != nil {
		f.sinks = append(f.sinks, sink{name: name, b: b})
	}
	return f
}

// Sinks lists the registered sink names.
func (f *Fanout) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.name)
	}
	return names
}

func (f *Fanout) Publish(ctx context.Context, topic string, event any) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.b.Publish(ctx, topic, event); err != nil {
			observability.IncBroadcastFailure(s.name)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
