package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"room-chat-service/internal/observability"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AuditEmitter records user-visible state changes (room lifecycle, deletions)
// on the broker for the audit pipeline.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *int64       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string `json:"level"`
	Text   string `json:"text"`
	RoomID int64  `json:"room_id,omitempty"`
}

func (e AuditEnvelope) Correlation() (requestID, traceID string) {
	return e.RequestID, e.TraceID
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one audit record. Failures are logged, never returned.
func (e *AuditEmitter) Emit(ctx context.Context, level, text string, roomID int64, userID *int64) {
	if e == nil || e.publisher == nil {
		return
	}

	requestID := observability.RequestIDFromContext(ctx)
	log.Debug().Str("level", level).Str("request_id", requestID).Int64("room_id", roomID).Str("text", text).Msg("audit emit")
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		TraceID:       observability.TraceIDFromContext(ctx),
		UserID:        userID,
		Payload: AuditPayload{
			Level:  level,
			Text:   text,
			RoomID: roomID,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Warn().Err(err).Str("routing_key", e.routingKey).Msg("audit publish failed")
	}
}
