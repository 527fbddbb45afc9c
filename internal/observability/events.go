package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// EventEnvelope wraps events published to the brokers.
type EventEnvelope struct {
	EventType  string    `json:"event_type"`
	EventName  string    `json:"event_name"`
	OccurredAt time.Time `json:"occurred_at"`
	RequestID  string    `json:"request_id,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	Payload    any       `json:"payload"`
}

// NewEnvelope wraps payload with the correlation ids carried by ctx.
func NewEnvelope(ctx context.Context, eventType, eventName string, payload any) EventEnvelope {
	return EventEnvelope{
		EventType:  eventType,
		EventName:  eventName,
		OccurredAt: time.Now().UTC(),
		RequestID:  RequestIDFromContext(ctx),
		TraceID:    TraceIDFromContext(ctx),
		Payload:    payload,
	}
}

// WSEventPayload describes one websocket session transition.
type WSEventPayload struct {
	RoomID     int64  `json:"room_id"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
	UserID     int64  `json:"user_id"`
	DeviceID   string `json:"device_id,omitempty"`
	IP         string `json:"ip,omitempty"`
}

// BuildHeaders returns broker headers carrying request correlation ids.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

type requestIDKey struct{}

// WithRequestID stores the request id on ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// TraceIDFromContext returns the active span's trace id, or "" outside a sampled trace.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Correlation exposes the ids brokers copy into message headers.
func (e EventEnvelope) Correlation() (requestID, traceID string) {
	return e.RequestID, e.TraceID
}
