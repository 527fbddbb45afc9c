package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"room-chat-service/internal/mocks"
	"room-chat-service/internal/observability"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	pub := &mocks.PublisherMock{}
	emitter := NewAuditEmitter(pub, "audit.rooms", "room-chat-service", "test")
	ctx := observability.WithRequestID(context.Background(), "req-7")
	userID := int64(3)

	pub.On("Publish", ctx, "audit.rooms", mock.MatchedBy(func(env AuditEnvelope) bool {
		_, err := time.Parse(time.RFC3339Nano, env.OccurredAt)
		return err == nil && env.SchemaVersion == 1 && env.EventType == "audit_log" &&
			env.Service == "room-chat-service" && env.Environment == "test" &&
			env.RequestID == "req-7" && *env.UserID == 3 &&
			env.Payload == AuditPayload{Level: "INFO", Text: "room created", RoomID: 12}
	})).Return(nil).Once()

	emitter.Emit(ctx, "INFO", "room created", 12, &userID)
	pub.AssertExpectations(t)
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	pub := &mocks.PublisherMock{}
	pub.On("Publish", mock.Anything, "audit", mock.Anything).Return(assert.AnError).Once()

	NewAuditEmitter(pub, "audit", "svc", "dev").Emit(context.Background(), "WARN", "x", 0, nil)
	pub.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() { emitter.Emit(context.Background(), "INFO", "x", 1, nil) })
	assert.NotPanics(t, func() { NewAuditEmitter(nil, "a", "b", "c").Emit(context.Background(), "INFO", "x", 1, nil) })
}

func TestAuditCorrelation(t *testing.T) {
	requestID, traceID := AuditEnvelope{RequestID: "r", TraceID: "t"}.Correlation()
	assert.Equal(t, "r", requestID)
	assert.Equal(t, "t", traceID)
}
