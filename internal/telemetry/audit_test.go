package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roomchat-service/internal/mocks"
)

func TestAuditEmitterEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.roomchat", "roomchat-service", "test")

	var captured AuditEnvelope
	publisher.On("PublishJSON", mock.Anything, "audit.roomchat", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(AuditEnvelope)
		}).
		Return(nil).Once()

	userID := int64(7)
	emitter.Emit(context.Background(), "INFO", "room chat opened", "req-1", &userID)

	publisher.AssertExpectations(t)
	assert.Equal(t, 1, captured.SchemaVersion)
	assert.Equal(t, "audit_log", captured.EventType)
	assert.Equal(t, "roomchat-service", captured.Service)
	assert.Equal(t, "test", captured.Environment)
	assert.Equal(t, "req-1", captured.RequestID)
	require.NotNil(t, captured.UserID)
	assert.Equal(t, int64(7), *captured.UserID)
	assert.Equal(t, "INFO", captured.Payload.Level)
	assert.Equal(t, "room chat opened", captured.Payload.Text)
}

func TestAuditEmitterNilSafe(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), "INFO", "noop", "", nil)

	emitter = NewAuditEmitter(nil, "audit.roomchat", "roomchat-service", "test")
	emitter.Emit(context.Background(), "INFO", "noop", "", nil)
}
