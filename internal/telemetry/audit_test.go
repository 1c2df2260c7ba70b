package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"livestream-chat/internal/mocks"
	"livestream-chat/internal/telemetry"
)

func TestRecordPublishesEnvelope(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(pub, "audit_log", "livestream-chat", "test")

	var got telemetry.AuditEnvelope
	pub.On("Publish", mock.Anything, "audit_log", mock.AnythingOfType("telemetry.AuditEnvelope"), map[string]string{"x-request-id": "req-1"}).
		Run(func(args mock.Arguments) { got = args.Get(2).(telemetry.AuditEnvelope) }).
		Return(nil).Once()

	emitter.Record(context.Background(), telemetry.AuditEntry{
		Text:         "user banned",
		Action:       "ban_user",
		LivestreamID: "ls-1",
		TargetID:     "u-2",
		RequestID:    "req-1",
		UserID:       "mod-1",
	})

	pub.AssertExpectations(t)
	assert.Equal(t, "audit_log", got.EventType)
	assert.Equal(t, "INFO", got.Payload.Level)
	assert.Equal(t, "ban_user", got.Payload.Action)
	require.NotNil(t, got.UserID)
	assert.Equal(t, "mod-1", *got.UserID)
}

func TestEmitWithoutUser(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(pub, "audit_log", "livestream-chat", "test")

	pub.On("Publish", mock.Anything, "audit_log", mock.MatchedBy(func(e telemetry.AuditEnvelope) bool {
		return e.UserID == nil && e.Payload.Text == "audit test"
	}), map[string]string{}).Return(assert.AnError).Once()

	emitter.Emit(context.Background(), "INFO", "audit test", "", nil)
	pub.AssertExpectations(t)
}

func TestNilEmitterIsSafe(t *testing.T) {
	var emitter *telemetry.AuditEmitter
	emitter.Record(context.Background(), telemetry.AuditEntry{Text: "ignored"})
}
