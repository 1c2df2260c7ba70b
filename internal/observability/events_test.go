package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	keys      []string
	envelopes []EventEnvelope
	headers   []map[string]string
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, event any, headers map[string]string) error {
	p.keys = append(p.keys, routingKey)
	p.envelopes = append(p.envelopes, event.(EventEnvelope))
	p.headers = append(p.headers, headers)
	return p.err
}

func TestPublishDomainEventCarriesRequestID(t *testing.T) {
	pub := &recordingPublisher{}
	SetPublisher(pub)
	t.Cleanup(func() { SetPublisher(nil) })

	ctx := WithRequestID(context.Background(), "req-1")
	PublishDomainEvent(ctx, RoutingViewerCount, "viewer_count", map[string]any{"count": 3})

	require.Len(t, pub.keys, 1)
	assert.Equal(t, RoutingViewerCount, pub.keys[0])
	assert.Equal(t, "livestream", pub.envelopes[0].EventType)
	assert.Equal(t, "viewer_count", pub.envelopes[0].EventName)
	assert.False(t, pub.envelopes[0].OccurredAt.IsZero())
	assert.Equal(t, "req-1", pub.headers[0]["x-request-id"])
	_, hasTrace := pub.headers[0]["trace_id"]
	assert.False(t, hasTrace)
}

func TestPublishEventWithoutPublisher(t *testing.T) {
	SetPublisher(nil)
	require.NoError(t, PublishEvent(context.Background(), RoutingAudit, EventEnvelope{}, nil))
}

func TestPublishEventReturnsError(t *testing.T) {
	pub := &recordingPublisher{err: assert.AnError}
	SetPublisher(pub)
	t.Cleanup(func() { SetPublisher(nil) })

	err := PublishEvent(context.Background(), RoutingWSEvents, EventEnvelope{EventName: "ws_connect"}, nil)
	require.ErrorIs(t, err, assert.AnError)
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", IPFromRequest(req))

	req.Header.Set("X-Real-Ip", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", IPFromRequest(req))
}

func TestDeviceIDFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?device_id=tv-1", nil)
	assert.Equal(t, "tv-1", DeviceIDFromRequest(req))

	req.Header.Set("X-Device-Id", "phone-9")
	assert.Equal(t, "phone-9", DeviceIDFromRequest(req))
}

func TestSplitFullMethod(t *testing.T) {
	svc, method := splitFullMethod("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", svc)
	assert.Equal(t, "Check", method)

	svc, method = splitFullMethod("bogus")
	assert.Equal(t, "unknown", svc)
	assert.Equal(t, "unknown", method)
}
