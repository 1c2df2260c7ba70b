package observability

import (
	"context"
	"time"
)

// Routing keys on the livestream topic exchange.
const (
	RoutingViewerCount    = "livestream.viewer_count"
	RoutingCommentCreated = "livestream.comment_created"
	RoutingCommentDeleted = "livestream.comment_deleted"
	RoutingUserBanned     = "livestream.user_banned"
	RoutingUserUnbanned   = "livestream.user_unbanned"
	RoutingWSEvents       = "ws_events.livestream"
	RoutingAudit          = "audit_log"
)

// Publisher is satisfied by the rabbitmq publishers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

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

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent sends an envelope best-effort. Failures are counted, never fatal.
func PublishEvent(ctx context.Context, routingKey string, envelope EventEnvelope, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now().UTC()
	}

	err := defaultPublisher.Publish(ctx, routingKey, envelope, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

// PublishDomainEvent wraps payload in a "livestream" envelope and publishes it best-effort.
func PublishDomainEvent(ctx context.Context, routingKey, name string, payload interface{}) {
	_ = PublishEvent(ctx, routingKey, EventEnvelope{
		EventType: "livestream",
		EventName: name,
		Payload:   payload,
	}, BuildHeaders(RequestIDFromContext(ctx), TraceIDFromContext(ctx)))
}
