package telemetry

import (
	"context"
	"time"

	"livestream-chat/internal/logging"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// AuditEmitter records moderation actions on the audit routing key.
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
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level        string `json:"level"`
	Text         string `json:"text"`
	Action       string `json:"action,omitempty"`
	LivestreamID string `json:"livestream_id,omitempty"`
	TargetID     string `json:"target_id,omitempty"`
}

// AuditEntry describes one moderation action.
type AuditEntry struct {
	Level        string
	Text         string
	Action       string
	LivestreamID string
	TargetID     string
	RequestID    string
	UserID       string
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes a free-form audit line.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	entry := AuditEntry{Level: level, Text: text, RequestID: requestID}
	if userID != nil {
		entry.UserID = *userID
	}
	e.Record(ctx, entry)
}

// Record publishes a structured moderation entry. Publish failures are logged only.
func (e *AuditEmitter) Record(ctx context.Context, entry AuditEntry) {
	if e == nil || e.publisher == nil {
		return
	}
	if entry.Level == "" {
		entry.Level = "INFO"
	}

	var userID *string
	if entry.UserID != "" {
		userID = &entry.UserID
	}
	log := logging.Ctx(ctx)
	log.Info().
		Str("level_tag", entry.Level).
		Str("action", entry.Action).
		Str(logging.FieldRequestID, entry.RequestID).
		Str(logging.FieldUserID, entry.UserID).
		Str(logging.FieldLivestreamID, entry.LivestreamID).
		Msg(entry.Text)

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     entry.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:        entry.Level,
			Text:         entry.Text,
			Action:       entry.Action,
			LivestreamID: entry.LivestreamID,
			TargetID:     entry.TargetID,
		},
	}

	headers := map[string]string{}
	if entry.RequestID != "" {
		headers["x-request-id"] = entry.RequestID
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		log.Warn().Err(err).Msg("audit publish failed")
	}
}
