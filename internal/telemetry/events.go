package telemetry

import (
	"context"
	"time"

	"friendchat-service/internal/logging"
)

// Publisher delivers an event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// EventEmitter wraps domain events in an Envelope and hands them to a Publisher.
type EventEmitter struct {
	publisher   Publisher
	service     string
	environment string
	now         func() time.Time
}

const SchemaVersion = 1

type Envelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	RequestID     string `json:"request_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	Payload       any    `json:"payload"`
}

func NewEventEmitter(publisher Publisher, service, environment string) *EventEmitter {
	return &EventEmitter{
		publisher:   publisher,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes eventType with payload. The event type doubles as the routing key. Publish
// failures are logged and dropped.
func (e *EventEmitter) Emit(ctx context.Context, eventType, userID string, payload any) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := Envelope{
		SchemaVersion: SchemaVersion,
		EventType:     eventType,
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     logging.RequestID(ctx),
		UserID:        userID,
		Payload:       payload,
	}

	l := logging.Ctx(ctx)
	if err := e.publisher.Publish(ctx, eventType, envelope); err != nil {
		l.Warn().Err(err).Str("event_type", eventType).Msg("event publish failed")
		return
	}
	l.Debug().Str("event_type", eventType).Msg("event published")
}
