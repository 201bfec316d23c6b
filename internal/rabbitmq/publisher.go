package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"friendchat-service/internal/logging"
	"friendchat-service/internal/observability"
	"friendchat-service/internal/telemetry"
)

// Publisher publishes domain events.
type Publisher = telemetry.Publisher

// NewPublisher connects to the broker and declares the events exchange. Any failure, including an
// empty url, yields a noop publisher.
func NewPublisher(amqpURL, exchange string) Publisher {
	l := logging.L()
	if amqpURL == "" {
		l.Info().Msg("rabbitmq disabled, using noop: empty amqp url")
		return noopPublisher{reason: "empty amqp url"}
	}

	p, err := dial(amqpURL, exchange)
	if err != nil {
		l.Warn().Err(err).Str("exchange", exchange).Msg("rabbitmq disabled, using noop")
		return noopPublisher{reason: err.Error()}
	}
	l.Info().Str("exchange", exchange).Msg("rabbitmq connected")
	return p
}

func dial(amqpURL, exchange string) (*amqpPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// durable topic exchange; consumers bind on event type
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         routingKey,
		Timestamp:    time.Now(),
		Headers:      Headers(ctx, event),
		Body:         body,
	})
	if err != nil {
		observability.IncAMQPPublishError()
		l := logging.Ctx(ctx)
		l.Error().Err(err).Str("routing_key", routingKey).Msg("rabbitmq publish failed")
	}
	return err
}

func (p *amqpPublisher) Close() error {
	chErr := p.ch.Close()
	if err := p.conn.Close(); err != nil {
		return err
	}
	return chErr
}

// Headers carries the request id and trace id of the publishing request.
func Headers(ctx context.Context, event any) amqp.Table {
	headers := amqp.Table{}
	requestID := logging.RequestID(ctx)
	if envelope, ok := envelopeOf(event); ok && envelope.RequestID != "" {
		requestID = envelope.RequestID
	}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID := observability.TraceID(ctx); traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

func envelopeOf(event any) (telemetry.Envelope, bool) {
	switch envelope := event.(type) {
	case telemetry.Envelope:
		return envelope, true
	case *telemetry.Envelope:
		return *envelope, true
	default:
		return telemetry.Envelope{}, false
	}
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	l := logging.Ctx(ctx)
	evt := l.Debug().Str("routing_key", routingKey)
	if envelope, ok := envelopeOf(event); ok {
		evt = evt.Str("event_type", envelope.EventType).Str("service", envelope.Service).Str(logging.FieldRequestID, envelope.RequestID)
	}
	evt.Msg("rabbitmq noop publish")
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason explains why a noop publisher was chosen.
func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
