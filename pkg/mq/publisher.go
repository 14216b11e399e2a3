package mq

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	contracts "taskpulse/contracts/mq"
	"taskpulse/pkg/metrics"
)

// ErrBusUnavailable is returned when a publish could not reach the broker
// after the bounded retry budget is spent.
var ErrBusUnavailable = errors.New("event bus unavailable")

const (
	publishMaxAttempts = 3
	publishBackoff     = 500 * time.Millisecond
)

type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *zap.Logger
}

func NewPublisher(url string, logger *zap.Logger) (*Publisher, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Confirm mode: a publish only counts once the broker acks it, so
	// callers can safely advance state (outbox sent, reminder published)
	// on a nil return.
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable confirm mode: %w", err)
	}

	return &Publisher{
		conn:    conn,
		channel: ch,
		logger:  logger,
	}, nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// IsConnected checks if the publisher connection is still alive.
func (p *Publisher) IsConnected() bool {
	if p.conn == nil || p.channel == nil {
		return false
	}
	if p.conn.IsClosed() {
		return false
	}
	return true
}

// Publish publishes a payload to the exchange with the given routing key.
// A single attempt, no retry.
func (p *Publisher) Publish(routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.publishBody(routingKey, body)
}

// PublishEnvelope publishes an event envelope with bounded retry and
// linear backoff. The routing key is the event type. Returns
// ErrBusUnavailable once the retry budget is exhausted; the caller decides
// whether that is fatal (it never is for an already-committed mutation).
func (p *Publisher) PublishEnvelope(env contracts.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= publishMaxAttempts; attempt++ {
		lastErr = p.publishBody(env.EventType, body)
		if lastErr == nil {
			metrics.IncrementEventsPublished(env.EventType, "success")
			return nil
		}

		p.logger.Warn("Publish attempt failed",
			zap.String("event_id", env.EventID),
			zap.String("routing_key", env.EventType),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		if attempt < publishMaxAttempts {
			time.Sleep(time.Duration(attempt) * publishBackoff)
		}
	}

	metrics.IncrementEventsPublished(env.EventType, "failed")
	return fmt.Errorf("%w: %v", ErrBusUnavailable, lastErr)
}

func (p *Publisher) publishBody(routingKey string, body []byte) error {
	conf, err := p.channel.PublishWithDeferredConfirm(
		ExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if err != nil {
		return err
	}
	if !conf.Wait() {
		return fmt.Errorf("broker nacked publish on %s", routingKey)
	}
	return nil
}
