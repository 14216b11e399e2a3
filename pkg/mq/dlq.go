package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"taskpulse/pkg/metrics"
)

const (
	DLQExchangeName = "events.dlq"
)

// DeclareDLQExchange declares the dead letter exchange.
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		DLQExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareDLQQueue declares a dead letter queue for a specific routing key.
func DeclareDLQQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	queueName := fmt.Sprintf("%s.dlq", routingKey)

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		routingKey,
		DLQExchangeName,
		false,
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return q, nil
}

// PublishToDLQ publishes a message to the dead letter queue for manual
// inspection. Used for events that exhausted their retry budget. The
// exchange and the per-routing-key queue are declared on demand so the
// message is captured even before any operator tooling binds to it.
func (p *Publisher) PublishToDLQ(routingKey string, payload []byte, originalError string) error {
	if err := DeclareDLQExchange(p.channel); err != nil {
		return err
	}
	if _, err := DeclareDLQQueue(p.channel, routingKey); err != nil {
		return err
	}

	headers := amqp091.Table{
		"x-original-error": originalError,
	}

	conf, err := p.channel.PublishWithDeferredConfirm(
		DLQExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp091.Persistent,
			Headers:      headers,
		},
	)
	if err != nil {
		return err
	}
	if !conf.Wait() {
		return fmt.Errorf("broker nacked dead-letter publish on %s", routingKey)
	}
	metrics.IncrementDeadLettered(routingKey)
	return nil
}
