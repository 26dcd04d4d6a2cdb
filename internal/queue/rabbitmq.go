package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// RabbitQueue publishes to a durable queue through the default exchange.
type RabbitQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	log     zerolog.Logger
}

// NewRabbitQueue dials the broker and declares the queue.
func NewRabbitQueue(url, queue string, log zerolog.Logger) (*RabbitQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	log.Info().Str("queue", queue).Msg("rabbitmq initialized")
	return &RabbitQueue{conn: conn, channel: ch, queue: queue, log: log}, nil
}

// Publish sends a persistent message.
func (q *RabbitQueue) Publish(ctx context.Context, msg Message) error {
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	return q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         msg.Type,
		Timestamp:    time.Now(),
		Body:         raw,
	})
}

// Consume acks each delivery once a reader has taken it. Undecodable
// deliveries are dropped without requeue.
func (q *RabbitQueue) Consume(ctx context.Context) (<-chan Message, error) {
	deliveries, err := q.channel.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", q.queue, err)
	}
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				msg, err := decode(d.Body)
				if err != nil {
					q.log.Warn().Err(err).Msg("dropping malformed message")
					_ = d.Nack(false, false)
					continue
				}
				select {
				case out <- msg:
					_ = d.Ack(false)
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close releases the channel and connection.
func (q *RabbitQueue) Close() error {
	if q.channel != nil {
		_ = q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
