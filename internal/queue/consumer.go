package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one message body. A returned error rejects the message without requeueing it.
type Handler func(ctx context.Context, routingKey string, body []byte) error

type Consumer struct {
	url    string
	queues []string
	logger *slog.Logger
	// Prefetch bounds unacknowledged deliveries per channel.
	Prefetch int
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration
}

func NewConsumer(url string, queues []string, logger *slog.Logger) *Consumer {
	return &Consumer{url: url, queues: queues, logger: logger, Prefetch: 50, DialTimeout: DefaultDialTimeout}
}

// Run consumes until ctx is done, reconnecting with capped exponential backoff.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	backoff := time.Second

	for {
		conn, err := dial(c.url, c.DialTimeout)
		if err == nil {
			backoff = time.Second
			err = c.consume(ctx, conn, handle)
			_ = conn.Close()
		}

		if ctx.Err() != nil {
			return nil
		}

		c.logger.Warn("rabbitmq consumer disconnected", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection, handle Handler) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.Prefetch, 0, false); err != nil {
		c.logger.Warn("rabbitmq consumer: set QoS failed", "error", err)
	}

	merged := make(chan amqp.Delivery)
	for _, q := range c.queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.ConsumeWithContext(ctx, q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		go func() {
			for d := range msgs {
				select {
				case merged <- d:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("connection closed")
		case amqpErr := <-chClosed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("channel closed")
		case d := <-merged:
			if err := handle(ctx, d.RoutingKey, d.Body); err != nil {
				c.logger.Error("rabbitmq consumer: handle message failed", "queue", d.RoutingKey, "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
