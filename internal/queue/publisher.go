// Package queue publishes and consumes JSON messages over RabbitMQ. Every routing
// key maps to a durable queue of the same name on the default exchange.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultDialTimeout bounds the TCP connect and the AMQP handshake.
const DefaultDialTimeout = 5 * time.Second

// dial opens a connection whose connect and handshake give up after timeout.
func dial(url string, timeout time.Duration) (*amqp.Connection, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	return amqp.DialConfig(url, amqp.Config{
		Dial:      amqp.DefaultDial(timeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
}

// Publisher keeps one connection and channel open and re-dials after a failure.
type Publisher struct {
	url    string
	logger *slog.Logger
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

func NewPublisher(url string, logger *slog.Logger) *Publisher {
	return &Publisher{
		url:         url,
		logger:      logger,
		DialTimeout: DefaultDialTimeout,
		declared:    map[string]bool{},
	}
}

// PublishJSON marshals v and publishes it as a persistent message to the queue named routingKey.
func (p *Publisher) PublishJSON(ctx context.Context, routingKey string, v any) error {
	const op = "queue.Publisher.PublishJSON"

	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if !p.declared[routingKey] {
		if _, err := ch.QueueDeclare(routingKey, true, false, false, false, nil); err != nil {
			p.reset()
			return fmt.Errorf("%s: declare %s:%w", op, routingKey, err)
		}
		p.declared[routingKey] = true
	}

	err = ch.PublishWithContext(ctx, "", routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Close releases the connection. The publisher re-dials if used again.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reset()
	return nil
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	p.reset()

	conn, err := dial(p.url, p.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}

	p.conn, p.ch = conn, ch
	p.logger.Debug("rabbitmq publisher connected")

	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
	clear(p.declared)
}
