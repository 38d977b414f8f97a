// Package notify fans committed state changes out to the cache, the redis
// "show changed" channel and the booking event queue. Delivery is best effort:
// failures are logged and never reach the caller. Booking events are queued in
// memory and published by Run, so a slow broker never holds up a request.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirinyoku/cinebook/internal/domain"
)

const (
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCompleted = "booking.completed"
)

// BookingEvents lists every routing key a booking event may carry.
var BookingEvents = []string{EventBookingConfirmed, EventBookingCancelled, EventBookingCompleted}

// BookingEvent is the message published for every booking state change.
type BookingEvent struct {
	Type             string               `json:"type"`
	BookingID        int64                `json:"booking_id"`
	Reference        string               `json:"reference"`
	ShowID           int64                `json:"show_id"`
	Status           domain.BookingStatus `json:"status"`
	CustomerEmail    string               `json:"customer_email"`
	Seats            []string             `json:"seats"`
	TotalAmountCents int64                `json:"total_amount_cents"`
	Actor            string               `json:"actor,omitempty"`
	OccurredAt       time.Time            `json:"occurred_at"`
}

// NewBookingEvent builds the event for b in its current status.
func NewBookingEvent(b domain.Booking, seats []domain.BookingSeat, actor string, at time.Time) BookingEvent {
	labels := make([]string, 0, len(seats))
	for _, s := range seats {
		labels = append(labels, domain.Seat{Row: s.Row, Number: s.Number}.Label())
	}

	typ := EventBookingConfirmed
	switch b.Status {
	case domain.BookingCancelled:
		typ = EventBookingCancelled
	case domain.BookingCompleted:
		typ = EventBookingCompleted
	}

	return BookingEvent{
		Type:             typ,
		BookingID:        b.ID,
		Reference:        b.Reference,
		ShowID:           b.ShowID,
		Status:           b.Status,
		CustomerEmail:    b.Customer.Email,
		Seats:            labels,
		TotalAmountCents: int64(b.TotalAmount),
		Actor:            actor,
		OccurredAt:       at.UTC(),
	}
}

// Notifier is told about changes after they are committed.
type Notifier interface {
	ShowChanged(ctx context.Context, showID int64)
	BookingChanged(ctx context.Context, ev BookingEvent)
}

type Nop struct{}

func (Nop) ShowChanged(context.Context, int64)           {}
func (Nop) BookingChanged(context.Context, BookingEvent) {}

type ShowInvalidator interface {
	InvalidateShow(ctx context.Context, showID int64) error
}

type ShowPublisher interface {
	PublishShowChanged(ctx context.Context, showID int64) error
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

const (
	DefaultEventBuffer    = 1024
	DefaultPublishTimeout = 5 * time.Second
)

type Dispatcher struct {
	logger *slog.Logger
	cache  ShowInvalidator
	pubsub ShowPublisher
	events EventPublisher

	buffer         int
	publishTimeout time.Duration
	pending        chan BookingEvent
}

type Option func(*Dispatcher)

func WithCache(c ShowInvalidator) Option { return func(d *Dispatcher) { d.cache = c } }
func WithPubSub(p ShowPublisher) Option  { return func(d *Dispatcher) { d.pubsub = p } }
func WithEvents(e EventPublisher) Option { return func(d *Dispatcher) { d.events = e } }

// WithEventBuffer sets how many booking events may wait for Run. Events beyond it are dropped.
func WithEventBuffer(n int) Option { return func(d *Dispatcher) { d.buffer = n } }

// WithPublishTimeout bounds a single event publish.
func WithPublishTimeout(t time.Duration) Option { return func(d *Dispatcher) { d.publishTimeout = t } }

func NewDispatcher(logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:         logger,
		buffer:         DefaultEventBuffer,
		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.events != nil {
		d.pending = make(chan BookingEvent, max(d.buffer, 1))
	}
	return d
}

func (d *Dispatcher) ShowChanged(ctx context.Context, showID int64) {
	if d.cache != nil {
		if err := d.cache.InvalidateShow(ctx, showID); err != nil {
			d.logger.Warn("invalidate show cache failed", "show_id", showID, "error", err)
		}
	}
	if d.pubsub != nil {
		if err := d.pubsub.PublishShowChanged(ctx, showID); err != nil {
			d.logger.Warn("publish show changed failed", "show_id", showID, "error", err)
		}
	}
}

func (d *Dispatcher) BookingChanged(ctx context.Context, ev BookingEvent) {
	d.ShowChanged(ctx, ev.ShowID)

	if d.pending == nil {
		return
	}

	select {
	case d.pending <- ev:
	default:
		d.logger.Error("booking event dropped, queue full",
			"type", ev.Type, "reference", ev.Reference)
	}
}

// Run publishes queued booking events until ctx is done, then spends at most one
// publish timeout on what is still queued. It returns immediately when no event
// publisher is set.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.pending == nil {
		return nil
	}

	for {
		select {
		case ev := <-d.pending:
			d.publish(context.WithoutCancel(ctx), ev)
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.publishTimeout)
			d.flush(fctx)
			cancel()
			return nil
		}
	}
}

func (d *Dispatcher) flush(ctx context.Context) {
	for ctx.Err() == nil {
		select {
		case ev := <-d.pending:
			d.publish(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, ev BookingEvent) {
	ctx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	if err := d.events.PublishJSON(ctx, ev.Type, ev); err != nil {
		d.logger.Warn("publish booking event failed",
			"type", ev.Type, "reference", ev.Reference, "error", err)
	}
}
