package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/cinebook/internal/domain"
)

type mockCache struct{ mock.Mock }

func (m *mockCache) InvalidateShow(ctx context.Context, showID int64) error {
	return m.Called(ctx, showID).Error(0)
}

type mockPubSub struct{ mock.Mock }

func (m *mockPubSub) PublishShowChanged(ctx context.Context, showID int64) error {
	return m.Called(ctx, showID).Error(0)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) PublishJSON(ctx context.Context, routingKey string, v any) error {
	return m.Called(ctx, routingKey, v).Error(0)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewBookingEvent(t *testing.T) {
	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	b := domain.Booking{
		ID: 7, Reference: "CB-ABC", ShowID: 3, Status: domain.BookingCancelled, TotalAmount: 2500,
		Customer: domain.Customer{Email: "a@b.c"},
	}
	seats := []domain.BookingSeat{{Row: "A", Number: 1}, {Row: "A", Number: 2}}

	ev := NewBookingEvent(b, seats, "customer", at)

	assert.Equal(t, EventBookingCancelled, ev.Type)
	assert.Equal(t, []string{"A1", "A2"}, ev.Seats)
	assert.Equal(t, int64(2500), ev.TotalAmountCents)
	assert.Equal(t, "customer", ev.Actor)
	assert.Equal(t, at, ev.OccurredAt)
}

func TestDispatcher_BookingChangedFansOut(t *testing.T) {
	ctx := context.Background()
	cache, pubsub, events := &mockCache{}, &mockPubSub{}, &mockEvents{}
	ev := BookingEvent{Type: EventBookingConfirmed, ShowID: 9, Reference: "CB-1"}

	published := make(chan struct{})
	cache.On("InvalidateShow", ctx, int64(9)).Return(errors.New("redis down"))
	pubsub.On("PublishShowChanged", ctx, int64(9)).Return(nil)
	events.On("PublishJSON", mock.Anything, EventBookingConfirmed, ev).
		Run(func(mock.Arguments) { close(published) }).
		Return(nil)

	d := NewDispatcher(discard(), WithCache(cache), WithPubSub(pubsub), WithEvents(events))
	d.BookingChanged(ctx, ev)

	cache.AssertExpectations(t)
	pubsub.AssertExpectations(t)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Run(runCtx) }()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("event not published")
	}
	cancel()
	require.NoError(t, <-done)
	events.AssertExpectations(t)
}

// stuckEvents blocks every publish until release is closed or the context ends.
type stuckEvents struct {
	release chan struct{}
	calls   chan string
}

func (s *stuckEvents) PublishJSON(ctx context.Context, routingKey string, _ any) error {
	s.calls <- routingKey
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestDispatcher_SlowBrokerDoesNotBlockCaller(t *testing.T) {
	events := &stuckEvents{release: make(chan struct{}), calls: make(chan string, 10)}
	d := NewDispatcher(discard(), WithEvents(events), WithPublishTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	start := time.Now()
	for range 3 {
		d.BookingChanged(context.Background(), BookingEvent{Type: EventBookingConfirmed, ShowID: 1})
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case <-events.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher never called")
	}

	close(events.release)
	for range 2 {
		select {
		case <-events.calls:
		case <-time.After(2 * time.Second):
			t.Fatal("queued event not published")
		}
	}

	cancel()
	require.NoError(t, <-done)
}

func TestDispatcher_DropsWhenQueueIsFull(t *testing.T) {
	events := &mockEvents{}
	d := NewDispatcher(discard(), WithEvents(events), WithEventBuffer(1))

	assert.NotPanics(t, func() {
		d.BookingChanged(context.Background(), BookingEvent{Type: EventBookingConfirmed, Reference: "CB-1"})
		d.BookingChanged(context.Background(), BookingEvent{Type: EventBookingConfirmed, Reference: "CB-2"})
	})
	assert.Len(t, d.pending, 1)
	events.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_WithoutSinks(t *testing.T) {
	d := NewDispatcher(discard())
	assert.NotPanics(t, func() {
		d.ShowChanged(context.Background(), 1)
		d.BookingChanged(context.Background(), BookingEvent{ShowID: 1})
	})

	require.NoError(t, d.Run(context.Background()))

	var n Notifier = Nop{}
	assert.NotPanics(t, func() { n.ShowChanged(context.Background(), 1) })
}
