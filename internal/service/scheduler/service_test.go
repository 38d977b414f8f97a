package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/notify"
	"github.com/kirinyoku/cinebook/internal/repository/memory"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	shows  []int64
	events []notify.BookingEvent
}

func (r *recorder) ShowChanged(_ context.Context, id int64) { r.shows = append(r.shows, id) }
func (r *recorder) BookingChanged(_ context.Context, ev notify.BookingEvent) {
	r.events = append(r.events, ev)
}

type fixture struct {
	svc   *Service
	store *memory.Store
	rec   *recorder

	movie domain.Movie
	room  domain.Showroom
	std   domain.SeatType
	vip   domain.SeatType
	seats []domain.Seat
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{store: memory.New(), rec: &recorder{}}
	f.svc = New(f.store, f.rec, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Now: func() time.Time { return now },
	})

	cat := f.store.Catalog()
	f.movie = domain.Movie{Title: "Heat", DurationMinutes: 120}
	require.NoError(t, cat.CreateMovie(ctx, &f.movie))
	f.room = domain.Showroom{Name: "Hall 1"}
	require.NoError(t, cat.CreateShowroom(ctx, &f.room))
	f.std = domain.SeatType{Name: "standard"}
	require.NoError(t, cat.CreateSeatType(ctx, &f.std))
	f.vip = domain.SeatType{Name: "vip", PremiumBP: 5000}
	require.NoError(t, cat.CreateSeatType(ctx, &f.vip))

	for i, typ := range []int64{f.std.ID, f.vip.ID} {
		seat := domain.Seat{ShowroomID: f.room.ID, SeatTypeID: typ, Row: "A", Number: i + 1, Active: true}
		require.NoError(t, cat.CreateSeat(ctx, &seat))
		f.seats = append(f.seats, seat)
	}

	return f
}

func (f *fixture) schedule(t *testing.T, start time.Time) *ScheduledShow {
	t.Helper()
	out, err := f.svc.ScheduleShow(context.Background(), ScheduleRequest{
		MovieID: f.movie.ID, ShowroomID: f.room.ID,
		Start: start, End: start.Add(2 * time.Hour), BasePrice: 1000,
	})
	require.NoError(t, err)
	return out
}

func TestScheduleShowCreatesDefaultPrices(t *testing.T) {
	f := newFixture(t)

	out := f.schedule(t, now.Add(24*time.Hour))

	assert.True(t, out.Show.Active)
	sheet := domain.NewPriceSheet(out.Prices)
	assert.Equal(t, domain.PriceSheet{f.std.ID: 1000, f.vip.ID: 1500}, sheet)

	stored, err := f.svc.GetPriceSheet(context.Background(), out.Show.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, out.Prices, stored)
	assert.Equal(t, []int64{out.Show.ID}, f.rec.shows)
}

func TestScheduleShowSkipsTypesWithoutActiveSeats(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Catalog().SetSeatActive(context.Background(), f.seats[1].ID, false))

	out := f.schedule(t, now.Add(time.Hour))

	require.Len(t, out.Prices, 1)
	assert.Equal(t, f.std.ID, out.Prices[0].SeatTypeID)
}

func TestScheduleShowValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := now.Add(time.Hour)

	tests := []struct {
		name string
		req  ScheduleRequest
		want error
	}{
		{
			name: "end before start",
			req:  ScheduleRequest{MovieID: f.movie.ID, ShowroomID: f.room.ID, Start: start, End: start.Add(-time.Minute)},
			want: domain.ErrValidation,
		},
		{
			name: "window shorter than movie",
			req:  ScheduleRequest{MovieID: f.movie.ID, ShowroomID: f.room.ID, Start: start, End: start.Add(time.Hour)},
			want: domain.ErrValidation,
		},
		{
			name: "start in the past",
			req:  ScheduleRequest{MovieID: f.movie.ID, ShowroomID: f.room.ID, Start: now.Add(-time.Hour), End: now.Add(2 * time.Hour)},
			want: domain.ErrValidation,
		},
		{
			name: "negative price",
			req:  ScheduleRequest{MovieID: f.movie.ID, ShowroomID: f.room.ID, Start: start, End: start.Add(3 * time.Hour), BasePrice: -1},
			want: domain.ErrValidation,
		},
		{
			name: "unknown movie",
			req:  ScheduleRequest{MovieID: 999, ShowroomID: f.room.ID, Start: start, End: start.Add(3 * time.Hour)},
			want: domain.ErrNotFound,
		},
		{
			name: "unknown showroom",
			req:  ScheduleRequest{MovieID: f.movie.ID, ShowroomID: 999, Start: start, End: start.Add(3 * time.Hour)},
			want: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ScheduleShow(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestScheduleShowRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.schedule(t, now.Add(time.Hour))

	_, err := f.svc.ScheduleShow(ctx, ScheduleRequest{
		MovieID: f.movie.ID, ShowroomID: f.room.ID,
		Start: now.Add(2 * time.Hour), End: now.Add(4 * time.Hour),
	})
	require.ErrorIs(t, err, ErrOverlappingShow)

	var overlap *OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, []int64{first.Show.ID}, overlap.ShowIDs)

	f.schedule(t, now.Add(3*time.Hour))
}

func TestSetPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	show := f.schedule(t, now.Add(time.Hour)).Show

	entry, err := f.svc.SetPrice(ctx, show.ID, f.vip.ID, 2000)
	require.NoError(t, err)
	assert.True(t, entry.Override)

	sheet, err := f.svc.GetPriceSheet(ctx, show.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(2000), domain.NewPriceSheet(sheet)[f.vip.ID])

	other := domain.SeatType{Name: "recliner"}
	require.NoError(t, f.store.Catalog().CreateSeatType(ctx, &other))
	_, err = f.svc.SetPrice(ctx, show.ID, other.ID, 2000)
	assert.ErrorIs(t, err, ErrUnknownSeatType)

	_, err = f.svc.SetPrice(ctx, show.ID, 999, 2000)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.SetPrice(ctx, 999, f.vip.ID, 2000)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.SetPrice(ctx, show.ID, f.vip.ID, -5)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func (f *fixture) book(t *testing.T, showID int64, ref string, seat domain.Seat) {
	t.Helper()
	ctx := context.Background()
	b := &domain.Booking{ShowID: showID, Reference: ref, Status: domain.BookingConfirmed, TotalAmount: 1000}
	require.NoError(t, f.store.Bookings().InsertBooking(ctx, b))
	taken, err := f.store.Bookings().AcquireSeats(ctx, []domain.BookingSeat{
		{BookingID: b.ID, SeatID: seat.ID, ShowID: showID, Price: 1000, Row: seat.Row, Number: seat.Number},
	})
	require.NoError(t, err)
	require.Empty(t, taken)
}

func TestCancelShowWithoutBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	show := f.schedule(t, now.Add(time.Hour)).Show

	res, err := f.svc.CancelShow(ctx, show.ID, false)
	require.NoError(t, err)
	assert.False(t, res.Show.Active)
	assert.Empty(t, res.CancelledBookings)

	res, err = f.svc.CancelShow(ctx, show.ID, false)
	require.NoError(t, err, "cancelling twice is a no-op")
	assert.False(t, res.Show.Active)

	_, err = f.svc.CancelShow(ctx, 999, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.schedule(t, now.Add(time.Hour))
}

func TestCancelShowWithFutureBookingsNeedsForce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	show := f.schedule(t, now.Add(time.Hour)).Show
	f.book(t, show.ID, "CB-AAAAAAAAAA", f.seats[0])

	_, err := f.svc.CancelShow(ctx, show.ID, false)
	require.ErrorIs(t, err, ErrShowHasFutureBookings)

	got, err := f.svc.GetShow(ctx, show.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	res, err := f.svc.CancelShow(ctx, show.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"CB-AAAAAAAAAA"}, res.CancelledBookings)

	b, err := f.store.Bookings().GetBookingByRef(ctx, "CB-AAAAAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, b.Status)
	assert.Equal(t, ShowCancelledActor, b.CancelledBy)

	taken, err := f.store.Bookings().TakenSeats(ctx, show.ID, []int64{f.seats[0].ID})
	require.NoError(t, err)
	assert.Empty(t, taken)

	require.Len(t, f.rec.events, 1)
	assert.Equal(t, notify.EventBookingCancelled, f.rec.events[0].Type)
	assert.Equal(t, []string{"A1"}, f.rec.events[0].Seats)
}

func TestCancelStartedShowKeepsBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	show := domain.Show{MovieID: f.movie.ID, ShowroomID: f.room.ID, BasePrice: 1000,
		Start: now.Add(-time.Hour), End: now.Add(time.Hour), Active: true}
	require.NoError(t, f.store.Shows().CreateShow(ctx, &show))
	f.book(t, show.ID, "CB-BBBBBBBBBB", f.seats[0])

	res, err := f.svc.CancelShow(ctx, show.ID, false)
	require.NoError(t, err)
	assert.Empty(t, res.CancelledBookings)

	b, err := f.store.Bookings().GetBookingByRef(ctx, "CB-BBBBBBBBBB")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, b.Status)
}
