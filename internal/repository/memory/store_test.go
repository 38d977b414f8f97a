package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/repository"
)

type fixture struct {
	store *Store
	room  domain.Showroom
	movie domain.Movie
	seats []domain.Seat
	show  domain.Show
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := New()
	f := &fixture{store: s}

	f.movie = domain.Movie{Title: "Arrival", DurationMinutes: 116}
	require.NoError(t, s.Catalog().CreateMovie(ctx, &f.movie))

	f.room = domain.Showroom{Name: "Hall 1"}
	require.NoError(t, s.Catalog().CreateShowroom(ctx, &f.room))

	st := domain.SeatType{Name: "normal"}
	require.NoError(t, s.Catalog().CreateSeatType(ctx, &st))

	for i := 1; i <= 3; i++ {
		seat := domain.Seat{ShowroomID: f.room.ID, SeatTypeID: st.ID, Row: "A", Number: i, Active: true}
		require.NoError(t, s.Catalog().CreateSeat(ctx, &seat))
		f.seats = append(f.seats, seat)
	}

	start := time.Now().Add(24 * time.Hour)
	f.show = domain.Show{
		MovieID: f.movie.ID, ShowroomID: f.room.ID,
		Start: start, End: start.Add(2 * time.Hour), BasePrice: 1000, Active: true,
	}
	require.NoError(t, s.Shows().CreateShow(ctx, &f.show))

	return f
}

func (f *fixture) book(ctx context.Context, ref string, seatIDs ...int64) ([]int64, error) {
	var taken []int64
	err := f.store.RunTx(ctx, nil, func(ctx context.Context, tx repository.Repos) error {
		b := domain.Booking{ShowID: f.show.ID, Reference: ref, Status: domain.BookingConfirmed}
		if err := tx.Bookings().InsertBooking(ctx, &b); err != nil {
			return err
		}
		seats := make([]domain.BookingSeat, 0, len(seatIDs))
		for _, id := range seatIDs {
			seats = append(seats, domain.BookingSeat{BookingID: b.ID, SeatID: id, ShowID: f.show.ID, Price: 1000})
		}
		var err error
		taken, err = tx.Bookings().AcquireSeats(ctx, seats)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return errors.New("seats taken")
		}
		return nil
	})
	return taken, err
}

func TestShowroomTotalSeatsTracksSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.store.Catalog().GetShowroom(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, room.TotalSeats)

	dup := domain.Seat{ShowroomID: f.room.ID, SeatTypeID: f.seats[0].SeatTypeID, Row: "A", Number: 1}
	assert.ErrorIs(t, f.store.Catalog().CreateSeat(ctx, &dup), repository.ErrConflict)

	require.NoError(t, f.store.Catalog().DeleteSeat(ctx, f.seats[2].ID))
	room, err = f.store.Catalog().GetShowroom(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, room.TotalSeats)
}

func TestCreateShowRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	clash := domain.Show{
		MovieID: f.movie.ID, ShowroomID: f.room.ID,
		Start: f.show.Start.Add(time.Hour), End: f.show.End.Add(time.Hour), Active: true,
	}
	assert.ErrorIs(t, f.store.Shows().CreateShow(ctx, &clash), repository.ErrOverlap)

	// Touching windows do not overlap.
	next := domain.Show{
		MovieID: f.movie.ID, ShowroomID: f.room.ID,
		Start: f.show.End, End: f.show.End.Add(2 * time.Hour), Active: true,
	}
	assert.NoError(t, f.store.Shows().CreateShow(ctx, &next))

	// An inactive show frees its window.
	require.NoError(t, f.store.Shows().SetShowActive(ctx, f.show.ID, false))
	assert.NoError(t, f.store.Shows().CreateShow(ctx, &clash))
	assert.ErrorIs(t, f.store.Shows().SetShowActive(ctx, f.show.ID, true), repository.ErrOverlap)
}

func TestRunTxRollsBackOnError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.book(ctx, "CB-1", f.seats[0].ID)
	require.NoError(t, err)

	taken, err := f.book(ctx, "CB-2", f.seats[1].ID, f.seats[0].ID)
	require.Error(t, err)
	assert.Equal(t, []int64{f.seats[0].ID}, taken)

	_, err = f.store.Bookings().GetBookingByRef(ctx, "CB-2")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	n, err := f.store.Bookings().CountAvailable(ctx, f.show.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAcquireSeatsConcurrentlyHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const racers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range racers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.book(ctx, "CB-R"+string(rune('A'+i)), f.seats[1].ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestCancelReleasesSeatsAndKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.book(ctx, "CB-1", f.seats[0].ID, f.seats[1].ID)
	require.NoError(t, err)

	b, err := f.store.Bookings().GetBookingByRef(ctx, "CB-1")
	require.NoError(t, err)

	now := time.Now()
	b.Status = domain.BookingCancelled
	b.CancelledBy = "customer"
	b.CancelledAt = &now
	require.NoError(t, f.store.Bookings().TransitionBooking(ctx, b, domain.BookingConfirmed))
	assert.ErrorIs(t, f.store.Bookings().TransitionBooking(ctx, b, domain.BookingConfirmed), repository.ErrConflict)

	seats, err := f.store.Bookings().ListAvailableSeats(ctx, f.show.ID)
	require.NoError(t, err)
	assert.Len(t, seats, 3)

	history, err := f.store.Bookings().ListBookingSeats(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Released)
	assert.Equal(t, "A", history[0].Row)

	// Released seats can be sold again but the seat row stays referenced.
	_, err = f.book(ctx, "CB-2", f.seats[0].ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.store.Catalog().DeleteSeat(ctx, f.seats[1].ID), repository.ErrInUse)
}

func TestListAvailableSeatsUnknownShow(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Bookings().ListAvailableSeats(context.Background(), 9999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListEndedConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.book(ctx, "CB-1", f.seats[0].ID)
	require.NoError(t, err)

	got, err := f.store.Bookings().ListEndedConfirmed(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = f.store.Bookings().ListEndedConfirmed(ctx, f.show.End.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "CB-1", got[0].Reference)
}
