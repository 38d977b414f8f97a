package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/repository"
)

type BookingRepo struct {
	h handle
}

func (r *BookingRepo) InsertBooking(_ context.Context, b *domain.Booking) error {
	return r.h.update(func(st *state) error {
		if _, ok := st.shows[b.ShowID]; !ok {
			return repository.ErrNotFound
		}
		if _, dup := st.refs[b.Reference]; dup {
			return repository.ErrConflict
		}
		now := r.h.now()
		b.ID = st.id()
		b.CreatedAt, b.UpdatedAt = now, now
		st.bookings[b.ID] = *b
		st.refs[b.Reference] = b.ID
		return nil
	})
}

func (r *BookingRepo) AcquireSeats(_ context.Context, seats []domain.BookingSeat) ([]int64, error) {
	var taken []int64
	err := r.h.update(func(st *state) error {
		for _, bs := range seats {
			if _, held := st.held[showSeat{showID: bs.ShowID, seatID: bs.SeatID}]; held {
				taken = append(taken, bs.SeatID)
			}
		}
		if len(taken) > 0 {
			return nil
		}
		for _, bs := range seats {
			bs.Released = false
			st.bookingSeats = append(st.bookingSeats, bs)
			st.held[showSeat{showID: bs.ShowID, seatID: bs.SeatID}] = len(st.bookingSeats) - 1
			st.referenced[bs.SeatID] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(taken)
	return taken, nil
}

func (r *BookingRepo) TakenSeats(_ context.Context, showID int64, seatIDs []int64) ([]int64, error) {
	var taken []int64
	err := r.h.view(func(st *state) error {
		for _, id := range seatIDs {
			if _, held := st.held[showSeat{showID: showID, seatID: id}]; held {
				taken = append(taken, id)
			}
		}
		return nil
	})
	slices.Sort(taken)
	return slices.Compact(taken), err
}

func (r *BookingRepo) GetBookingByRef(_ context.Context, ref string) (*domain.Booking, error) {
	var out domain.Booking
	err := r.h.view(func(st *state) error {
		id, ok := st.refs[ref]
		if !ok {
			return repository.ErrNotFound
		}
		out = st.bookings[id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockBookingByRef needs no row lock here: transactions already run one at a time.
func (r *BookingRepo) LockBookingByRef(ctx context.Context, ref string) (*domain.Booking, error) {
	return r.GetBookingByRef(ctx, ref)
}

func (r *BookingRepo) ListBookingSeats(_ context.Context, bookingID int64) ([]domain.BookingSeat, error) {
	var out []domain.BookingSeat
	err := r.h.view(func(st *state) error {
		for _, bs := range st.bookingSeats {
			if bs.BookingID != bookingID {
				continue
			}
			if seat, ok := st.seats[bs.SeatID]; ok {
				bs.Row, bs.Number = seat.Row, seat.Number
			}
			out = append(out, bs)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.BookingSeat) int { return cmp.Compare(a.SeatID, b.SeatID) })
	return out, err
}

func (r *BookingRepo) ListByCustomerEmail(_ context.Context, email string) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.h.view(func(st *state) error {
		for _, b := range st.bookings {
			if b.Customer.Email == email {
				out = append(out, b)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Booking) int { return cmp.Compare(b.ID, a.ID) })
	return out, err
}

func (r *BookingRepo) TransitionBooking(_ context.Context, b *domain.Booking, from domain.BookingStatus) error {
	return r.h.update(func(st *state) error {
		cur, ok := st.bookings[b.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if cur.Status != from {
			return repository.ErrConflict
		}

		cur.Status = b.Status
		cur.CancelledBy = b.CancelledBy
		cur.CancelledAt = b.CancelledAt
		cur.CompletedAt = b.CompletedAt
		cur.UpdatedAt = r.h.now()
		st.bookings[cur.ID] = cur
		b.UpdatedAt = cur.UpdatedAt

		if b.Status == domain.BookingCancelled {
			for i := range st.bookingSeats {
				bs := &st.bookingSeats[i]
				if bs.BookingID != cur.ID || bs.Released {
					continue
				}
				bs.Released = true
				delete(st.held, showSeat{showID: bs.ShowID, seatID: bs.SeatID})
			}
		}
		return nil
	})
}

func (r *BookingRepo) ListConfirmedByShow(_ context.Context, showID int64) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.h.view(func(st *state) error {
		for _, b := range st.bookings {
			if b.ShowID == showID && b.Status == domain.BookingConfirmed {
				out = append(out, b)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Booking) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

func (r *BookingRepo) ListEndedConfirmed(_ context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.h.view(func(st *state) error {
		for _, b := range st.bookings {
			if b.Status != domain.BookingConfirmed {
				continue
			}
			if s, ok := st.shows[b.ShowID]; ok && s.End.Before(now) {
				out = append(out, b)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Booking) int { return cmp.Compare(a.ID, b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *BookingRepo) ListAvailableSeats(_ context.Context, showID int64) ([]domain.Seat, error) {
	var out []domain.Seat
	err := r.h.view(func(st *state) error {
		out = available(st, showID)
		if out == nil {
			if _, ok := st.shows[showID]; !ok {
				return repository.ErrNotFound
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BookingRepo) CountAvailable(_ context.Context, showID int64) (int, error) {
	var n int
	err := r.h.view(func(st *state) error {
		if _, ok := st.shows[showID]; !ok {
			return repository.ErrNotFound
		}
		n = len(available(st, showID))
		return nil
	})
	return n, err
}

func available(st *state, showID int64) []domain.Seat {
	show, ok := st.shows[showID]
	if !ok {
		return nil
	}
	out := []domain.Seat{}
	for _, s := range st.seats {
		if s.ShowroomID != show.ShowroomID || !s.Active {
			continue
		}
		if _, held := st.held[showSeat{showID: showID, seatID: s.ID}]; held {
			continue
		}
		out = append(out, s)
	}
	sortSeats(out)
	return out
}
