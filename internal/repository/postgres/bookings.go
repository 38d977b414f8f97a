package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/repository"
)

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const bookingColumns = `b.id, b.show_id, b.user_id, b.booking_reference, b.customer_name, b.customer_email,
	b.customer_phone, b.total_amount_cents, b.status, b.cancelled_by, b.cancelled_at, b.completed_at,
	b.created_at, b.updated_at`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.ShowID, &b.UserID, &b.Reference, &b.Customer.Name, &b.Customer.Email,
		&b.Customer.Phone, &b.TotalAmount, &b.Status, &b.CancelledBy, &b.CancelledAt, &b.CompletedAt,
		&b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// InsertBooking inserts the booking header.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - b: booking to insert; ID, CreatedAt and UpdatedAt are set on success.
//
// Returns:
//   - error: repository.ErrConflict if the booking reference is already used.
func (r *BookingRepo) InsertBooking(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.InsertBooking"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO bookings (show_id, user_id, booking_reference, customer_name, customer_email,
		                       customer_phone, total_amount_cents, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		b.ShowID, b.UserID, b.Reference, b.Customer.Name, b.Customer.Email,
		b.Customer.Phone, int64(b.TotalAmount), string(b.Status),
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// AcquireSeats claims seats for one booking of one show.
//
// Rows whose (show, seat) is already held by an unreleased booking seat are skipped
// by the partial unique index; under read committed a concurrent uncommitted holder
// is waited for, so the answer is final once the statement returns.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - seats: booking seats sharing BookingID and ShowID, ideally in ascending seat order.
//
// Returns:
//   - []int64: seat IDs that were already held; non-empty means the caller must roll back.
//   - error: any database error.
func (r *BookingRepo) AcquireSeats(ctx context.Context, seats []domain.BookingSeat) ([]int64, error) {
	const op = "postgres.BookingRepo.AcquireSeats"

	if len(seats) == 0 {
		return nil, nil
	}

	seatIDs := make([]int64, len(seats))
	prices := make([]int64, len(seats))
	for i, s := range seats {
		seatIDs[i] = s.SeatID
		prices[i] = int64(s.Price)
	}

	rows, err := r.handle().Query(ctx,
		`INSERT INTO booking_seats (booking_id, seat_id, show_id, price_cents)
		 SELECT $1, t.seat_id, $2, t.price
		 FROM unnest($3::bigint[], $4::bigint[]) WITH ORDINALITY AS t(seat_id, price, ord)
		 ORDER BY t.ord
		 ON CONFLICT (show_id, seat_id) WHERE NOT released DO NOTHING
		 RETURNING seat_id`,
		seats[0].BookingID, seats[0].ShowID, seatIDs, prices,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	acquired, err := collect(rows, func(row pgx.Row) (int64, error) {
		var id int64
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	var taken []int64
	for _, id := range seatIDs {
		if !slices.Contains(acquired, id) {
			taken = append(taken, id)
		}
	}
	slices.Sort(taken)

	return taken, nil
}

func (r *BookingRepo) TakenSeats(ctx context.Context, showID int64, seatIDs []int64) ([]int64, error) {
	const op = "postgres.BookingRepo.TakenSeats"

	rows, err := r.handle().Query(ctx,
		`SELECT DISTINCT seat_id
		 FROM booking_seats
		 WHERE show_id = $1 AND seat_id = ANY($2) AND NOT released
		 ORDER BY seat_id`,
		showID, seatIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, func(row pgx.Row) (int64, error) {
		var id int64
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *BookingRepo) GetBookingByRef(ctx context.Context, ref string) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.GetBookingByRef"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings b WHERE b.booking_reference = $1`, ref))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &b, nil
}

func (r *BookingRepo) LockBookingByRef(ctx context.Context, ref string) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.LockBookingByRef"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings b WHERE b.booking_reference = $1 FOR UPDATE`, ref))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &b, nil
}

func (r *BookingRepo) ListBookingSeats(ctx context.Context, bookingID int64) ([]domain.BookingSeat, error) {
	const op = "postgres.BookingRepo.ListBookingSeats"

	rows, err := r.handle().Query(ctx,
		`SELECT bs.booking_id, bs.seat_id, bs.show_id, bs.price_cents, bs.released, s.row_label, s.seat_number
		 FROM booking_seats bs
		 JOIN seats s ON s.id = bs.seat_id
		 WHERE bs.booking_id = $1
		 ORDER BY bs.seat_id`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, func(row pgx.Row) (domain.BookingSeat, error) {
		var bs domain.BookingSeat
		err := row.Scan(&bs.BookingID, &bs.SeatID, &bs.ShowID, &bs.Price, &bs.Released, &bs.Row, &bs.Number)
		return bs, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *BookingRepo) ListByCustomerEmail(ctx context.Context, email string) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListByCustomerEmail"

	rows, err := r.handle().Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings b WHERE b.customer_email = $1 ORDER BY b.id DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, scanBooking)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

// TransitionBooking applies a status change guarded by the expected current status.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - b: booking carrying the new status and audit fields.
//   - from: status the stored row must still have.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
//   - error: repository.ErrConflict if the stored status is no longer from.
func (r *BookingRepo) TransitionBooking(ctx context.Context, b *domain.Booking, from domain.BookingStatus) error {
	const op = "postgres.BookingRepo.TransitionBooking"

	err := inTx(ctx, r.pool, r.db, func(db DB) error {
		err := db.QueryRow(ctx,
			`UPDATE bookings
			 SET status = $2, cancelled_by = $3, cancelled_at = $4, completed_at = $5, updated_at = now()
			 WHERE id = $1 AND status = $6
			 RETURNING updated_at`,
			b.ID, string(b.Status), b.CancelledBy, b.CancelledAt, b.CompletedAt, string(from),
		).Scan(&b.UpdatedAt)
		if err == nil {
			if b.Status != domain.BookingCancelled {
				return nil
			}
			_, err = db.Exec(ctx,
				`UPDATE booking_seats SET released = true WHERE booking_id = $1 AND NOT released`, b.ID)
			return translateDBErr(err)
		}

		if !errors.Is(translateDBErr(err), repository.ErrNotFound) {
			return translateDBErr(err)
		}

		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, b.ID,
		).Scan(&exists); err != nil {
			return translateDBErr(err)
		}
		if exists {
			return repository.ErrConflict
		}
		return repository.ErrNotFound
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (r *BookingRepo) ListConfirmedByShow(ctx context.Context, showID int64) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListConfirmedByShow"

	rows, err := r.handle().Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 WHERE b.show_id = $1 AND b.status = 'confirmed'
		 ORDER BY b.id`,
		showID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, scanBooking)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *BookingRepo) ListEndedConfirmed(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListEndedConfirmed"

	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := r.handle().Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 JOIN shows s ON s.id = b.show_id
		 WHERE b.status = 'confirmed' AND s.end_time < $1
		 ORDER BY b.id
		 LIMIT $2`,
		now, lim,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, scanBooking)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

// ListAvailableSeats returns the active seats of the show's showroom that no
// unreleased booking seat holds, in row then number order.
//
// Returns:
//   - error: repository.ErrNotFound if the show does not exist.
func (r *BookingRepo) ListAvailableSeats(ctx context.Context, showID int64) ([]domain.Seat, error) {
	const op = "postgres.BookingRepo.ListAvailableSeats"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT st.id, st.showroom_id, st.seat_type_id, st.row_label, st.seat_number, st.position, st.is_active
		 FROM shows sh
		 JOIN seats st ON st.showroom_id = sh.showroom_id AND st.is_active
		 WHERE sh.id = $1
		   AND NOT EXISTS (
		       SELECT 1 FROM booking_seats bs
		       WHERE bs.show_id = sh.id AND bs.seat_id = st.id AND NOT bs.released
		   )
		 ORDER BY st.row_label, st.seat_number`,
		showID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, scanSeat)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if len(out) == 0 {
		var exists bool
		if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shows WHERE id = $1)`, showID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		if !exists {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		return []domain.Seat{}, nil
	}

	return out, nil
}

func (r *BookingRepo) CountAvailable(ctx context.Context, showID int64) (int, error) {
	const op = "postgres.BookingRepo.CountAvailable"

	var n int
	err := r.handle().QueryRow(ctx,
		`SELECT (
		     SELECT count(*)
		     FROM seats st
		     WHERE st.showroom_id = sh.showroom_id AND st.is_active
		       AND NOT EXISTS (
		           SELECT 1 FROM booking_seats bs
		           WHERE bs.show_id = sh.id AND bs.seat_id = st.id AND NOT bs.released
		       )
		 )
		 FROM shows sh
		 WHERE sh.id = $1`,
		showID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return n, nil
}
