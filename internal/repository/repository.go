package repository

import (
	"context"
	"time"

	"github.com/kirinyoku/cinebook/internal/domain"
)

type IsoLevel int

const (
	Serializable IsoLevel = iota
	ReadCommitted
)

type TxOptions struct {
	IsoLevel IsoLevel
	ReadOnly bool
}

// Repos gives access to every repository bound to one handle: the pool or an open transaction.
type Repos interface {
	Catalog() Catalog
	Shows() Shows
	Bookings() Bookings
}

// Store is the storage root. Repos used directly run each call in its own implicit transaction.
type Store interface {
	Repos
	// RunTx runs fn inside a transaction and commits when fn returns nil.
	// A nil opts means serializable read-write.
	RunTx(ctx context.Context, opts *TxOptions, fn func(ctx context.Context, tx Repos) error) error
}

type Catalog interface {
	CreateMovie(ctx context.Context, m *domain.Movie) error
	UpdateMovie(ctx context.Context, m *domain.Movie) error
	GetMovie(ctx context.Context, id int64) (*domain.Movie, error)
	ListMovies(ctx context.Context) ([]domain.Movie, error)
	// DeleteMovie returns ErrInUse while a show references the movie.
	DeleteMovie(ctx context.Context, id int64) error
	MovieHasShows(ctx context.Context, id int64) (bool, error)

	CreateShowroom(ctx context.Context, r *domain.Showroom) error
	GetShowroom(ctx context.Context, id int64) (*domain.Showroom, error)
	ListShowrooms(ctx context.Context) ([]domain.Showroom, error)

	CreateSeatType(ctx context.Context, st *domain.SeatType) error
	UpdateSeatType(ctx context.Context, st *domain.SeatType) error
	GetSeatType(ctx context.Context, id int64) (*domain.SeatType, error)
	ListSeatTypes(ctx context.Context) ([]domain.SeatType, error)
	// SeatTypesInShowroom lists the seat types with at least one seat in the showroom,
	// restricted to active seats when onlyActive is set.
	SeatTypesInShowroom(ctx context.Context, showroomID int64, onlyActive bool) ([]domain.SeatType, error)

	// CreateSeat returns ErrConflict when (showroom, row, number) is taken.
	CreateSeat(ctx context.Context, s *domain.Seat) error
	GetSeat(ctx context.Context, id int64) (*domain.Seat, error)
	GetSeats(ctx context.Context, ids []int64) ([]domain.Seat, error)
	ListSeats(ctx context.Context, showroomID int64, includeInactive bool) ([]domain.Seat, error)
	SetSeatActive(ctx context.Context, id int64, active bool) error
	// DeleteSeat returns ErrInUse once a booking seat references the seat.
	DeleteSeat(ctx context.Context, id int64) error
	SeatHasBookings(ctx context.Context, id int64) (bool, error)
}

type Shows interface {
	// CreateShow returns ErrOverlap when an active show of the same showroom intersects the window.
	CreateShow(ctx context.Context, s *domain.Show) error
	GetShow(ctx context.Context, id int64) (*domain.Show, error)
	// LockShow reads the show and locks its row until the transaction ends. Shared
	// locks admit each other; an exclusive lock waits for all of them.
	LockShow(ctx context.Context, id int64, exclusive bool) (*domain.Show, error)
	FindOverlapping(ctx context.Context, showroomID int64, start, end time.Time) ([]domain.Show, error)
	SetShowActive(ctx context.Context, id int64, active bool) error
	ListShows(ctx context.Context, f domain.ShowFilter) ([]domain.ShowSummary, error)
	// ListUpcomingShows returns active shows of the showroom starting after now.
	ListUpcomingShows(ctx context.Context, showroomID int64, now time.Time) ([]domain.Show, error)

	// UpsertPrice inserts or replaces the entry for (show, seat type).
	UpsertPrice(ctx context.Context, e domain.PriceSheetEntry) error
	// InsertPriceIfMissing adds the entry unless one exists; it reports whether a row was added.
	InsertPriceIfMissing(ctx context.Context, e domain.PriceSheetEntry) (bool, error)
	ListPrices(ctx context.Context, showID int64) ([]domain.PriceSheetEntry, error)
}

type Bookings interface {
	// InsertBooking returns ErrConflict on a reference collision.
	InsertBooking(ctx context.Context, b *domain.Booking) error
	// AcquireSeats inserts the booking seats unless another unreleased row already
	// holds (show, seat). It returns the seat IDs that could not be acquired; the
	// caller must abort the transaction when any are returned.
	AcquireSeats(ctx context.Context, seats []domain.BookingSeat) (taken []int64, err error)
	// TakenSeats returns which of seatIDs have an unreleased booking seat for the show.
	TakenSeats(ctx context.Context, showID int64, seatIDs []int64) ([]int64, error)

	GetBookingByRef(ctx context.Context, ref string) (*domain.Booking, error)
	// LockBookingByRef is GetBookingByRef that also locks the row for the rest of the transaction.
	LockBookingByRef(ctx context.Context, ref string) (*domain.Booking, error)
	ListBookingSeats(ctx context.Context, bookingID int64) ([]domain.BookingSeat, error)
	ListByCustomerEmail(ctx context.Context, email string) ([]domain.Booking, error)

	// TransitionBooking moves the booking from -> b.Status, persisting the audit fields of b.
	// Moving to cancelled releases its seats. It returns ErrConflict when the stored status is not from.
	TransitionBooking(ctx context.Context, b *domain.Booking, from domain.BookingStatus) error
	ListConfirmedByShow(ctx context.Context, showID int64) ([]domain.Booking, error)
	// ListEndedConfirmed returns confirmed bookings whose show ended before now.
	ListEndedConfirmed(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)

	ListAvailableSeats(ctx context.Context, showID int64) ([]domain.Seat, error)
	CountAvailable(ctx context.Context, showID int64) (int, error)
}
