// Package memory is an in-process implementation of the repository contracts.
// Every transaction runs under one mutex against a copy of the state that replaces
// the committed state only when the transaction succeeds.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/repository"
)

type seatKey struct {
	showroomID int64
	row        string
	number     int
}

type priceKey struct {
	showID     int64
	seatTypeID int64
}

type showSeat struct {
	showID int64
	seatID int64
}

type state struct {
	nextID int64

	movies    map[int64]domain.Movie
	showrooms map[int64]domain.Showroom
	seatTypes map[int64]domain.SeatType
	seats     map[int64]domain.Seat
	seatKeys  map[seatKey]int64
	shows     map[int64]domain.Show
	prices    map[priceKey]domain.PriceSheetEntry
	bookings  map[int64]domain.Booking
	refs      map[string]int64

	bookingSeats []domain.BookingSeat
	// held is the (show, seat) uniqueness index over unreleased booking seats.
	held       map[showSeat]int
	referenced map[int64]bool
}

func newState() *state {
	return &state{
		movies:     map[int64]domain.Movie{},
		showrooms:  map[int64]domain.Showroom{},
		seatTypes:  map[int64]domain.SeatType{},
		seats:      map[int64]domain.Seat{},
		seatKeys:   map[seatKey]int64{},
		shows:      map[int64]domain.Show{},
		prices:     map[priceKey]domain.PriceSheetEntry{},
		bookings:   map[int64]domain.Booking{},
		refs:       map[string]int64{},
		held:       map[showSeat]int{},
		referenced: map[int64]bool{},
	}
}

func (st *state) clone() *state {
	return &state{
		nextID:       st.nextID,
		movies:       maps.Clone(st.movies),
		showrooms:    maps.Clone(st.showrooms),
		seatTypes:    maps.Clone(st.seatTypes),
		seats:        maps.Clone(st.seats),
		seatKeys:     maps.Clone(st.seatKeys),
		shows:        maps.Clone(st.shows),
		prices:       maps.Clone(st.prices),
		bookings:     maps.Clone(st.bookings),
		refs:         maps.Clone(st.refs),
		bookingSeats: slices.Clone(st.bookingSeats),
		held:         maps.Clone(st.held),
		referenced:   maps.Clone(st.referenced),
	}
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// RunTx serializes transactions; opts are accepted for interface compatibility.
func (s *Store) RunTx(
	ctx context.Context,
	opts *repository.TxOptions,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, txRepos{h: handle{s: s, st: work}}); err != nil {
		return err
	}

	s.st = work

	return nil
}

func (s *Store) Catalog() repository.Catalog   { return &CatalogRepo{h: handle{s: s}} }
func (s *Store) Shows() repository.Shows       { return &ShowRepo{h: handle{s: s}} }
func (s *Store) Bookings() repository.Bookings { return &BookingRepo{h: handle{s: s}} }

type txRepos struct {
	h handle
}

func (t txRepos) Catalog() repository.Catalog   { return &CatalogRepo{h: t.h} }
func (t txRepos) Shows() repository.Shows       { return &ShowRepo{h: t.h} }
func (t txRepos) Bookings() repository.Bookings { return &BookingRepo{h: t.h} }

// handle is bound either to a transaction's working state or, when st is nil,
// to the store itself, in which case every call is its own transaction.
type handle struct {
	s  *Store
	st *state
}

func (h handle) view(fn func(st *state) error) error {
	if h.st != nil {
		return fn(h.st)
	}

	h.s.mu.RLock()
	defer h.s.mu.RUnlock()

	return fn(h.s.st)
}

func (h handle) update(fn func(st *state) error) error {
	if h.st != nil {
		return fn(h.st)
	}

	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	work := h.s.st.clone()
	if err := fn(work); err != nil {
		return err
	}

	h.s.st = work

	return nil
}

func (h handle) now() time.Time {
	return h.s.now().UTC()
}

func sortSeats(seats []domain.Seat) {
	slices.SortFunc(seats, func(a, b domain.Seat) int {
		if a.Row != b.Row {
			if a.Row < b.Row {
				return -1
			}
			return 1
		}
		return a.Number - b.Number
	})
}
