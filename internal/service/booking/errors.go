package booking

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/cinebook/internal/domain"
)

var (
	ErrInvalidSeatSelection = domain.NewError(domain.KindValidation, "INVALID_SEAT_SELECTION", "invalid seat selection")
	ErrSeatsUnavailable     = domain.NewError(domain.KindConflict, "SEATS_UNAVAILABLE", "seats are no longer available")
	ErrShowNotBookable      = domain.NewError(domain.KindState, "SHOW_NOT_BOOKABLE", "show is not open for booking")
	ErrBookingContended     = domain.NewError(domain.KindConflict, "BOOKING_CONTENDED", "booking could not be completed under contention, try again")

	errReferenceTaken = errors.New("booking reference already taken")
)

// SeatsUnavailableError lists the requested seats another booking already holds.
type SeatsUnavailableError struct {
	SeatIDs []int64
}

func (e *SeatsUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrSeatsUnavailable.Message, e.SeatIDs)
}

func (e *SeatsUnavailableError) Unwrap() error {
	return ErrSeatsUnavailable
}

func (e *SeatsUnavailableError) Seats() []int64 {
	return e.SeatIDs
}

// InvalidSeatsError lists requested seats that are unknown, inactive or in another showroom.
type InvalidSeatsError struct {
	SeatIDs []int64
}

func (e *InvalidSeatsError) Error() string {
	return fmt.Sprintf("%s: seats %v cannot be booked for this show", ErrInvalidSeatSelection.Message, e.SeatIDs)
}

func (e *InvalidSeatsError) Unwrap() error {
	return ErrInvalidSeatSelection
}

func (e *InvalidSeatsError) Seats() []int64 {
	return e.SeatIDs
}
