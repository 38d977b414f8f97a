package scheduler

import (
	"fmt"

	"github.com/kirinyoku/cinebook/internal/domain"
)

var (
	ErrOverlappingShow       = domain.NewError(domain.KindConflict, "OVERLAPPING_SHOW", "showroom is already in use at that time")
	ErrUnknownSeatType       = domain.NewError(domain.KindValidation, "UNKNOWN_SEAT_TYPE", "seat type has no seats in the showroom")
	ErrShowHasFutureBookings = domain.NewError(domain.KindState, "SHOW_HAS_FUTURE_BOOKINGS", "show has confirmed bookings")
)

// OverlapError names the active shows that occupy the requested window.
type OverlapError struct {
	ShowIDs []int64
}

func (e *OverlapError) Error() string {
	if len(e.ShowIDs) == 0 {
		return ErrOverlappingShow.Message
	}
	return fmt.Sprintf("%s: shows %v", ErrOverlappingShow.Message, e.ShowIDs)
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlappingShow
}
