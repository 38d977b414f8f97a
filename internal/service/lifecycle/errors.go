package lifecycle

import "github.com/kirinyoku/cinebook/internal/domain"

var (
	ErrAlreadyCancelled = domain.NewError(domain.KindState, "ALREADY_CANCELLED", "booking is already cancelled")
	ErrAlreadyCompleted = domain.NewError(domain.KindState, "ALREADY_COMPLETED", "booking is already completed")
	ErrShowNotEnded     = domain.NewError(domain.KindState, "SHOW_NOT_ENDED", "show has not ended yet")
)
