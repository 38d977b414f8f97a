package catalog

import "github.com/kirinyoku/cinebook/internal/domain"

var (
	ErrDuplicateSeat = domain.NewError(domain.KindConflict, "DUPLICATE_SEAT", "seat already exists")
	ErrDuplicateName = domain.NewError(domain.KindConflict, "DUPLICATE_NAME", "name already taken")
	ErrSeatInUse     = domain.NewError(domain.KindConflict, "SEAT_IN_USE", "seat has booking history")
	ErrMovieInUse    = domain.NewError(domain.KindConflict, "MOVIE_IN_USE", "movie is referenced by a show")
)
