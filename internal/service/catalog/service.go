package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/notify"
	"github.com/kirinyoku/cinebook/internal/repository"
	"github.com/kirinyoku/cinebook/internal/uow"
)

type Config struct {
	Now func() time.Time
}

type Service struct {
	store    repository.Store
	uow      *uow.UoW
	notifier notify.Notifier
	logger   *slog.Logger
	cfg      Config
}

func New(store repository.Store, notifier notify.Notifier, logger *slog.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Service{
		store:    store,
		uow:      uow.NewUoW(store),
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// SeatSpec describes one seat to add to a showroom.
type SeatSpec struct {
	Row        string `json:"row"`
	Number     int    `json:"number"`
	SeatTypeID int64  `json:"seat_type_id"`
	Position   string `json:"position,omitempty"`
}

func validateMovie(m *domain.Movie) error {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		return domain.Errorf(domain.ErrValidation, "title is required")
	}
	if m.DurationMinutes <= 0 {
		return domain.Errorf(domain.ErrValidation, "duration_minutes must be positive")
	}
	return nil
}

func (s *Service) CreateMovie(ctx context.Context, m domain.Movie) (*domain.Movie, error) {
	const op = "service.catalog.CreateMovie"

	if err := validateMovie(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.Catalog().CreateMovie(ctx, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &m, nil
}

// UpdateMovie replaces the descriptive fields of a movie.
//
// Parameters:
//   - ctx: request-scoped context.
//   - m: the movie with its ID set.
//
// Returns:
//   - *domain.Movie: the stored movie.
//   - error: domain.ErrNotFound if the movie does not exist.
//   - error: catalog.ErrMovieInUse if the duration changes while a show references the movie.
func (s *Service) UpdateMovie(ctx context.Context, m domain.Movie) (*domain.Movie, error) {
	const op = "service.catalog.UpdateMovie"

	if err := validateMovie(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, _ func(uow.AfterCommit)) error {
		cur, err := tx.Catalog().GetMovie(ctx, m.ID)
		if err != nil {
			return movieErr(err, m.ID)
		}

		if cur.DurationMinutes != m.DurationMinutes {
			used, err := tx.Catalog().MovieHasShows(ctx, m.ID)
			if err != nil {
				return err
			}
			if used {
				return domain.Errorf(ErrMovieInUse, "duration of movie %d cannot change", m.ID)
			}
		}

		m.CreatedAt = cur.CreatedAt
		return tx.Catalog().UpdateMovie(ctx, &m)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &m, nil
}

func (s *Service) GetMovie(ctx context.Context, id int64) (*domain.Movie, error) {
	const op = "service.catalog.GetMovie"

	m, err := s.store.Catalog().GetMovie(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, movieErr(err, id))
	}

	return m, nil
}

func (s *Service) ListMovies(ctx context.Context) ([]domain.Movie, error) {
	const op = "service.catalog.ListMovies"

	movies, err := s.store.Catalog().ListMovies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return movies, nil
}

func (s *Service) DeleteMovie(ctx context.Context, id int64) error {
	const op = "service.catalog.DeleteMovie"

	err := s.store.Catalog().DeleteMovie(ctx, id)
	if errors.Is(err, repository.ErrInUse) {
		return fmt.Errorf("%s: %w", op, domain.Errorf(ErrMovieInUse, "movie %d", id))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, movieErr(err, id))
	}

	return nil
}

func (s *Service) CreateShowroom(ctx context.Context, name string, layout json.RawMessage) (*domain.Showroom, error) {
	const op = "service.catalog.CreateShowroom"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s: %w", op, domain.Errorf(domain.ErrValidation, "name is required"))
	}
	if len(layout) > 0 && !json.Valid(layout) {
		return nil, fmt.Errorf("%s: %w", op, domain.Errorf(domain.ErrValidation, "layout must be valid JSON"))
	}

	room := domain.Showroom{Name: name, Layout: layout}
	if err := s.store.Catalog().CreateShowroom(ctx, &room); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, domain.Errorf(ErrDuplicateName, "showroom %q", name))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &room, nil
}

func (s *Service) GetShowroom(ctx context.Context, id int64) (*domain.Showroom, error) {
	const op = "service.catalog.GetShowroom"

	room, err := s.store.Catalog().GetShowroom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err, "showroom %d", id))
	}

	return room, nil
}

func (s *Service) ListShowrooms(ctx context.Context) ([]domain.Showroom, error) {
	const op = "service.catalog.ListShowrooms"

	rooms, err := s.store.Catalog().ListShowrooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rooms, nil
}

func validateSeatType(t *domain.SeatType) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return domain.Errorf(domain.ErrValidation, "name is required")
	}
	if t.PremiumBP < 0 {
		return domain.Errorf(domain.ErrValidation, "premium must not be negative")
	}
	return nil
}

func (s *Service) CreateSeatType(ctx context.Context, t domain.SeatType) (*domain.SeatType, error) {
	const op = "service.catalog.CreateSeatType"

	if err := validateSeatType(&t); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.Catalog().CreateSeatType(ctx, &t); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, domain.Errorf(ErrDuplicateName, "seat type %q", t.Name))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &t, nil
}

// UpdateSeatType changes the name, premium or description of a seat type.
// Price sheets of shows already scheduled keep the prices computed at scheduling time.
func (s *Service) UpdateSeatType(ctx context.Context, t domain.SeatType) (*domain.SeatType, error) {
	const op = "service.catalog.UpdateSeatType"

	if err := validateSeatType(&t); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.Catalog().UpdateSeatType(ctx, &t); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%s: %w", op, domain.Errorf(ErrDuplicateName, "seat type %q", t.Name))
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", op, domain.Errorf(domain.ErrNotFound, "seat type %d", t.ID))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &t, nil
}

func (s *Service) GetSeatType(ctx context.Context, id int64) (*domain.SeatType, error) {
	const op = "service.catalog.GetSeatType"

	t, err := s.store.Catalog().GetSeatType(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err, "seat type %d", id))
	}

	return t, nil
}

func (s *Service) ListSeatTypes(ctx context.Context) ([]domain.SeatType, error) {
	const op = "service.catalog.ListSeatTypes"

	types, err := s.store.Catalog().ListSeatTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return types, nil
}

// CreateSeat adds one seat to a showroom. See CreateSeats.
func (s *Service) CreateSeat(ctx context.Context, showroomID int64, spec SeatSpec) (*domain.Seat, error) {
	const op = "service.catalog.CreateSeat"

	seats, err := s.createSeats(ctx, showroomID, []SeatSpec{spec})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &seats[0], nil
}

// CreateSeats adds seats to a showroom in one transaction: either every seat is
// created or none is.
//
// Active shows of the showroom that have not started yet get a default price sheet
// entry for every new seat type, so the new seats are immediately bookable.
//
// Parameters:
//   - ctx: request-scoped context.
//   - showroomID: the showroom receiving the seats.
//   - specs: the seats to create.
//
// Returns:
//   - []domain.Seat: the created seats in request order.
//   - error: domain.ErrNotFound if the showroom or a seat type does not exist.
//   - error: catalog.ErrDuplicateSeat if (row, number) is already taken in the showroom.
func (s *Service) CreateSeats(ctx context.Context, showroomID int64, specs []SeatSpec) ([]domain.Seat, error) {
	const op = "service.catalog.CreateSeats"

	if len(specs) == 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.Errorf(domain.ErrValidation, "no seats given"))
	}

	seats, err := s.createSeats(ctx, showroomID, specs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return seats, nil
}

func (s *Service) createSeats(ctx context.Context, showroomID int64, specs []SeatSpec) ([]domain.Seat, error) {
	seats := make([]domain.Seat, 0, len(specs))
	for i, spec := range specs {
		row := strings.ToUpper(strings.TrimSpace(spec.Row))
		if row == "" || spec.Number <= 0 {
			return nil, domain.Errorf(domain.ErrValidation, "seat %d: row and a positive number are required", i)
		}
		seats = append(seats, domain.Seat{
			ShowroomID: showroomID,
			SeatTypeID: spec.SeatTypeID,
			Row:        row,
			Number:     spec.Number,
			Position:   spec.Position,
			Active:     true,
		})
	}

	var touched []int64
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		if _, err := tx.Catalog().GetShowroom(ctx, showroomID); err != nil {
			return notFound(err, "showroom %d", showroomID)
		}

		types := map[int64]domain.SeatType{}
		for i := range seats {
			seat := &seats[i]
			if _, ok := types[seat.SeatTypeID]; !ok {
				t, err := tx.Catalog().GetSeatType(ctx, seat.SeatTypeID)
				if err != nil {
					return notFound(err, "seat type %d", seat.SeatTypeID)
				}
				types[t.ID] = *t
			}

			if err := tx.Catalog().CreateSeat(ctx, seat); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return domain.Errorf(ErrDuplicateSeat, "%s in showroom %d", seat.Label(), showroomID)
				}
				return err
			}
		}

		var err error
		touched, err = s.backfillPrices(ctx, tx, showroomID, types)
		if err != nil {
			return err
		}

		after(func(ctx context.Context) {
			for _, id := range touched {
				s.notifier.ShowChanged(ctx, id)
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return seats, nil
}

// backfillPrices gives every active upcoming show of the showroom a default entry
// for each of types it does not price yet. It returns the upcoming shows.
func (s *Service) backfillPrices(
	ctx context.Context,
	tx repository.Repos,
	showroomID int64,
	types map[int64]domain.SeatType,
) ([]int64, error) {
	shows, err := tx.Shows().ListUpcomingShows(ctx, showroomID, s.cfg.Now())
	if err != nil {
		return nil, err
	}

	list := make([]domain.SeatType, 0, len(types))
	for _, t := range types {
		list = append(list, t)
	}

	ids := make([]int64, 0, len(shows))
	for _, show := range shows {
		for _, e := range domain.DefaultPriceEntries(show, list) {
			added, err := tx.Shows().InsertPriceIfMissing(ctx, e)
			if err != nil {
				return nil, err
			}
			if added {
				s.logger.Info("price back-filled",
					"show_id", show.ID, "seat_type_id", e.SeatTypeID, "price", e.Price.String())
			}
		}
		ids = append(ids, show.ID)
	}

	return ids, nil
}

func (s *Service) ListSeats(ctx context.Context, showroomID int64, includeInactive bool) ([]domain.Seat, error) {
	const op = "service.catalog.ListSeats"

	if _, err := s.store.Catalog().GetShowroom(ctx, showroomID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err, "showroom %d", showroomID))
	}

	seats, err := s.store.Catalog().ListSeats(ctx, showroomID, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return seats, nil
}

// DeactivateSeat removes a seat from sale without touching its booking history.
func (s *Service) DeactivateSeat(ctx context.Context, id int64) (*domain.Seat, error) {
	const op = "service.catalog.DeactivateSeat"

	seat, err := s.setSeatActive(ctx, id, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return seat, nil
}

// ReactivateSeat puts a seat back on sale and back-fills missing prices for its type.
func (s *Service) ReactivateSeat(ctx context.Context, id int64) (*domain.Seat, error) {
	const op = "service.catalog.ReactivateSeat"

	seat, err := s.setSeatActive(ctx, id, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return seat, nil
}

func (s *Service) setSeatActive(ctx context.Context, id int64, active bool) (*domain.Seat, error) {
	var seat *domain.Seat
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		var err error
		seat, err = tx.Catalog().GetSeat(ctx, id)
		if err != nil {
			return notFound(err, "seat %d", id)
		}

		if err := tx.Catalog().SetSeatActive(ctx, id, active); err != nil {
			return err
		}
		seat.Active = active

		var touched []int64
		if active {
			t, err := tx.Catalog().GetSeatType(ctx, seat.SeatTypeID)
			if err != nil {
				return err
			}
			touched, err = s.backfillPrices(ctx, tx, seat.ShowroomID, map[int64]domain.SeatType{t.ID: *t})
			if err != nil {
				return err
			}
		} else {
			shows, err := tx.Shows().ListUpcomingShows(ctx, seat.ShowroomID, s.cfg.Now())
			if err != nil {
				return err
			}
			for _, show := range shows {
				touched = append(touched, show.ID)
			}
		}

		after(func(ctx context.Context) {
			for _, showID := range touched {
				s.notifier.ShowChanged(ctx, showID)
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return seat, nil
}

// DeleteSeat removes a seat for good. Seats that were ever booked can only be deactivated.
func (s *Service) DeleteSeat(ctx context.Context, id int64) error {
	const op = "service.catalog.DeleteSeat"

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		seat, err := tx.Catalog().GetSeat(ctx, id)
		if err != nil {
			return notFound(err, "seat %d", id)
		}

		if err := tx.Catalog().DeleteSeat(ctx, id); err != nil {
			if errors.Is(err, repository.ErrInUse) {
				return domain.Errorf(ErrSeatInUse, "seat %d; deactivate it instead", id)
			}
			return err
		}

		shows, err := tx.Shows().ListUpcomingShows(ctx, seat.ShowroomID, s.cfg.Now())
		if err != nil {
			return err
		}
		after(func(ctx context.Context) {
			for _, show := range shows {
				s.notifier.ShowChanged(ctx, show.ID)
			}
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func movieErr(err error, id int64) error {
	return notFound(err, "movie %d", id)
}

// notFound maps repository.ErrNotFound to domain.ErrNotFound and passes other errors through.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Errorf(domain.ErrNotFound, format, args...)
	}
	return err
}
