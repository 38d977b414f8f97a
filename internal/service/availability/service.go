package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/repository"
)

// CountCache memoizes per-show available seat counts.
type CountCache interface {
	ShowAvailableCount(
		ctx context.Context,
		showID int64,
		ttl time.Duration,
		load func(ctx context.Context) (int, error),
	) (int, error)
}

type Config struct {
	Now      func() time.Time
	CountTTL time.Duration
	// CountWorkers bounds how many show counts ListShows resolves at once.
	CountWorkers int
}

type Service struct {
	store  repository.Store
	cache  CountCache
	logger *slog.Logger
	cfg    Config
}

// New builds the service. cache may be nil, in which case every count is read from the store.
func New(store repository.Store, cache CountCache, logger *slog.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.CountTTL <= 0 {
		cfg.CountTTL = 5 * time.Second
	}

	if cfg.CountWorkers <= 0 {
		cfg.CountWorkers = 8
	}

	return &Service{
		store:  store,
		cache:  cache,
		logger: logger,
		cfg:    cfg,
	}
}

// ListAvailableSeats returns the active seats of the show's showroom that no
// confirmed or completed booking holds, each with its price for the show.
// It always reads committed state from the store.
//
// Parameters:
//   - ctx: request-scoped context.
//   - showID: the show to inspect.
//
// Returns:
//   - []domain.AvailableSeat: free seats ordered by row and number.
//   - error: domain.ErrNotFound if the show does not exist.
//   - error: domain.ErrPricingInconsistency if a free seat has no price.
func (s *Service) ListAvailableSeats(ctx context.Context, showID int64) ([]domain.AvailableSeat, error) {
	const op = "service.availability.ListAvailableSeats"

	var out []domain.AvailableSeat
	err := s.store.RunTx(ctx, &repository.TxOptions{IsoLevel: repository.ReadCommitted, ReadOnly: true}, func(
		ctx context.Context,
		tx repository.Repos,
	) error {
		seats, err := tx.Bookings().ListAvailableSeats(ctx, showID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Errorf(domain.ErrNotFound, "show %d", showID)
			}
			return err
		}

		prices, err := tx.Shows().ListPrices(ctx, showID)
		if err != nil {
			return err
		}
		sheet := domain.NewPriceSheet(prices)

		types, err := tx.Catalog().ListSeatTypes(ctx)
		if err != nil {
			return err
		}
		names := make(map[int64]string, len(types))
		for _, t := range types {
			names[t.ID] = t.Name
		}

		out = make([]domain.AvailableSeat, 0, len(seats))
		for _, seat := range seats {
			price, ok := sheet.PriceFor(seat)
			if !ok {
				s.logger.Error("seat has no price",
					"show_id", showID, "seat_id", seat.ID, "seat_type_id", seat.SeatTypeID)
				return domain.Errorf(domain.ErrPricingInconsistency,
					"show %d has no price for seat type %d", showID, seat.SeatTypeID)
			}
			out = append(out, domain.AvailableSeat{
				SeatID:     seat.ID,
				Row:        seat.Row,
				Number:     seat.Number,
				SeatTypeID: seat.SeatTypeID,
				SeatType:   names[seat.SeatTypeID],
				Price:      price,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

type ShowQuery struct {
	MovieID *int64
	// From defaults to now, so only shows that have not started are listed.
	From                 *time.Time
	To                   *time.Time
	OnlyWithAvailability bool
}

// ListShows lists active shows matching q with their available seat counts.
// Counts may lag committed state by at most the cache TTL.
func (s *Service) ListShows(ctx context.Context, q ShowQuery) ([]domain.ShowAvailability, error) {
	const op = "service.availability.ListShows"

	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return nil, fmt.Errorf("%s: %w", op, domain.Errorf(domain.ErrValidation, "from must be before to"))
	}

	if q.From == nil {
		from := s.cfg.Now()
		q.From = &from
	}

	shows, err := s.store.Shows().ListShows(ctx, domain.ShowFilter{MovieID: q.MovieID, From: q.From, To: q.To})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	counts := make([]int, len(shows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.CountWorkers)
	for i, show := range shows {
		g.Go(func() error {
			n, err := s.count(gctx, show.ID)
			if err != nil {
				return err
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]domain.ShowAvailability, 0, len(shows))
	for i, show := range shows {
		if q.OnlyWithAvailability && counts[i] == 0 {
			continue
		}
		out = append(out, domain.ShowAvailability{ShowSummary: show, AvailableCount: counts[i]})
	}

	return out, nil
}

// AvailableCount returns how many seats of the show are still free.
func (s *Service) AvailableCount(ctx context.Context, showID int64) (int, error) {
	const op = "service.availability.AvailableCount"

	n, err := s.count(ctx, showID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%s: %w", op, domain.Errorf(domain.ErrNotFound, "show %d", showID))
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *Service) count(ctx context.Context, showID int64) (int, error) {
	load := func(ctx context.Context) (int, error) {
		return s.store.Bookings().CountAvailable(ctx, showID)
	}

	if s.cache == nil {
		return load(ctx)
	}

	n, err := s.cache.ShowAvailableCount(ctx, showID, s.cfg.CountTTL, load)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return 0, err
	}

	s.logger.Warn("availability cache unavailable, reading store", "show_id", showID, "error", err)
	return load(ctx)
}
