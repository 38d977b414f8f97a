package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/notify"
	"github.com/kirinyoku/cinebook/internal/repository"
	"github.com/kirinyoku/cinebook/internal/uow"
)

// ShowCancelledActor is recorded as the canceller of bookings dropped by a forced show cancellation.
const ShowCancelledActor = "system:show-cancelled"

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

type ScheduleRequest struct {
	MovieID    int64
	ShowroomID int64
	Start      time.Time
	End        time.Time
	BasePrice  domain.Cents
}

type ScheduledShow struct {
	Show   domain.Show              `json:"show"`
	Prices []domain.PriceSheetEntry `json:"prices"`
}

// ScheduleShow creates an active show and its default price sheet.
//
// The sheet gets one entry per seat type with at least one active seat in the
// showroom, priced at the base price plus the type's premium.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: movie, showroom, time window and base price.
//
// Returns:
//   - *ScheduledShow: the created show and its price sheet.
//   - error: domain.ErrValidation if the window or the price is invalid.
//   - error: domain.ErrNotFound if the movie or the showroom does not exist.
//   - error: scheduler.ErrOverlappingShow if an active show of the showroom intersects the window.
func (s *Service) ScheduleShow(ctx context.Context, req ScheduleRequest) (*ScheduledShow, error) {
	const op = "service.scheduler.ScheduleShow"

	if err := s.validateWindow(req); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var out ScheduledShow
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		movie, err := tx.Catalog().GetMovie(ctx, req.MovieID)
		if err != nil {
			return notFound(err, "movie %d", req.MovieID)
		}

		if req.End.Sub(req.Start) < movie.Duration() {
			return domain.Errorf(domain.ErrValidation,
				"window of %s is shorter than the %d minute movie", req.End.Sub(req.Start), movie.DurationMinutes)
		}

		if _, err := tx.Catalog().GetShowroom(ctx, req.ShowroomID); err != nil {
			return notFound(err, "showroom %d", req.ShowroomID)
		}

		clash, err := tx.Shows().FindOverlapping(ctx, req.ShowroomID, req.Start, req.End)
		if err != nil {
			return err
		}
		if len(clash) > 0 {
			ids := make([]int64, 0, len(clash))
			for _, c := range clash {
				ids = append(ids, c.ID)
			}
			return &OverlapError{ShowIDs: ids}
		}

		show := domain.Show{
			MovieID:    req.MovieID,
			ShowroomID: req.ShowroomID,
			Start:      req.Start.UTC(),
			End:        req.End.UTC(),
			BasePrice:  req.BasePrice,
			Active:     true,
		}
		if err := tx.Shows().CreateShow(ctx, &show); err != nil {
			if errors.Is(err, repository.ErrOverlap) {
				return &OverlapError{}
			}
			return err
		}

		types, err := tx.Catalog().SeatTypesInShowroom(ctx, req.ShowroomID, true)
		if err != nil {
			return err
		}

		prices := domain.DefaultPriceEntries(show, types)
		for _, e := range prices {
			if err := tx.Shows().UpsertPrice(ctx, e); err != nil {
				return err
			}
		}

		out = ScheduledShow{Show: show, Prices: prices}

		after(func(ctx context.Context) {
			s.notifier.ShowChanged(ctx, show.ID)
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("show scheduled",
		"show_id", out.Show.ID, "showroom_id", out.Show.ShowroomID, "start", out.Show.Start, "prices", len(out.Prices))

	return &out, nil
}

func (s *Service) validateWindow(req ScheduleRequest) error {
	switch {
	case req.Start.IsZero() || req.End.IsZero():
		return domain.Errorf(domain.ErrValidation, "start and end are required")
	case !req.End.After(req.Start):
		return domain.Errorf(domain.ErrValidation, "end must be after start")
	case !req.Start.After(s.cfg.Now()):
		return domain.Errorf(domain.ErrValidation, "start must be in the future")
	case req.BasePrice < 0:
		return domain.Errorf(domain.ErrValidation, "base price must not be negative")
	}
	return nil
}

func (s *Service) GetShow(ctx context.Context, id int64) (*domain.Show, error) {
	const op = "service.scheduler.GetShow"

	show, err := s.store.Shows().GetShow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err, "show %d", id))
	}

	return show, nil
}

// SetPrice overrides the price of one seat type for a show. Existing bookings keep
// the price they were sold at.
//
// Returns:
//   - *domain.PriceSheetEntry: the stored entry.
//   - error: domain.ErrNotFound if the show or the seat type does not exist.
//   - error: scheduler.ErrUnknownSeatType if the showroom has no seat of that type.
func (s *Service) SetPrice(ctx context.Context, showID, seatTypeID int64, price domain.Cents) (*domain.PriceSheetEntry, error) {
	const op = "service.scheduler.SetPrice"

	if price < 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.Errorf(domain.ErrValidation, "price must not be negative"))
	}

	entry := domain.PriceSheetEntry{ShowID: showID, SeatTypeID: seatTypeID, Price: price, Override: true}
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		show, err := tx.Shows().GetShow(ctx, showID)
		if err != nil {
			return notFound(err, "show %d", showID)
		}

		if _, err := tx.Catalog().GetSeatType(ctx, seatTypeID); err != nil {
			return notFound(err, "seat type %d", seatTypeID)
		}

		types, err := tx.Catalog().SeatTypesInShowroom(ctx, show.ShowroomID, false)
		if err != nil {
			return err
		}
		known := false
		for _, t := range types {
			if t.ID == seatTypeID {
				known = true
				break
			}
		}
		if !known {
			return domain.Errorf(ErrUnknownSeatType, "seat type %d in showroom %d", seatTypeID, show.ShowroomID)
		}

		if err := tx.Shows().UpsertPrice(ctx, entry); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.notifier.ShowChanged(ctx, showID)
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &entry, nil
}

func (s *Service) GetPriceSheet(ctx context.Context, showID int64) ([]domain.PriceSheetEntry, error) {
	const op = "service.scheduler.GetPriceSheet"

	var prices []domain.PriceSheetEntry
	err := s.store.RunTx(ctx, &repository.TxOptions{ReadOnly: true}, func(ctx context.Context, tx repository.Repos) error {
		if _, err := tx.Shows().GetShow(ctx, showID); err != nil {
			return notFound(err, "show %d", showID)
		}

		var err error
		prices, err = tx.Shows().ListPrices(ctx, showID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return prices, nil
}

type CancelShowResult struct {
	Show              domain.Show `json:"show"`
	CancelledBookings []string    `json:"cancelled_bookings"`
}

// CancelShow takes a show off sale.
//
// A show that has not started and still has confirmed bookings is only cancelled
// with force; its bookings are then cancelled in the same transaction on behalf of
// ShowCancelledActor. Cancelling an inactive show is a no-op.
//
// Returns:
//   - *CancelShowResult: the show and the references of the bookings cancelled with it.
//   - error: domain.ErrNotFound if the show does not exist.
//   - error: scheduler.ErrShowHasFutureBookings if force is needed but not given.
func (s *Service) CancelShow(ctx context.Context, showID int64, force bool) (*CancelShowResult, error) {
	const op = "service.scheduler.CancelShow"

	res := CancelShowResult{CancelledBookings: []string{}}
	err := s.uow.DoWithOpts(ctx, &repository.TxOptions{IsoLevel: repository.ReadCommitted}, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		res.CancelledBookings = res.CancelledBookings[:0]

		show, err := tx.Shows().LockShow(ctx, showID, true)
		if err != nil {
			return notFound(err, "show %d", showID)
		}
		res.Show = *show
		if !show.Active {
			return nil
		}

		now := s.cfg.Now()
		var events []notify.BookingEvent
		if show.Start.After(now) {
			confirmed, err := tx.Bookings().ListConfirmedByShow(ctx, showID)
			if err != nil {
				return err
			}
			if len(confirmed) > 0 && !force {
				return domain.Errorf(ErrShowHasFutureBookings, "%d confirmed bookings; cancel with force", len(confirmed))
			}

			for _, b := range confirmed {
				seats, err := tx.Bookings().ListBookingSeats(ctx, b.ID)
				if err != nil {
					return err
				}

				from := b.Status
				b.Status = domain.BookingCancelled
				b.CancelledBy = ShowCancelledActor
				b.CancelledAt = &now
				if err := tx.Bookings().TransitionBooking(ctx, &b, from); err != nil {
					return err
				}

				res.CancelledBookings = append(res.CancelledBookings, b.Reference)
				events = append(events, notify.NewBookingEvent(b, seats, ShowCancelledActor, now))
			}
		}

		if err := tx.Shows().SetShowActive(ctx, showID, false); err != nil {
			return err
		}
		res.Show.Active = false

		after(func(ctx context.Context) {
			s.notifier.ShowChanged(ctx, showID)
			for _, ev := range events {
				s.notifier.BookingChanged(ctx, ev)
			}
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(res.CancelledBookings) > 0 {
		s.logger.Warn("show cancelled with bookings",
			"show_id", showID, "bookings", len(res.CancelledBookings))
	}

	return &res, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Errorf(domain.ErrNotFound, format, args...)
	}
	return err
}
