package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/notify"
	"github.com/kirinyoku/cinebook/internal/repository"
	"github.com/kirinyoku/cinebook/internal/telemetry"
	"github.com/kirinyoku/cinebook/internal/uow"
)

// SystemActor is recorded for transitions made by the completion worker.
const SystemActor = "system:lifecycle"

type Config struct {
	Now func() time.Time
	// BatchSize bounds how many bookings one CompleteEnded call completes.
	BatchSize int
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

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
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

// CancelBooking cancels a confirmed booking and releases its seats in the same
// transaction. The seats can be booked again as soon as it commits.
//
// Parameters:
//   - ctx: request-scoped context.
//   - ref: booking reference.
//   - actor: who cancels, recorded on the booking.
//
// Returns:
//   - *domain.Booking: the cancelled booking.
//   - error: domain.ErrNotFound if no booking has the reference.
//   - error: lifecycle.ErrAlreadyCancelled or lifecycle.ErrAlreadyCompleted if the
//     booking left the confirmed state before.
func (s *Service) CancelBooking(ctx context.Context, ref, actor string) (_ *domain.Booking, err error) {
	const op = "service.lifecycle.CancelBooking"

	ctx, span := telemetry.StartSpan(ctx, "lifecycle.CancelBooking", attribute.String("booking.reference", ref))
	defer func() { telemetry.EndSpan(span, err) }()

	b, err := s.transition(ctx, ref, domain.BookingCancelled, actor, s.cfg.Now(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("booking cancelled", "reference", ref, "show_id", b.ShowID, "actor", actor)

	return b, nil
}

// CompleteBooking marks a confirmed booking as completed once its show has ended.
//
// Returns:
//   - *domain.Booking: the completed booking.
//   - error: domain.ErrNotFound if no booking has the reference.
//   - error: lifecycle.ErrShowNotEnded if the show end is not in the past.
//   - error: lifecycle.ErrAlreadyCancelled or lifecycle.ErrAlreadyCompleted.
func (s *Service) CompleteBooking(ctx context.Context, ref, actor string) (*domain.Booking, error) {
	const op = "service.lifecycle.CompleteBooking"

	b, err := s.transition(ctx, ref, domain.BookingCompleted, actor, s.cfg.Now(), s.requireEnded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

func (s *Service) requireEnded(ctx context.Context, tx repository.Repos, b *domain.Booking, now time.Time) error {
	show, err := tx.Shows().GetShow(ctx, b.ShowID)
	if err != nil {
		return err
	}
	if !show.End.Before(now) {
		return domain.Errorf(ErrShowNotEnded, "show %d ends at %s", show.ID, show.End.Format(time.RFC3339))
	}
	return nil
}

type guard func(ctx context.Context, tx repository.Repos, b *domain.Booking, now time.Time) error

// transition moves the booking to next under a row lock, recording actor and now.
func (s *Service) transition(
	ctx context.Context,
	ref string,
	next domain.BookingStatus,
	actor string,
	now time.Time,
	check guard,
) (*domain.Booking, error) {
	var out *domain.Booking

	err := s.uow.DoWithOpts(ctx, &repository.TxOptions{IsoLevel: repository.ReadCommitted}, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		b, err := tx.Bookings().LockBookingByRef(ctx, ref)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Errorf(domain.ErrNotFound, "booking %s", ref)
			}
			return err
		}

		if err := stateErr(b); err != nil {
			return err
		}
		if !b.Status.CanTransitionTo(next) {
			return fmt.Errorf("booking %s: %s -> %s not allowed", ref, b.Status, next)
		}

		if check != nil {
			if err := check(ctx, tx, b, now); err != nil {
				return err
			}
		}

		seats, err := tx.Bookings().ListBookingSeats(ctx, b.ID)
		if err != nil {
			return err
		}

		from := b.Status
		b.Status = next
		switch next {
		case domain.BookingCancelled:
			b.CancelledBy = actor
			b.CancelledAt = &now
		case domain.BookingCompleted:
			b.CompletedAt = &now
		}

		if err := tx.Bookings().TransitionBooking(ctx, b, from); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				cur, gerr := tx.Bookings().GetBookingByRef(ctx, ref)
				if gerr == nil {
					if serr := stateErr(cur); serr != nil {
						return serr
					}
				}
			}
			return err
		}

		out = b
		ev := notify.NewBookingEvent(*b, seats, actor, now)
		after(func(ctx context.Context) {
			s.notifier.BookingChanged(ctx, ev)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func stateErr(b *domain.Booking) error {
	switch b.Status {
	case domain.BookingCancelled:
		return domain.Errorf(ErrAlreadyCancelled, "booking %s", b.Reference)
	case domain.BookingCompleted:
		return domain.Errorf(ErrAlreadyCompleted, "booking %s", b.Reference)
	}
	return nil
}

// CompleteEnded completes up to limit confirmed bookings whose show ended before now.
// A limit of zero or less uses the configured batch size. Bookings that change state
// concurrently are skipped. It returns how many bookings were completed.
func (s *Service) CompleteEnded(ctx context.Context, now time.Time, limit int) (int, error) {
	const op = "service.lifecycle.CompleteEnded"

	if limit <= 0 {
		limit = s.cfg.BatchSize
	}

	due, err := s.store.Bookings().ListEndedConfirmed(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	done := 0
	var errs []error
	for _, b := range due {
		if err := ctx.Err(); err != nil {
			return done, fmt.Errorf("%s: %w", op, err)
		}

		_, err := s.transition(ctx, b.Reference, domain.BookingCompleted, SystemActor, now, s.requireEnded)
		switch {
		case err == nil:
			done++
		case errors.Is(err, ErrAlreadyCancelled), errors.Is(err, ErrAlreadyCompleted):
		default:
			s.logger.Error("complete booking failed", "reference", b.Reference, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Reference, err))
		}
	}

	if len(errs) > 0 {
		return done, fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}

	return done, nil
}
