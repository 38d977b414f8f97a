package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/notify"
	"github.com/kirinyoku/cinebook/internal/repository"
	"github.com/kirinyoku/cinebook/internal/retry"
	"github.com/kirinyoku/cinebook/internal/telemetry"
	"github.com/kirinyoku/cinebook/internal/uow"
)

// CustomerActor is recorded for changes made by the booking's own customer.
const CustomerActor = "customer"

// Limiter admits or rejects a request for a client key.
type Limiter interface {
	Allow(ctx context.Context, id string) (allowed bool, current int64, retryAfter time.Duration, err error)
}

type Config struct {
	MaxSeatsPerBooking int
	Retry              retry.Config
	Now                func() time.Time
	NewReference       func() string
}

type Service struct {
	store    repository.Store
	uow      *uow.UoW
	limiter  Limiter
	notifier notify.Notifier
	retrier  *retry.Retrier
	logger   *slog.Logger
	cfg      Config
}

// New builds the booking engine. limiter may be nil to disable rate limiting.
func New(
	store repository.Store,
	limiter Limiter,
	notifier notify.Notifier,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.MaxSeatsPerBooking <= 0 {
		cfg.MaxSeatsPerBooking = 10
	}

	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.NewReference == nil {
		cfg.NewReference = NewReference
	}

	if notifier == nil {
		notifier = notify.Nop{}
	}

	s := &Service{
		store:    store,
		uow:      uow.NewUoW(store),
		limiter:  limiter,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}

	s.retrier = retry.New(cfg.Retry, retryable).OnRetry(func(attempt int, err error, next time.Duration) {
		s.logger.Debug("booking attempt failed, retrying",
			"attempt", attempt, "backoff", next, "error", err)
	})

	return s
}

func retryable(err error) bool {
	return errors.Is(err, repository.ErrRetryable) || errors.Is(err, errReferenceTaken)
}

type CreateRequest struct {
	ShowID   int64
	SeatIDs  []int64
	Customer domain.Customer
	// UserID is the authenticated user, empty for guests.
	UserID string
	// RateLimitKey identifies the client for rate limiting; empty skips the limiter.
	RateLimitKey string
}

// CreateBooking books every requested seat of a show for one customer, or none.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: show, seats, customer and client identity.
//
// Returns:
//   - *domain.BookingWithSeats: the confirmed booking with its priced seats.
//   - error: *domain.RateLimitedError if the client exceeded its request budget.
//   - error: domain.ErrValidation if the customer details are invalid.
//   - error: booking.ErrInvalidSeatSelection if the seat set is empty, too large or
//     names seats that do not belong to the show.
//   - error: domain.ErrNotFound if the show does not exist.
//   - error: booking.ErrShowNotBookable if the show is inactive or has started.
//   - error: *booking.SeatsUnavailableError if another booking holds any of the seats.
//   - error: booking.ErrBookingContended if transient conflicts outlasted the retry budget.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (_ *domain.BookingWithSeats, err error) {
	const op = "service.booking.CreateBooking"

	ctx, span := telemetry.StartSpan(ctx, "booking.CreateBooking",
		attribute.Int64("show.id", req.ShowID),
		attribute.Int("seats.requested", len(req.SeatIDs)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.admit(ctx, req.RateLimitKey); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	customer := req.Customer.Normalize()
	if err := customer.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	seatIDs, err := s.normalizeSeats(req.SeatIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var out *domain.BookingWithSeats
	attempts, err := s.retrier.Do(ctx, func(ctx context.Context) error {
		res, err := s.tryCreate(ctx, req.ShowID, seatIDs, customer, req.UserID)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	span.SetAttributes(attribute.Int("booking.attempts", attempts))
	if err != nil {
		if errors.Is(err, retry.ErrMaxRetriesExceeded) {
			s.logger.Warn("booking gave up under contention",
				"show_id", req.ShowID, "attempts", attempts, "error", err)
			return nil, fmt.Errorf("%s: %w", op, domain.Errorf(ErrBookingContended, "%d attempts", attempts))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	span.SetAttributes(attribute.String("booking.reference", out.Booking.Reference))
	s.logger.Info("booking confirmed",
		"reference", out.Booking.Reference,
		"show_id", out.Booking.ShowID,
		"seats", len(out.Seats),
		"total", out.Booking.TotalAmount.String(),
		"attempts", attempts,
	)

	return out, nil
}

func (s *Service) admit(ctx context.Context, key string) error {
	if s.limiter == nil || key == "" {
		return nil
	}

	ok, _, retryAfter, err := s.limiter.Allow(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.RateLimitedError{RetryAfterSeconds: int(math.Ceil(retryAfter.Seconds()))}
	}

	return nil
}

// normalizeSeats sorts and de-duplicates the requested seat IDs.
func (s *Service) normalizeSeats(ids []int64) ([]int64, error) {
	out := slices.Clone(ids)
	slices.Sort(out)
	out = slices.Compact(out)

	switch {
	case len(out) == 0:
		return nil, domain.Errorf(ErrInvalidSeatSelection, "no seats selected")
	case len(out) > s.cfg.MaxSeatsPerBooking:
		return nil, domain.Errorf(ErrInvalidSeatSelection, "at most %d seats per booking", s.cfg.MaxSeatsPerBooking)
	case out[0] <= 0:
		return nil, &InvalidSeatsError{SeatIDs: []int64{out[0]}}
	}

	return out, nil
}

// tryCreate is one booking attempt in its own transaction. seatIDs must be sorted and unique.
func (s *Service) tryCreate(
	ctx context.Context,
	showID int64,
	seatIDs []int64,
	customer domain.Customer,
	userID string,
) (*domain.BookingWithSeats, error) {
	var out *domain.BookingWithSeats

	err := s.uow.DoWithOpts(ctx, &repository.TxOptions{IsoLevel: repository.ReadCommitted}, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		now := s.cfg.Now()

		show, err := tx.Shows().LockShow(ctx, showID, false)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Errorf(domain.ErrNotFound, "show %d", showID)
			}
			return err
		}
		switch {
		case !show.Active:
			return domain.Errorf(ErrShowNotBookable, "show %d is cancelled", showID)
		case !show.Bookable(now):
			return domain.Errorf(ErrShowNotBookable, "show %d has already started", showID)
		}

		seats, err := tx.Catalog().GetSeats(ctx, seatIDs)
		if err != nil {
			return err
		}
		if bad := invalidSeats(seatIDs, seats, show.ShowroomID); len(bad) > 0 {
			return &InvalidSeatsError{SeatIDs: bad}
		}

		prices, err := tx.Shows().ListPrices(ctx, showID)
		if err != nil {
			return err
		}
		sheet := domain.NewPriceSheet(prices)

		rows := make([]domain.BookingSeat, 0, len(seats))
		var total domain.Cents
		for _, seat := range seats {
			price, ok := sheet.PriceFor(seat)
			if !ok {
				s.logger.Error("seat has no price",
					"show_id", showID, "seat_id", seat.ID, "seat_type_id", seat.SeatTypeID)
				return domain.Errorf(domain.ErrPricingInconsistency,
					"show %d has no price for seat type %d", showID, seat.SeatTypeID)
			}
			total += price
			rows = append(rows, domain.BookingSeat{
				SeatID: seat.ID,
				ShowID: showID,
				Price:  price,
				Row:    seat.Row,
				Number: seat.Number,
			})
		}

		taken, err := tx.Bookings().TakenSeats(ctx, showID, seatIDs)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return &SeatsUnavailableError{SeatIDs: taken}
		}

		b := domain.Booking{
			ShowID:      showID,
			UserID:      userID,
			Reference:   s.cfg.NewReference(),
			Customer:    customer,
			TotalAmount: total,
			Status:      domain.BookingConfirmed,
		}
		if err := tx.Bookings().InsertBooking(ctx, &b); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%w: %s", errReferenceTaken, b.Reference)
			}
			return err
		}

		for i := range rows {
			rows[i].BookingID = b.ID
		}
		taken, err = tx.Bookings().AcquireSeats(ctx, rows)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return &SeatsUnavailableError{SeatIDs: taken}
		}

		out = &domain.BookingWithSeats{Booking: b, Seats: rows}

		after(func(ctx context.Context) {
			s.notifier.BookingChanged(ctx, notify.NewBookingEvent(b, rows, CustomerActor, now))
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// invalidSeats returns the requested IDs that are missing from seats, inactive, or
// belong to another showroom.
func invalidSeats(requested []int64, seats []domain.Seat, showroomID int64) []int64 {
	found := make(map[int64]domain.Seat, len(seats))
	for _, s := range seats {
		found[s.ID] = s
	}

	var bad []int64
	for _, id := range requested {
		s, ok := found[id]
		if !ok || !s.Active || s.ShowroomID != showroomID {
			bad = append(bad, id)
		}
	}
	return bad
}

// GetBooking returns a booking with the row, number and price of each of its seats.
func (s *Service) GetBooking(ctx context.Context, ref string) (*domain.BookingWithSeats, error) {
	const op = "service.booking.GetBooking"

	var out domain.BookingWithSeats
	err := s.store.RunTx(ctx, &repository.TxOptions{IsoLevel: repository.ReadCommitted, ReadOnly: true}, func(
		ctx context.Context,
		tx repository.Repos,
	) error {
		b, err := tx.Bookings().GetBookingByRef(ctx, ref)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Errorf(domain.ErrNotFound, "booking %s", ref)
			}
			return err
		}

		seats, err := tx.Bookings().ListBookingSeats(ctx, b.ID)
		if err != nil {
			return err
		}

		out = domain.BookingWithSeats{Booking: *b, Seats: seats}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// ListCustomerBookings returns every booking made with the email, newest first.
func (s *Service) ListCustomerBookings(ctx context.Context, email string) ([]domain.Booking, error) {
	const op = "service.booking.ListCustomerBookings"

	email = domain.Customer{Email: email}.Normalize().Email
	if email == "" {
		return nil, fmt.Errorf("%s: %w", op, domain.Errorf(domain.ErrValidation, "email is required"))
	}

	bookings, err := s.store.Bookings().ListByCustomerEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if bookings == nil {
		bookings = []domain.Booking{}
	}

	return bookings, nil
}
