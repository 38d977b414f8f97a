package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/repository"
)

type ShowRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ShowRepo) With(db DB) *ShowRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ShowRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const showColumns = `id, movie_id, showroom_id, start_time, end_time, base_price_cents, is_active, created_at`

func scanShow(row pgx.Row) (domain.Show, error) {
	var s domain.Show
	err := row.Scan(&s.ID, &s.MovieID, &s.ShowroomID, &s.Start, &s.End, &s.BasePrice, &s.Active, &s.CreatedAt)
	return s, err
}

// CreateShow inserts a show.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - s: show to insert; ID and CreatedAt are set on success.
//
// Returns:
//   - error: repository.ErrOverlap if an active show of the showroom intersects [Start, End).
//   - error: repository.ErrInUse if the movie or showroom does not exist.
func (r *ShowRepo) CreateShow(ctx context.Context, s *domain.Show) error {
	const op = "postgres.ShowRepo.CreateShow"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO shows (movie_id, showroom_id, start_time, end_time, base_price_cents, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		s.MovieID, s.ShowroomID, s.Start, s.End, int64(s.BasePrice), s.Active,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *ShowRepo) GetShow(ctx context.Context, id int64) (*domain.Show, error) {
	const op = "postgres.ShowRepo.GetShow"

	s, err := scanShow(r.handle().QueryRow(ctx,
		`SELECT `+showColumns+` FROM shows WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &s, nil
}

// LockShow reads a show with FOR SHARE, or FOR UPDATE when exclusive. Bookings take
// the shared lock and show cancellation the exclusive one, so a booking never commits
// against a show that is being taken off sale; the loser re-reads is_active.
func (r *ShowRepo) LockShow(ctx context.Context, id int64, exclusive bool) (*domain.Show, error) {
	const op = "postgres.ShowRepo.LockShow"

	lock := "FOR SHARE"
	if exclusive {
		lock = "FOR UPDATE"
	}

	s, err := scanShow(r.handle().QueryRow(ctx,
		`SELECT `+showColumns+` FROM shows WHERE id = $1 `+lock, id))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &s, nil
}

func (r *ShowRepo) FindOverlapping(ctx context.Context, showroomID int64, start, end time.Time) ([]domain.Show, error) {
	const op = "postgres.ShowRepo.FindOverlapping"

	rows, err := r.handle().Query(ctx,
		`SELECT `+showColumns+`
		 FROM shows
		 WHERE showroom_id = $1 AND is_active
		   AND tstzrange(start_time, end_time, '[)') && tstzrange($2, $3, '[)')
		 ORDER BY start_time, id`,
		showroomID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, scanShow)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *ShowRepo) SetShowActive(ctx context.Context, id int64, active bool) error {
	const op = "postgres.ShowRepo.SetShowActive"

	tag, err := r.handle().Exec(ctx, `UPDATE shows SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// ListShows lists active shows with their movie title and showroom name.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - f: optional movie and start-time bounds; From is inclusive, To exclusive.
//
// Returns:
//   - []domain.ShowSummary: shows ordered by start time.
//   - error: any database error.
func (r *ShowRepo) ListShows(ctx context.Context, f domain.ShowFilter) ([]domain.ShowSummary, error) {
	const op = "postgres.ShowRepo.ListShows"

	rows, err := r.handle().Query(ctx,
		`SELECT s.id, s.movie_id, s.showroom_id, s.start_time, s.end_time, s.base_price_cents,
		        s.is_active, s.created_at, m.title, sr.name
		 FROM shows s
		 JOIN movies m ON m.id = s.movie_id
		 JOIN showrooms sr ON sr.id = s.showroom_id
		 WHERE s.is_active
		   AND ($1::bigint IS NULL OR s.movie_id = $1)
		   AND ($2::timestamptz IS NULL OR s.start_time >= $2)
		   AND ($3::timestamptz IS NULL OR s.start_time < $3)
		 ORDER BY s.start_time, s.id`,
		f.MovieID, f.From, f.To,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, func(row pgx.Row) (domain.ShowSummary, error) {
		var s domain.ShowSummary
		err := row.Scan(&s.ID, &s.MovieID, &s.ShowroomID, &s.Start, &s.End, &s.BasePrice,
			&s.Active, &s.CreatedAt, &s.MovieTitle, &s.ShowroomName)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *ShowRepo) ListUpcomingShows(ctx context.Context, showroomID int64, now time.Time) ([]domain.Show, error) {
	const op = "postgres.ShowRepo.ListUpcomingShows"

	rows, err := r.handle().Query(ctx,
		`SELECT `+showColumns+`
		 FROM shows
		 WHERE showroom_id = $1 AND is_active AND start_time > $2
		 ORDER BY start_time, id`,
		showroomID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, scanShow)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *ShowRepo) UpsertPrice(ctx context.Context, e domain.PriceSheetEntry) error {
	const op = "postgres.ShowRepo.UpsertPrice"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO show_prices (show_id, seat_type_id, price_cents, is_override)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (show_id, seat_type_id)
		 DO UPDATE SET price_cents = EXCLUDED.price_cents, is_override = EXCLUDED.is_override`,
		e.ShowID, e.SeatTypeID, int64(e.Price), e.Override,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *ShowRepo) InsertPriceIfMissing(ctx context.Context, e domain.PriceSheetEntry) (bool, error) {
	const op = "postgres.ShowRepo.InsertPriceIfMissing"

	tag, err := r.handle().Exec(ctx,
		`INSERT INTO show_prices (show_id, seat_type_id, price_cents, is_override)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (show_id, seat_type_id) DO NOTHING`,
		e.ShowID, e.SeatTypeID, int64(e.Price), e.Override,
	)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected() == 1, nil
}

func (r *ShowRepo) ListPrices(ctx context.Context, showID int64) ([]domain.PriceSheetEntry, error) {
	const op = "postgres.ShowRepo.ListPrices"

	rows, err := r.handle().Query(ctx,
		`SELECT show_id, seat_type_id, price_cents, is_override
		 FROM show_prices
		 WHERE show_id = $1
		 ORDER BY seat_type_id`,
		showID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, func(row pgx.Row) (domain.PriceSheetEntry, error) {
		var e domain.PriceSheetEntry
		err := row.Scan(&e.ShowID, &e.SeatTypeID, &e.Price, &e.Override)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}
