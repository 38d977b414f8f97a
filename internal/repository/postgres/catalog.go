package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/repository"
)

type CatalogRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const movieColumns = `id, title, description, duration_minutes, genre, language, rating, poster_url, created_at, updated_at`

func scanMovie(row pgx.Row) (domain.Movie, error) {
	var m domain.Movie
	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.DurationMinutes, &m.Genre,
		&m.Language, &m.Rating, &m.PosterURL, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// CreateMovie inserts a movie and fills in its ID and timestamps.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - m: movie to insert; ID, CreatedAt and UpdatedAt are set on success.
//
// Returns:
//   - error: any database error.
func (r *CatalogRepo) CreateMovie(ctx context.Context, m *domain.Movie) error {
	const op = "postgres.CatalogRepo.CreateMovie"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO movies (title, description, duration_minutes, genre, language, rating, poster_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		m.Title, m.Description, m.DurationMinutes, m.Genre, m.Language, m.Rating, m.PosterURL,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *CatalogRepo) UpdateMovie(ctx context.Context, m *domain.Movie) error {
	const op = "postgres.CatalogRepo.UpdateMovie"

	err := r.handle().QueryRow(ctx,
		`UPDATE movies
		 SET title = $2, description = $3, duration_minutes = $4, genre = $5,
		     language = $6, rating = $7, poster_url = $8, updated_at = now()
		 WHERE id = $1
		 RETURNING created_at, updated_at`,
		m.ID, m.Title, m.Description, m.DurationMinutes, m.Genre, m.Language, m.Rating, m.PosterURL,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *CatalogRepo) GetMovie(ctx context.Context, id int64) (*domain.Movie, error) {
	const op = "postgres.CatalogRepo.GetMovie"

	m, err := scanMovie(r.handle().QueryRow(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &m, nil
}

func (r *CatalogRepo) ListMovies(ctx context.Context) ([]domain.Movie, error) {
	const op = "postgres.CatalogRepo.ListMovies"

	rows, err := r.handle().Query(ctx, `SELECT `+movieColumns+` FROM movies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, scanMovie)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

// DeleteMovie removes a movie that no show references.
//
// Returns:
//   - error: repository.ErrNotFound if the movie does not exist.
//   - error: repository.ErrInUse if a show still references it.
func (r *CatalogRepo) DeleteMovie(ctx context.Context, id int64) error {
	const op = "postgres.CatalogRepo.DeleteMovie"

	tag, err := r.handle().Exec(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *CatalogRepo) MovieHasShows(ctx context.Context, id int64) (bool, error) {
	const op = "postgres.CatalogRepo.MovieHasShows"

	var found bool
	err := r.handle().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM shows WHERE movie_id = $1)`, id,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return found, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *CatalogRepo) CreateShowroom(ctx context.Context, room *domain.Showroom) error {
	const op = "postgres.CatalogRepo.CreateShowroom"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO showrooms (name, layout)
		 VALUES ($1, $2)
		 RETURNING id, total_seats, created_at`,
		room.Name, nullableJSON(room.Layout),
	).Scan(&room.ID, &room.TotalSeats, &room.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func scanShowroom(row pgx.Row) (domain.Showroom, error) {
	var (
		room   domain.Showroom
		layout []byte
	)
	if err := row.Scan(&room.ID, &room.Name, &room.TotalSeats, &layout, &room.CreatedAt); err != nil {
		return room, err
	}
	if len(layout) > 0 {
		room.Layout = json.RawMessage(layout)
	}
	return room, nil
}

func (r *CatalogRepo) GetShowroom(ctx context.Context, id int64) (*domain.Showroom, error) {
	const op = "postgres.CatalogRepo.GetShowroom"

	room, err := scanShowroom(r.handle().QueryRow(ctx,
		`SELECT id, name, total_seats, layout, created_at FROM showrooms WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &room, nil
}

func (r *CatalogRepo) ListShowrooms(ctx context.Context) ([]domain.Showroom, error) {
	const op = "postgres.CatalogRepo.ListShowrooms"

	rows, err := r.handle().Query(ctx,
		`SELECT id, name, total_seats, layout, created_at FROM showrooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, scanShowroom)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

const seatTypeColumns = `id, name, premium_bp, description, created_at`

func scanSeatType(row pgx.Row) (domain.SeatType, error) {
	var t domain.SeatType
	err := row.Scan(&t.ID, &t.Name, &t.PremiumBP, &t.Description, &t.CreatedAt)
	return t, err
}

func (r *CatalogRepo) CreateSeatType(ctx context.Context, t *domain.SeatType) error {
	const op = "postgres.CatalogRepo.CreateSeatType"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO seat_types (name, premium_bp, description)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		t.Name, int64(t.PremiumBP), t.Description,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *CatalogRepo) UpdateSeatType(ctx context.Context, t *domain.SeatType) error {
	const op = "postgres.CatalogRepo.UpdateSeatType"

	err := r.handle().QueryRow(ctx,
		`UPDATE seat_types SET name = $2, premium_bp = $3, description = $4
		 WHERE id = $1
		 RETURNING created_at`,
		t.ID, t.Name, int64(t.PremiumBP), t.Description,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *CatalogRepo) GetSeatType(ctx context.Context, id int64) (*domain.SeatType, error) {
	const op = "postgres.CatalogRepo.GetSeatType"

	t, err := scanSeatType(r.handle().QueryRow(ctx,
		`SELECT `+seatTypeColumns+` FROM seat_types WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &t, nil
}

func (r *CatalogRepo) ListSeatTypes(ctx context.Context) ([]domain.SeatType, error) {
	const op = "postgres.CatalogRepo.ListSeatTypes"

	rows, err := r.handle().Query(ctx, `SELECT `+seatTypeColumns+` FROM seat_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, scanSeatType)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

// SeatTypesInShowroom lists the seat types used by the showroom's seats.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - showroomID: showroom whose seats are inspected.
//   - onlyActive: ignore deactivated seats.
//
// Returns:
//   - []domain.SeatType: distinct seat types ordered by ID.
//   - error: any database error.
func (r *CatalogRepo) SeatTypesInShowroom(ctx context.Context, showroomID int64, onlyActive bool) ([]domain.SeatType, error) {
	const op = "postgres.CatalogRepo.SeatTypesInShowroom"

	rows, err := r.handle().Query(ctx,
		`SELECT `+seatTypeColumns+`
		 FROM seat_types t
		 WHERE EXISTS (
		     SELECT 1 FROM seats s
		     WHERE s.seat_type_id = t.id AND s.showroom_id = $1 AND (s.is_active OR NOT $2)
		 )
		 ORDER BY id`,
		showroomID, onlyActive,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, scanSeatType)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

const seatColumns = `id, showroom_id, seat_type_id, row_label, seat_number, position, is_active`

func scanSeat(row pgx.Row) (domain.Seat, error) {
	var s domain.Seat
	err := row.Scan(&s.ID, &s.ShowroomID, &s.SeatTypeID, &s.Row, &s.Number, &s.Position, &s.Active)
	return s, err
}

// CreateSeat inserts a seat and bumps the showroom's seat count in the same statement.
//
// Returns:
//   - error: repository.ErrConflict if (showroom, row, number) already exists.
func (r *CatalogRepo) CreateSeat(ctx context.Context, s *domain.Seat) error {
	const op = "postgres.CatalogRepo.CreateSeat"

	err := r.handle().QueryRow(ctx,
		`WITH ins AS (
		     INSERT INTO seats (showroom_id, seat_type_id, row_label, seat_number, position, is_active)
		     VALUES ($1, $2, $3, $4, $5, $6)
		     RETURNING id, showroom_id
		 ), bump AS (
		     UPDATE showrooms SET total_seats = total_seats + 1
		     WHERE id IN (SELECT showroom_id FROM ins)
		 )
		 SELECT id FROM ins`,
		s.ShowroomID, s.SeatTypeID, s.Row, s.Number, s.Position, s.Active,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *CatalogRepo) GetSeat(ctx context.Context, id int64) (*domain.Seat, error) {
	const op = "postgres.CatalogRepo.GetSeat"

	s, err := scanSeat(r.handle().QueryRow(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &s, nil
}

func (r *CatalogRepo) GetSeats(ctx context.Context, ids []int64) ([]domain.Seat, error) {
	const op = "postgres.CatalogRepo.GetSeats"

	rows, err := r.handle().Query(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, scanSeat)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *CatalogRepo) ListSeats(ctx context.Context, showroomID int64, includeInactive bool) ([]domain.Seat, error) {
	const op = "postgres.CatalogRepo.ListSeats"

	rows, err := r.handle().Query(ctx,
		`SELECT `+seatColumns+`
		 FROM seats
		 WHERE showroom_id = $1 AND (is_active OR $2)
		 ORDER BY row_label, seat_number`,
		showroomID, includeInactive,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out, err := collect(rows, scanSeat)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *CatalogRepo) SetSeatActive(ctx context.Context, id int64, active bool) error {
	const op = "postgres.CatalogRepo.SetSeatActive"

	tag, err := r.handle().Exec(ctx, `UPDATE seats SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// DeleteSeat removes a seat that never appeared in a booking.
//
// Returns:
//   - error: repository.ErrNotFound if the seat does not exist.
//   - error: repository.ErrInUse if a booking seat references it.
func (r *CatalogRepo) DeleteSeat(ctx context.Context, id int64) error {
	const op = "postgres.CatalogRepo.DeleteSeat"

	var deleted int
	err := r.handle().QueryRow(ctx,
		`WITH del AS (
		     DELETE FROM seats WHERE id = $1 RETURNING showroom_id
		 ), shrink AS (
		     UPDATE showrooms SET total_seats = total_seats - 1
		     WHERE id IN (SELECT showroom_id FROM del)
		 )
		 SELECT count(*) FROM del`,
		id,
	).Scan(&deleted)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if deleted == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *CatalogRepo) SeatHasBookings(ctx context.Context, id int64) (bool, error) {
	const op = "postgres.CatalogRepo.SeatHasBookings"

	var found bool
	err := r.handle().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM booking_seats WHERE seat_id = $1)`, id,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return found, nil
}
