package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/cinebook/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn in a transaction on a single connection. Errors from fn and from
// commit are translated, so serialization failures surface as repository.ErrRetryable.
func (s *Store) RunTx(
	ctx context.Context,
	opts *repository.TxOptions,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		if opts.IsoLevel == repository.ReadCommitted {
			txOpts.IsoLevel = pgx.ReadCommitted
		}
		if opts.ReadOnly {
			txOpts.AccessMode = pgx.ReadOnly
		}
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return translateDBErr(err)
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, txRepos{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit:%w", translateDBErr(err))
	}

	return nil
}

func (s *Store) Catalog() repository.Catalog   { return &CatalogRepo{pool: s.pool} }
func (s *Store) Shows() repository.Shows       { return &ShowRepo{pool: s.pool} }
func (s *Store) Bookings() repository.Bookings { return &BookingRepo{pool: s.pool} }

type txRepos struct {
	db DB
}

func (t txRepos) Catalog() repository.Catalog   { return (&CatalogRepo{}).With(t.db) }
func (t txRepos) Shows() repository.Shows       { return (&ShowRepo{}).With(t.db) }
func (t txRepos) Bookings() repository.Bookings { return (&BookingRepo{}).With(t.db) }

// inTx runs fn on db when the repository is already bound to a transaction,
// otherwise in a short read-committed transaction of its own.
func inTx(ctx context.Context, pool *pgxpool.Pool, db DB, fn func(db DB) error) error {
	if db != nil {
		return fn(db)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return translateDBErr(err)
	}

	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	return translateDBErr(tx.Commit(ctx))
}

// collect drains rows with scan, closing them.
func collect[T any](rows pgx.Rows, scan func(row pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
