package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/repository"
	"github.com/kirinyoku/cinebook/internal/repository/memory"
)

func TestDo_RunsHooksAfterCommit(t *testing.T) {
	store := memory.New()
	u := NewUoW(store)
	ctx := context.Background()

	var calls []string
	err := u.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(AfterCommit)) error {
		m := domain.Movie{Title: "Heat", DurationMinutes: 170}
		if err := tx.Catalog().CreateMovie(ctx, &m); err != nil {
			return err
		}
		after(func(context.Context) { calls = append(calls, "first") })
		after(func(context.Context) { calls = append(calls, "second") })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)

	movies, err := store.Catalog().ListMovies(ctx)
	require.NoError(t, err)
	assert.Len(t, movies, 1)
}

func TestDo_SkipsHooksOnRollback(t *testing.T) {
	store := memory.New()
	u := NewUoW(store)
	ctx := context.Background()
	boom := errors.New("boom")

	called := false
	err := u.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(AfterCommit)) error {
		m := domain.Movie{Title: "Heat", DurationMinutes: 170}
		if err := tx.Catalog().CreateMovie(ctx, &m); err != nil {
			return err
		}
		after(func(context.Context) { called = true })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)

	movies, err := store.Catalog().ListMovies(ctx)
	require.NoError(t, err)
	assert.Empty(t, movies)
}

func TestDo_HookContextSurvivesCancel(t *testing.T) {
	u := NewUoW(memory.New())
	ctx, cancel := context.WithCancel(context.Background())

	var hookErr error
	err := u.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(AfterCommit)) error {
		after(func(ctx context.Context) { hookErr = ctx.Err() })
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, hookErr)
}
