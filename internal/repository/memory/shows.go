package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/repository"
)

type ShowRepo struct {
	h handle
}

func overlapping(st *state, showroomID int64, start, end time.Time, skip int64) []domain.Show {
	var out []domain.Show
	for _, s := range st.shows {
		if s.ID == skip || !s.Active || s.ShowroomID != showroomID {
			continue
		}
		if s.Overlaps(start, end) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, compareShows)
	return out
}

func compareShows(a, b domain.Show) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (r *ShowRepo) CreateShow(_ context.Context, s *domain.Show) error {
	return r.h.update(func(st *state) error {
		if _, ok := st.movies[s.MovieID]; !ok {
			return repository.ErrNotFound
		}
		if _, ok := st.showrooms[s.ShowroomID]; !ok {
			return repository.ErrNotFound
		}
		if s.Active && len(overlapping(st, s.ShowroomID, s.Start, s.End, 0)) > 0 {
			return repository.ErrOverlap
		}
		s.ID = st.id()
		s.CreatedAt = r.h.now()
		st.shows[s.ID] = *s
		return nil
	})
}

func (r *ShowRepo) GetShow(_ context.Context, id int64) (*domain.Show, error) {
	var out domain.Show
	err := r.h.view(func(st *state) error {
		s, ok := st.shows[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockShow is GetShow: transactions already run one at a time.
func (r *ShowRepo) LockShow(ctx context.Context, id int64, _ bool) (*domain.Show, error) {
	return r.GetShow(ctx, id)
}

func (r *ShowRepo) FindOverlapping(_ context.Context, showroomID int64, start, end time.Time) ([]domain.Show, error) {
	var out []domain.Show
	err := r.h.view(func(st *state) error {
		out = overlapping(st, showroomID, start, end, 0)
		return nil
	})
	return out, err
}

func (r *ShowRepo) SetShowActive(_ context.Context, id int64, active bool) error {
	return r.h.update(func(st *state) error {
		s, ok := st.shows[id]
		if !ok {
			return repository.ErrNotFound
		}
		if active && !s.Active && len(overlapping(st, s.ShowroomID, s.Start, s.End, s.ID)) > 0 {
			return repository.ErrOverlap
		}
		s.Active = active
		st.shows[id] = s
		return nil
	})
}

func (r *ShowRepo) ListShows(_ context.Context, f domain.ShowFilter) ([]domain.ShowSummary, error) {
	var out []domain.ShowSummary
	err := r.h.view(func(st *state) error {
		var shows []domain.Show
		for _, s := range st.shows {
			switch {
			case !s.Active:
			case f.MovieID != nil && s.MovieID != *f.MovieID:
			case f.From != nil && s.Start.Before(*f.From):
			case f.To != nil && !s.Start.Before(*f.To):
			default:
				shows = append(shows, s)
			}
		}
		slices.SortFunc(shows, compareShows)

		out = make([]domain.ShowSummary, 0, len(shows))
		for _, s := range shows {
			out = append(out, domain.ShowSummary{
				Show:         s,
				MovieTitle:   st.movies[s.MovieID].Title,
				ShowroomName: st.showrooms[s.ShowroomID].Name,
			})
		}
		return nil
	})
	return out, err
}

func (r *ShowRepo) ListUpcomingShows(_ context.Context, showroomID int64, now time.Time) ([]domain.Show, error) {
	var out []domain.Show
	err := r.h.view(func(st *state) error {
		for _, s := range st.shows {
			if s.Active && s.ShowroomID == showroomID && s.Start.After(now) {
				out = append(out, s)
			}
		}
		return nil
	})
	slices.SortFunc(out, compareShows)
	return out, err
}

func (r *ShowRepo) UpsertPrice(_ context.Context, e domain.PriceSheetEntry) error {
	return r.h.update(func(st *state) error {
		if _, ok := st.shows[e.ShowID]; !ok {
			return repository.ErrNotFound
		}
		st.prices[priceKey{showID: e.ShowID, seatTypeID: e.SeatTypeID}] = e
		return nil
	})
}

func (r *ShowRepo) InsertPriceIfMissing(_ context.Context, e domain.PriceSheetEntry) (bool, error) {
	var added bool
	err := r.h.update(func(st *state) error {
		if _, ok := st.shows[e.ShowID]; !ok {
			return repository.ErrNotFound
		}
		key := priceKey{showID: e.ShowID, seatTypeID: e.SeatTypeID}
		if _, ok := st.prices[key]; ok {
			return nil
		}
		st.prices[key] = e
		added = true
		return nil
	})
	return added, err
}

func (r *ShowRepo) ListPrices(_ context.Context, showID int64) ([]domain.PriceSheetEntry, error) {
	var out []domain.PriceSheetEntry
	err := r.h.view(func(st *state) error {
		for k, e := range st.prices {
			if k.showID == showID {
				out = append(out, e)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.PriceSheetEntry) int { return cmp.Compare(a.SeatTypeID, b.SeatTypeID) })
	return out, err
}
