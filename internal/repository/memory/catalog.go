package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/repository"
)

type CatalogRepo struct {
	h handle
}

func (r *CatalogRepo) CreateMovie(_ context.Context, m *domain.Movie) error {
	return r.h.update(func(st *state) error {
		now := r.h.now()
		m.ID = st.id()
		m.CreatedAt, m.UpdatedAt = now, now
		st.movies[m.ID] = *m
		return nil
	})
}

func (r *CatalogRepo) UpdateMovie(_ context.Context, m *domain.Movie) error {
	return r.h.update(func(st *state) error {
		cur, ok := st.movies[m.ID]
		if !ok {
			return repository.ErrNotFound
		}
		m.CreatedAt = cur.CreatedAt
		m.UpdatedAt = r.h.now()
		st.movies[m.ID] = *m
		return nil
	})
}

func (r *CatalogRepo) GetMovie(_ context.Context, id int64) (*domain.Movie, error) {
	var out domain.Movie
	err := r.h.view(func(st *state) error {
		m, ok := st.movies[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *CatalogRepo) ListMovies(_ context.Context) ([]domain.Movie, error) {
	var out []domain.Movie
	err := r.h.view(func(st *state) error {
		out = sortedValues(st.movies)
		return nil
	})
	return out, err
}

func (r *CatalogRepo) DeleteMovie(_ context.Context, id int64) error {
	return r.h.update(func(st *state) error {
		if _, ok := st.movies[id]; !ok {
			return repository.ErrNotFound
		}
		for _, s := range st.shows {
			if s.MovieID == id {
				return repository.ErrInUse
			}
		}
		delete(st.movies, id)
		return nil
	})
}

func (r *CatalogRepo) MovieHasShows(_ context.Context, id int64) (bool, error) {
	var found bool
	err := r.h.view(func(st *state) error {
		for _, s := range st.shows {
			if s.MovieID == id {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

func (r *CatalogRepo) CreateShowroom(_ context.Context, room *domain.Showroom) error {
	return r.h.update(func(st *state) error {
		for _, existing := range st.showrooms {
			if existing.Name == room.Name {
				return repository.ErrConflict
			}
		}
		room.ID = st.id()
		room.TotalSeats = 0
		room.CreatedAt = r.h.now()
		st.showrooms[room.ID] = *room
		return nil
	})
}

func (r *CatalogRepo) GetShowroom(_ context.Context, id int64) (*domain.Showroom, error) {
	var out domain.Showroom
	err := r.h.view(func(st *state) error {
		room, ok := st.showrooms[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *CatalogRepo) ListShowrooms(_ context.Context) ([]domain.Showroom, error) {
	var out []domain.Showroom
	err := r.h.view(func(st *state) error {
		out = sortedValues(st.showrooms)
		return nil
	})
	return out, err
}

func (r *CatalogRepo) CreateSeatType(_ context.Context, t *domain.SeatType) error {
	return r.h.update(func(st *state) error {
		for _, existing := range st.seatTypes {
			if existing.Name == t.Name {
				return repository.ErrConflict
			}
		}
		t.ID = st.id()
		t.CreatedAt = r.h.now()
		st.seatTypes[t.ID] = *t
		return nil
	})
}

func (r *CatalogRepo) UpdateSeatType(_ context.Context, t *domain.SeatType) error {
	return r.h.update(func(st *state) error {
		cur, ok := st.seatTypes[t.ID]
		if !ok {
			return repository.ErrNotFound
		}
		for _, existing := range st.seatTypes {
			if existing.ID != t.ID && existing.Name == t.Name {
				return repository.ErrConflict
			}
		}
		t.CreatedAt = cur.CreatedAt
		st.seatTypes[t.ID] = *t
		return nil
	})
}

func (r *CatalogRepo) GetSeatType(_ context.Context, id int64) (*domain.SeatType, error) {
	var out domain.SeatType
	err := r.h.view(func(st *state) error {
		t, ok := st.seatTypes[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *CatalogRepo) ListSeatTypes(_ context.Context) ([]domain.SeatType, error) {
	var out []domain.SeatType
	err := r.h.view(func(st *state) error {
		out = sortedValues(st.seatTypes)
		return nil
	})
	return out, err
}

func (r *CatalogRepo) SeatTypesInShowroom(_ context.Context, showroomID int64, onlyActive bool) ([]domain.SeatType, error) {
	var out []domain.SeatType
	err := r.h.view(func(st *state) error {
		seen := map[int64]bool{}
		for _, s := range st.seats {
			if s.ShowroomID != showroomID || (onlyActive && !s.Active) || seen[s.SeatTypeID] {
				continue
			}
			seen[s.SeatTypeID] = true
			if t, ok := st.seatTypes[s.SeatTypeID]; ok {
				out = append(out, t)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.SeatType) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

func (r *CatalogRepo) CreateSeat(_ context.Context, s *domain.Seat) error {
	return r.h.update(func(st *state) error {
		room, ok := st.showrooms[s.ShowroomID]
		if !ok {
			return repository.ErrNotFound
		}
		if _, ok := st.seatTypes[s.SeatTypeID]; !ok {
			return repository.ErrNotFound
		}
		key := seatKey{showroomID: s.ShowroomID, row: s.Row, number: s.Number}
		if _, taken := st.seatKeys[key]; taken {
			return repository.ErrConflict
		}
		s.ID = st.id()
		st.seats[s.ID] = *s
		st.seatKeys[key] = s.ID
		room.TotalSeats++
		st.showrooms[room.ID] = room
		return nil
	})
}

func (r *CatalogRepo) GetSeat(_ context.Context, id int64) (*domain.Seat, error) {
	var out domain.Seat
	err := r.h.view(func(st *state) error {
		s, ok := st.seats[id]
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

func (r *CatalogRepo) GetSeats(_ context.Context, ids []int64) ([]domain.Seat, error) {
	var out []domain.Seat
	err := r.h.view(func(st *state) error {
		seen := map[int64]bool{}
		for _, id := range ids {
			if s, ok := st.seats[id]; ok && !seen[id] {
				seen[id] = true
				out = append(out, s)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Seat) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

func (r *CatalogRepo) ListSeats(_ context.Context, showroomID int64, includeInactive bool) ([]domain.Seat, error) {
	var out []domain.Seat
	err := r.h.view(func(st *state) error {
		for _, s := range st.seats {
			if s.ShowroomID == showroomID && (includeInactive || s.Active) {
				out = append(out, s)
			}
		}
		return nil
	})
	sortSeats(out)
	return out, err
}

func (r *CatalogRepo) SetSeatActive(_ context.Context, id int64, active bool) error {
	return r.h.update(func(st *state) error {
		s, ok := st.seats[id]
		if !ok {
			return repository.ErrNotFound
		}
		s.Active = active
		st.seats[id] = s
		return nil
	})
}

func (r *CatalogRepo) DeleteSeat(_ context.Context, id int64) error {
	return r.h.update(func(st *state) error {
		s, ok := st.seats[id]
		if !ok {
			return repository.ErrNotFound
		}
		if st.referenced[id] {
			return repository.ErrInUse
		}
		delete(st.seats, id)
		delete(st.seatKeys, seatKey{showroomID: s.ShowroomID, row: s.Row, number: s.Number})
		if room, ok := st.showrooms[s.ShowroomID]; ok {
			room.TotalSeats--
			st.showrooms[room.ID] = room
		}
		return nil
	})
}

func (r *CatalogRepo) SeatHasBookings(_ context.Context, id int64) (bool, error) {
	var found bool
	err := r.h.view(func(st *state) error {
		found = st.referenced[id]
		return nil
	})
	return found, err
}

func sortedValues[T any](m map[int64]T) []T {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
