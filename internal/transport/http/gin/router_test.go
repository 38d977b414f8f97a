package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/repository/memory"
	redisrepo "github.com/kirinyoku/cinebook/internal/repository/redis"
	"github.com/kirinyoku/cinebook/internal/service"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func issueToken(secret, subject, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is empty")
	}

	now := time.Now().UTC()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type memIdem struct {
	mu    sync.Mutex
	locks map[string]bool
	res   map[string]redisrepo.StoredResponse
}

func newMemIdem() *memIdem {
	return &memIdem{locks: map[string]bool{}, res: map[string]redisrepo.StoredResponse{}}
}

func (m *memIdem) GetResult(_ context.Context, key string) (redisrepo.StoredResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.res[key]
	return r, ok, nil
}

func (m *memIdem) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	if _, ok := m.res[key]; ok {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *memIdem) SaveResult(_ context.Context, key string, res redisrepo.StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	m.res[key] = res
	return nil
}

func (m *memIdem) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, int64, time.Duration, error) {
	return false, 11, 30 * time.Second, nil
}

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	admin  string
}

func newTestAPI(t *testing.T, deps service.Deps, idem IdempotencyStore) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svcs := service.NewServices(memory.New(), deps, logger, service.Config{})
	r := NewRouter(svcs, Options{JWTSecret: secret, Idempotency: idem}, logger)

	token, err := issueToken(secret, "7", RoleAdmin, time.Hour)
	require.NoError(t, err)

	return &testAPI{t: t, router: r, admin: token}
}

func (a *testAPI) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) adminDo(method, path string, body any) *httptest.ResponseRecorder {
	return a.do(method, path, body, map[string]string{"Authorization": "Bearer " + a.admin})
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type showFixture struct {
	showID int64
	seats  []int64
}

// seed creates a movie, a showroom with two seats and a show starting tomorrow.
func (a *testAPI) seed() showFixture {
	t := a.t
	t.Helper()

	w := a.adminDo(http.MethodPost, "/admin/movies", MovieRequest{Title: "Heat", DurationMinutes: 120})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	movie := decode[domain.Movie](t, w)

	w = a.adminDo(http.MethodPost, "/admin/showrooms", CreateShowroomRequest{Name: "Hall 1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	room := decode[domain.Showroom](t, w)

	w = a.adminDo(http.MethodPost, "/admin/seat-types", SeatTypeRequest{Name: "standard"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	std := decode[domain.SeatType](t, w)

	w = a.adminDo(http.MethodPost, fmt.Sprintf("/admin/showrooms/%d/seats", room.ID), BatchCreateSeatsRequest{
		Seats: []SeatInput{
			{Row: "a", Number: 1, SeatTypeID: std.ID},
			{Row: "a", Number: 2, SeatTypeID: std.ID},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	seats := decode[[]domain.Seat](t, w)
	require.Len(t, seats, 2)
	assert.Equal(t, "A", seats[0].Row)

	start := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	w = a.adminDo(http.MethodPost, "/admin/shows", ScheduleShowRequest{
		MovieID:    movie.ID,
		ShowroomID: room.ID,
		Start:      start.Format(time.RFC3339),
		End:        start.Add(150 * time.Minute).Format(time.RFC3339),
		BasePrice:  1200,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var scheduled struct {
		Show domain.Show `json:"show"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &scheduled))

	return showFixture{showID: scheduled.Show.ID, seats: []int64{seats[0].ID, seats[1].ID}}
}

func bookingBody(seats ...int64) CreateBookingRequest {
	return CreateBookingRequest{
		SeatIDs:  seats,
		Customer: domain.Customer{Name: "Alice", Email: "alice@example.com"},
	}
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t, service.Deps{}, nil)
	w := a.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAdminRequiresRole(t *testing.T) {
	a := newTestAPI(t, service.Deps{}, nil)

	w := a.do(http.MethodPost, "/admin/movies", MovieRequest{Title: "Heat", DurationMinutes: 120}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodPost, "/admin/movies", MovieRequest{Title: "Heat", DurationMinutes: 120},
		map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	customer, err := issueToken(secret, "42", "customer", time.Hour)
	require.NoError(t, err)
	w = a.do(http.MethodPost, "/admin/movies", MovieRequest{Title: "Heat", DurationMinutes: 120},
		map[string]string{"Authorization": "Bearer " + customer})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decode[ErrorResponse](t, w).Code)

	other, err := issueToken("other-secret", "7", RoleAdmin, time.Hour)
	require.NoError(t, err)
	w = a.do(http.MethodPost, "/admin/movies", MovieRequest{Title: "Heat", DurationMinutes: 120},
		map[string]string{"Authorization": "Bearer " + other})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBookingFlow(t *testing.T) {
	a := newTestAPI(t, service.Deps{}, nil)
	f := a.seed()

	w := a.do(http.MethodGet, fmt.Sprintf("/shows/%d/seats", f.showID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	seats := decode[[]domain.AvailableSeat](t, w)
	require.Len(t, seats, 2)
	assert.Equal(t, domain.Cents(1200), seats[0].Price)

	w = a.do(http.MethodPost, fmt.Sprintf("/shows/%d/bookings", f.showID), bookingBody(f.seats[0]), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[CreateBookingResponse](t, w)
	assert.NotEmpty(t, created.BookingRef)
	assert.Equal(t, domain.Cents(1200), created.TotalAmount)
	require.Len(t, created.Seats, 1)
	assert.Equal(t, BookedSeat{SeatID: f.seats[0], Row: "A", Number: 1, Price: 1200}, created.Seats[0])

	w = a.do(http.MethodPost, fmt.Sprintf("/shows/%d/bookings", f.showID), bookingBody(f.seats...), nil)
	require.Equal(t, http.StatusConflict, w.Code)
	conflict := decode[ErrorResponse](t, w)
	assert.Equal(t, "SEATS_UNAVAILABLE", conflict.Code)
	assert.Equal(t, []int64{f.seats[0]}, conflict.Seats)

	w = a.do(http.MethodGet, fmt.Sprintf("/shows/%d/availability", f.showID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[AvailabilityResponse](t, w).AvailableCount)

	w = a.do(http.MethodGet, "/bookings/"+created.BookingRef, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[domain.BookingWithSeats](t, w)
	assert.Equal(t, domain.BookingConfirmed, got.Booking.Status)

	w = a.do(http.MethodPost, "/bookings/"+created.BookingRef+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.BookingCancelled, decode[BookingStatusResponse](t, w).Status)

	w = a.do(http.MethodPost, "/bookings/"+created.BookingRef+"/cancel", nil, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_CANCELLED", decode[ErrorResponse](t, w).Code)

	w = a.do(http.MethodPost, fmt.Sprintf("/shows/%d/bookings", f.showID), bookingBody(f.seats...), nil)
	require.Equal(t, http.StatusCreated, w.Code, "released seat is bookable again")
}

func TestListShowsETag(t *testing.T) {
	a := newTestAPI(t, service.Deps{}, nil)
	f := a.seed()

	w := a.do(http.MethodGet, "/shows?only_available=true", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	shows := decode[[]domain.ShowAvailability](t, w)
	require.Len(t, shows, 1)
	assert.Equal(t, 2, shows[0].AvailableCount)
	assert.Equal(t, "Heat", shows[0].MovieTitle)

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	w = a.do(http.MethodGet, "/shows?only_available=true", nil, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = a.do(http.MethodPost, fmt.Sprintf("/shows/%d/bookings", f.showID), bookingBody(f.seats...), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(http.MethodGet, "/shows?only_available=true", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]domain.ShowAvailability](t, w), "sold out show is filtered")

	w = a.do(http.MethodGet, "/shows?from=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateBookingErrors(t *testing.T) {
	a := newTestAPI(t, service.Deps{}, nil)
	f := a.seed()
	path := fmt.Sprintf("/shows/%d/bookings", f.showID)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad email", path, CreateBookingRequest{SeatIDs: f.seats, Customer: domain.Customer{Name: "A", Email: "nope"}},
			http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
		{"no seats", path, bookingBody(), http.StatusUnprocessableEntity, "INVALID_SEAT_SELECTION"},
		{"unknown seat", path, bookingBody(9999), http.StatusUnprocessableEntity, "INVALID_SEAT_SELECTION"},
		{"unknown show", "/shows/9999/bookings", bookingBody(f.seats[0]), http.StatusNotFound, "NOT_FOUND"},
		{"bad show id", "/shows/abc/bookings", bookingBody(f.seats[0]), http.StatusBadRequest, "VALIDATION_FAILED"},
		{"malformed body", path, "not an object", http.StatusBadRequest, "VALIDATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(http.MethodPost, tt.path, tt.body, nil)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestCreateBookingRateLimited(t *testing.T) {
	a := newTestAPI(t, service.Deps{Limiter: denyLimiter{}}, nil)
	f := a.seed()

	w := a.do(http.MethodPost, fmt.Sprintf("/shows/%d/bookings", f.showID), bookingBody(f.seats[0]), nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decode[ErrorResponse](t, w).Code)
}

func TestCreateBookingIdempotent(t *testing.T) {
	idem := newMemIdem()
	a := newTestAPI(t, service.Deps{}, idem)
	f := a.seed()
	path := fmt.Sprintf("/shows/%d/bookings", f.showID)
	hdr := map[string]string{"Idempotency-Key": "k-1"}

	first := a.do(http.MethodPost, path, bookingBody(f.seats[0]), hdr)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Equal(t, "k-1", first.Header().Get("Idempotency-Key"))

	again := a.do(http.MethodPost, path, bookingBody(f.seats[0]), hdr)
	require.Equal(t, http.StatusCreated, again.Code, "replayed instead of SEATS_UNAVAILABLE")
	assert.JSONEq(t, first.Body.String(), again.Body.String())

	w := a.do(http.MethodPost, path, bookingBody(f.seats[0]), map[string]string{"Idempotency-Key": "k-2"})
	require.Equal(t, http.StatusConflict, w.Code)
	_, stored, _ := idem.GetResult(context.Background(), redisrepo.KeyIdemBooking(f.showID, "k-2"))
	assert.False(t, stored, "failed attempts are not remembered")
	assert.Empty(t, idem.locks, "lock released after failure")
}

func TestAdminShowManagement(t *testing.T) {
	a := newTestAPI(t, service.Deps{}, nil)
	f := a.seed()

	w := a.adminDo(http.MethodGet, fmt.Sprintf("/admin/shows/%d/prices", f.showID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	sheet := decode[[]domain.PriceSheetEntry](t, w)
	require.Len(t, sheet, 1)

	w = a.adminDo(http.MethodPut, fmt.Sprintf("/admin/shows/%d/prices/%d", f.showID, sheet[0].SeatTypeID), SetPriceRequest{Price: 900})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[domain.PriceSheetEntry](t, w).Override)

	w = a.do(http.MethodPost, fmt.Sprintf("/shows/%d/bookings", f.showID), bookingBody(f.seats[0]), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, domain.Cents(900), decode[CreateBookingResponse](t, w).TotalAmount)

	w = a.adminDo(http.MethodPost, fmt.Sprintf("/admin/shows/%d/cancel", f.showID), nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SHOW_HAS_FUTURE_BOOKINGS", decode[ErrorResponse](t, w).Code)

	w = a.adminDo(http.MethodPost, fmt.Sprintf("/admin/shows/%d/cancel?force=true", f.showID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		CancelledBookings []string `json:"cancelled_bookings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.CancelledBookings, 1)

	w = a.do(http.MethodPost, fmt.Sprintf("/shows/%d/bookings", f.showID), bookingBody(f.seats[1]), nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SHOW_NOT_BOOKABLE", decode[ErrorResponse](t, w).Code)

	w = a.adminDo(http.MethodGet, "/admin/bookings?email=ALICE@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]domain.Booking](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, domain.BookingCancelled, list[0].Status)
}

func TestAdminCatalogErrors(t *testing.T) {
	a := newTestAPI(t, service.Deps{}, nil)
	a.seed()

	w := a.adminDo(http.MethodPost, "/admin/showrooms", CreateShowroomRequest{Name: "Hall 1"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_NAME", decode[ErrorResponse](t, w).Code)

	w = a.adminDo(http.MethodPost, "/admin/movies", map[string]any{"title": "No duration"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.adminDo(http.MethodGet, "/admin/showrooms/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.adminDo(http.MethodPost, "/admin/bookings/CB-NOPE/complete", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
