package httpgin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	redisrepo "github.com/kirinyoku/cinebook/internal/repository/redis"
	"github.com/kirinyoku/cinebook/internal/service"
	"github.com/kirinyoku/cinebook/internal/service/availability"
	"github.com/kirinyoku/cinebook/internal/service/booking"
)

const idemLockTTL = 60 * time.Second

// IdempotencyStore remembers booking responses by Idempotency-Key.
type IdempotencyStore interface {
	GetResult(ctx context.Context, key string) (redisrepo.StoredResponse, bool, error)
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	SaveResult(ctx context.Context, key string, res redisrepo.StoredResponse) error
	Release(ctx context.Context, key string) error
}

type Options struct {
	// JWTSecret verifies bearer tokens. When empty the admin API is not protected.
	JWTSecret   string
	CORSOrigins []string
	// Idempotency may be nil, in which case Idempotency-Key headers are ignored.
	Idempotency IdempotencyStore
}

func NewRouter(
	svcs *service.Services,
	opts Options,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}
	r.Use(LoggingMiddleware(logger), RequestIDMiddleware(), CORS(opts.CORSOrigins), OptionalAuth(opts.JWTSecret))

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/movies", handleListMovies(svcs))
	r.GET("/movies/:id", handleGetMovie(svcs))

	r.GET("/shows", handleListShows(svcs))
	r.GET("/shows/:id", handleGetShow(svcs))
	r.GET("/shows/:id/seats", handleListAvailableSeats(svcs))
	r.GET("/shows/:id/availability", handleGetAvailability(svcs))
	r.POST("/shows/:id/bookings", handleCreateBooking(svcs, opts.Idempotency))

	r.GET("/bookings/:ref", handleGetBooking(svcs))
	r.POST("/bookings/:ref/cancel", handleCancelBooking(svcs))

	// Admin API
	admin := r.Group("/admin")
	if opts.JWTSecret != "" {
		admin.Use(RequireRole(RoleAdmin, RoleOwner))
	} else {
		logger.Warn("JWT secret is empty, admin API is not protected")
	}
	registerAdmin(admin, svcs)

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List movies
// @Tags     movies
// @Success  200  {array}  domain.Movie
// @Router   /movies [get]
func handleListMovies(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		movies, err := svcs.Catalog.ListMovies(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, movies, "public, max-age=60", true)
	}
}

// @Summary  Get movie
// @Tags     movies
// @Param    id  path  int  true  "Movie ID"
// @Success  200  {object}  domain.Movie
// @Failure  404  {object}  ErrorResponse
// @Router   /movies/{id} [get]
func handleGetMovie(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		m, err := svcs.Catalog.GetMovie(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, m, "public, max-age=60", true)
	}
}

// @Summary  List shows with free seat counts
// @Tags     shows
// @Param    movie_id        query  int     false  "Movie ID"
// @Param    from            query  string  false  "RFC3339, inclusive, defaults to now"
// @Param    to              query  string  false  "RFC3339, exclusive"
// @Param    only_available  query  bool    false  "hide sold out shows"
// @Success  200  {array}   domain.ShowAvailability
// @Failure  400  {object}  ErrorResponse
// @Router   /shows [get]
func handleListShows(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q availability.ShowQuery

		if s := c.Query("movie_id"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				badRequest(c, "invalid movie_id")
				return
			}
			q.MovieID = &id
		}
		for _, p := range []struct {
			name string
			dst  **time.Time
		}{{"from", &q.From}, {"to", &q.To}} {
			s := c.Query(p.name)
			if s == "" {
				continue
			}
			t, err := parseRFC3339(s)
			if err != nil {
				badRequest(c, "invalid "+p.name+" (RFC3339)")
				return
			}
			*p.dst = &t
		}
		if s := c.Query("only_available"); s != "" {
			v, err := strconv.ParseBool(s)
			if err != nil {
				badRequest(c, "invalid only_available")
				return
			}
			q.OnlyWithAvailability = v
		}

		shows, err := svcs.Availability.ListShows(c.Request.Context(), q)
		if err != nil {
			respondErr(c, err)
			return
		}
		// counts change with every booking
		writeJSONWithCache(c, http.StatusOK, shows, "public, max-age=5", true)
	}
}

// @Summary  Get show
// @Tags     shows
// @Param    id  path  int  true  "Show ID"
// @Success  200  {object}  domain.Show
// @Failure  404  {object}  ErrorResponse
// @Router   /shows/{id} [get]
func handleGetShow(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		show, err := svcs.Scheduler.GetShow(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, show)
	}
}

// @Summary  List available seats with prices
// @Tags     shows
// @Param    id  path  int  true  "Show ID"
// @Success  200  {array}   domain.AvailableSeat
// @Failure  404  {object}  ErrorResponse
// @Router   /shows/{id}/seats [get]
func handleListAvailableSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		seats, err := svcs.Availability.ListAvailableSeats(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, seats)
	}
}

// @Summary  Count available seats
// @Tags     shows
// @Param    id  path  int  true  "Show ID"
// @Success  200  {object}  AvailabilityResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /shows/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		n, err := svcs.Availability.AvailableCount(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, AvailabilityResponse{ShowID: id, AvailableCount: n}, "public, max-age=5", true)
	}
}

// @Summary  Book seats (idempotent)
// @Tags     bookings
// @Param    id   path  int                   true  "Show ID"
// @Param    req  body  CreateBookingRequest  true  "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} CreateBookingResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "seats unavailable / show not bookable / idem in progress"
// @Failure  422 {object} ErrorResponse
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /shows/{id}/bookings [post]
func handleCreateBooking(svcs *service.Services, idem IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		showID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ctx := c.Request.Context()
		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(showID, idemKey)

			if res, ok, _ := idem.GetResult(ctx, idemStorageKey); ok {
				replay(c, idemKey, res)
				return
			}

			locked, err := idem.AcquireLock(ctx, idemStorageKey, idemLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if res, ok, _ := idem.GetResult(ctx, idemStorageKey); ok {
					replay(c, idemKey, res)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{
					Code:  "IDEMPOTENCY_IN_PROGRESS",
					Error: "idempotency key in progress",
				})
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()
		if uid := userID(c); uid != "" {
			rlKey = "user:" + uid
		}

		res, err := svcs.Booking.CreateBooking(ctx, booking.CreateRequest{
			ShowID:       showID,
			SeatIDs:      req.SeatIDs,
			Customer:     req.Customer,
			UserID:       userID(c),
			RateLimitKey: rlKey,
		})
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := CreateBookingResponse{
			BookingRef:  res.Booking.Reference,
			TotalAmount: res.Booking.TotalAmount,
			Seats:       bookedSeats(res.Seats),
		}

		if idemStorageKey != "" {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(ctx, idemStorageKey, redisrepo.StoredResponse{Status: http.StatusCreated, Body: b})
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func replay(c *gin.Context, idemKey string, res redisrepo.StoredResponse) {
	c.Header("Idempotency-Key", idemKey)
	c.Data(res.Status, "application/json; charset=utf-8", res.Body)
}

// @Summary  Get booking with seats
// @Tags     bookings
// @Param    ref  path  string  true  "Booking reference"
// @Success  200 {object} domain.BookingWithSeats
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{ref} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := svcs.Booking.GetBooking(c.Request.Context(), c.Param("ref"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Cancel booking
// @Tags     bookings
// @Param    ref  path  string  true  "Booking reference"
// @Success  200 {object} BookingStatusResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "already cancelled / completed"
// @Router   /bookings/{ref}/cancel [post]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := svcs.Lifecycle.CancelBooking(c.Request.Context(), c.Param("ref"), actor(c, booking.CustomerActor))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, BookingStatusResponse{BookingRef: b.Reference, Status: b.Status})
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}
