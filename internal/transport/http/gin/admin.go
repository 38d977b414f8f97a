package httpgin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/cinebook/internal/domain"
	"github.com/kirinyoku/cinebook/internal/service"
	"github.com/kirinyoku/cinebook/internal/service/catalog"
	"github.com/kirinyoku/cinebook/internal/service/scheduler"
)

func registerAdmin(g *gin.RouterGroup, svcs *service.Services) {
	g.POST("/movies", handleCreateMovie(svcs))
	g.PUT("/movies/:id", handleUpdateMovie(svcs))
	g.DELETE("/movies/:id", handleDeleteMovie(svcs))

	g.POST("/showrooms", handleCreateShowroom(svcs))
	g.GET("/showrooms", handleListShowrooms(svcs))
	g.GET("/showrooms/:id", handleGetShowroom(svcs))
	g.POST("/showrooms/:id/seats", handleBatchCreateSeats(svcs))
	g.GET("/showrooms/:id/seats", handleListSeats(svcs))

	g.POST("/seat-types", handleCreateSeatType(svcs))
	g.GET("/seat-types", handleListSeatTypes(svcs))
	g.PUT("/seat-types/:id", handleUpdateSeatType(svcs))

	g.POST("/seats/:id/deactivate", handleSetSeatActive(svcs, false))
	g.POST("/seats/:id/reactivate", handleSetSeatActive(svcs, true))
	g.DELETE("/seats/:id", handleDeleteSeat(svcs))

	g.POST("/shows", handleScheduleShow(svcs))
	g.GET("/shows/:id/prices", handleGetPriceSheet(svcs))
	g.PUT("/shows/:id/prices/:seatTypeId", handleSetPrice(svcs))
	g.POST("/shows/:id/cancel", handleCancelShow(svcs))

	g.GET("/bookings", handleListCustomerBookings(svcs))
	g.POST("/bookings/:ref/cancel", handleAdminCancelBooking(svcs))
	g.POST("/bookings/:ref/complete", handleCompleteBooking(svcs))
}

// @Summary  Create movie
// @Tags     admin
// @Security BearerAuth
// @Param    req body  MovieRequest true "payload"
// @Success  201 {object} domain.Movie
// @Failure  422 {object} ErrorResponse
// @Router   /admin/movies [post]
func handleCreateMovie(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MovieRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		m, err := svcs.Catalog.CreateMovie(c.Request.Context(), req.movie(0))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, m)
	}
}

// @Summary  Update movie
// @Tags     admin
// @Security BearerAuth
// @Param    id  path  int  true  "Movie ID"
// @Param    req body  MovieRequest true "payload"
// @Success  200 {object} domain.Movie
// @Failure  409 {object} ErrorResponse "duration locked by scheduled shows"
// @Router   /admin/movies/{id} [put]
func handleUpdateMovie(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req MovieRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		m, err := svcs.Catalog.UpdateMovie(c.Request.Context(), req.movie(id))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

// @Summary  Delete movie
// @Tags     admin
// @Security BearerAuth
// @Param    id  path  int  true  "Movie ID"
// @Success  204
// @Failure  409 {object} ErrorResponse "movie has shows"
// @Router   /admin/movies/{id} [delete]
func handleDeleteMovie(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		respondErr(c, svcs.Catalog.DeleteMovie(c.Request.Context(), id))
	}
}

// @Summary  Create showroom
// @Tags     admin
// @Security BearerAuth
// @Param    req body  CreateShowroomRequest true "payload"
// @Success  201 {object} domain.Showroom
// @Failure  409 {object} ErrorResponse "duplicate name"
// @Router   /admin/showrooms [post]
func handleCreateShowroom(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateShowroomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		room, err := svcs.Catalog.CreateShowroom(c.Request.Context(), req.Name, req.Layout)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, room)
	}
}

// @Summary  List showrooms
// @Tags     admin
// @Security BearerAuth
// @Success  200 {array} domain.Showroom
// @Router   /admin/showrooms [get]
func handleListShowrooms(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms, err := svcs.Catalog.ListShowrooms(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, rooms)
	}
}

// @Summary  Get showroom
// @Tags     admin
// @Security BearerAuth
// @Param    id  path  int  true  "Showroom ID"
// @Success  200 {object} domain.Showroom
// @Failure  404 {object} ErrorResponse
// @Router   /admin/showrooms/{id} [get]
func handleGetShowroom(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		room, err := svcs.Catalog.GetShowroom(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

// @Summary  Batch create seats
// @Description All seats are created or none is.
// @Tags     admin
// @Security BearerAuth
// @Param    id  path  int  true  "Showroom ID"
// @Param    req body  BatchCreateSeatsRequest true "payload"
// @Success  201 {array} domain.Seat
// @Failure  409 {object} ErrorResponse "duplicate seat"
// @Router   /admin/showrooms/{id}/seats [post]
func handleBatchCreateSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req BatchCreateSeatsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		specs := make([]catalog.SeatSpec, 0, len(req.Seats))
		for _, s := range req.Seats {
			specs = append(specs, catalog.SeatSpec{
				Row:        s.Row,
				Number:     s.Number,
				SeatTypeID: s.SeatTypeID,
				Position:   s.Position,
			})
		}
		seats, err := svcs.Catalog.CreateSeats(c.Request.Context(), roomID, specs)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, seats)
	}
}

// @Summary  List showroom seats
// @Tags     admin
// @Security BearerAuth
// @Param    id                path   int   true   "Showroom ID"
// @Param    include_inactive  query  bool  false  "include deactivated seats"
// @Success  200 {array} domain.Seat
// @Router   /admin/showrooms/{id}/seats [get]
func handleListSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		all, _ := strconv.ParseBool(c.Query("include_inactive"))
		seats, err := svcs.Catalog.ListSeats(c.Request.Context(), roomID, all)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, seats)
	}
}

// @Summary  Create seat type
// @Tags     admin
// @Security BearerAuth
// @Param    req body  SeatTypeRequest true "payload"
// @Success  201 {object} domain.SeatType
// @Router   /admin/seat-types [post]
func handleCreateSeatType(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SeatTypeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		t, err := svcs.Catalog.CreateSeatType(c.Request.Context(), domain.SeatType{
			Name:        req.Name,
			PremiumBP:   req.PremiumBP,
			Description: req.Description,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

// @Summary  List seat types
// @Tags     admin
// @Security BearerAuth
// @Success  200 {array} domain.SeatType
// @Router   /admin/seat-types [get]
func handleListSeatTypes(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		types, err := svcs.Catalog.ListSeatTypes(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, types)
	}
}

// @Summary  Update seat type
// @Description Existing price sheets are not recomputed.
// @Tags     admin
// @Security BearerAuth
// @Param    id  path  int  true  "Seat type ID"
// @Param    req body  SeatTypeRequest true "payload"
// @Success  200 {object} domain.SeatType
// @Router   /admin/seat-types/{id} [put]
func handleUpdateSeatType(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req SeatTypeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		t, err := svcs.Catalog.UpdateSeatType(c.Request.Context(), domain.SeatType{
			ID:          id,
			Name:        req.Name,
			PremiumBP:   req.PremiumBP,
			Description: req.Description,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// @Summary  Deactivate or reactivate seat
// @Tags     admin
// @Security BearerAuth
// @Param    id  path  int  true  "Seat ID"
// @Success  200 {object} domain.Seat
// @Failure  404 {object} ErrorResponse
// @Router   /admin/seats/{id}/deactivate [post]
// @Router   /admin/seats/{id}/reactivate [post]
func handleSetSeatActive(svcs *service.Services, active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var (
			seat *domain.Seat
			err  error
		)
		if active {
			seat, err = svcs.Catalog.ReactivateSeat(c.Request.Context(), id)
		} else {
			seat, err = svcs.Catalog.DeactivateSeat(c.Request.Context(), id)
		}
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, seat)
	}
}

// @Summary  Delete seat
// @Tags     admin
// @Security BearerAuth
// @Param    id  path  int  true  "Seat ID"
// @Success  204
// @Failure  409 {object} ErrorResponse "seat has bookings"
// @Router   /admin/seats/{id} [delete]
func handleDeleteSeat(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		respondErr(c, svcs.Catalog.DeleteSeat(c.Request.Context(), id))
	}
}

// @Summary  Schedule show
// @Tags     admin
// @Security BearerAuth
// @Param    req body  ScheduleShowRequest true "payload"
// @Success  201 {object} scheduler.ScheduledShow
// @Failure  409 {object} ErrorResponse "overlapping show"
// @Failure  422 {object} ErrorResponse
// @Router   /admin/shows [post]
func handleScheduleShow(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScheduleShowRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		start, err := parseRFC3339(req.Start)
		if err != nil {
			badRequest(c, "invalid start (RFC3339)")
			return
		}
		end, err := parseRFC3339(req.End)
		if err != nil {
			badRequest(c, "invalid end (RFC3339)")
			return
		}
		show, err := svcs.Scheduler.ScheduleShow(c.Request.Context(), scheduler.ScheduleRequest{
			MovieID:    req.MovieID,
			ShowroomID: req.ShowroomID,
			Start:      start,
			End:        end,
			BasePrice:  req.BasePrice,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, show)
	}
}

// @Summary  Get price sheet
// @Tags     admin
// @Security BearerAuth
// @Param    id  path  int  true  "Show ID"
// @Success  200 {array} domain.PriceSheetEntry
// @Router   /admin/shows/{id}/prices [get]
func handleGetPriceSheet(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		sheet, err := svcs.Scheduler.GetPriceSheet(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, sheet)
	}
}

// @Summary  Override seat type price
// @Tags     admin
// @Security BearerAuth
// @Param    id          path  int  true  "Show ID"
// @Param    seatTypeId  path  int  true  "Seat type ID"
// @Param    req body  SetPriceRequest true "payload"
// @Success  200 {object} domain.PriceSheetEntry
// @Failure  422 {object} ErrorResponse "unknown seat type"
// @Router   /admin/shows/{id}/prices/{seatTypeId} [put]
func handleSetPrice(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		showID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		typeID, ok := parseInt64Param(c, "seatTypeId")
		if !ok {
			return
		}
		var req SetPriceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		e, err := svcs.Scheduler.SetPrice(c.Request.Context(), showID, typeID, req.Price)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// @Summary  Cancel show
// @Tags     admin
// @Security BearerAuth
// @Param    id     path   int   true   "Show ID"
// @Param    force  query  bool  false  "also cancel confirmed bookings"
// @Success  200 {object} scheduler.CancelShowResult
// @Failure  409 {object} ErrorResponse "show has future bookings"
// @Router   /admin/shows/{id}/cancel [post]
func handleCancelShow(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		force, _ := strconv.ParseBool(c.Query("force"))
		res, err := svcs.Scheduler.CancelShow(c.Request.Context(), id, force)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  List bookings of a customer
// @Tags     admin
// @Security BearerAuth
// @Param    email  query  string  true  "Customer email"
// @Success  200 {array} domain.Booking
// @Router   /admin/bookings [get]
func handleListCustomerBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.Query("email")
		if email == "" {
			badRequest(c, "email is required")
			return
		}
		list, err := svcs.Booking.ListCustomerBookings(c.Request.Context(), email)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Cancel booking on behalf of the customer
// @Tags     admin
// @Security BearerAuth
// @Param    ref  path  string  true  "Booking reference"
// @Success  200 {object} BookingStatusResponse
// @Router   /admin/bookings/{ref}/cancel [post]
func handleAdminCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := svcs.Lifecycle.CancelBooking(c.Request.Context(), c.Param("ref"), actor(c, RoleAdmin))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, BookingStatusResponse{BookingRef: b.Reference, Status: b.Status})
	}
}

// @Summary  Complete booking
// @Tags     admin
// @Security BearerAuth
// @Param    ref  path  string  true  "Booking reference"
// @Success  200 {object} BookingStatusResponse
// @Failure  409 {object} ErrorResponse "show not ended / already cancelled"
// @Router   /admin/bookings/{ref}/complete [post]
func handleCompleteBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := svcs.Lifecycle.CompleteBooking(c.Request.Context(), c.Param("ref"), actor(c, RoleAdmin))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, BookingStatusResponse{BookingRef: b.Reference, Status: b.Status})
	}
}
