package httpgin

import (
	"encoding/json"
	"time"

	"github.com/kirinyoku/cinebook/internal/domain"
)

type CreateBookingRequest struct {
	SeatIDs  []int64         `json:"seat_ids"`
	Customer domain.Customer `json:"customer"`
}

type BookedSeat struct {
	SeatID int64        `json:"seat_id"`
	Row    string       `json:"row"`
	Number int          `json:"number"`
	Price  domain.Cents `json:"price"`
}

type CreateBookingResponse struct {
	BookingRef  string       `json:"booking_ref"`
	TotalAmount domain.Cents `json:"total_amount"`
	Seats       []BookedSeat `json:"seats"`
}

type BookingStatusResponse struct {
	BookingRef string               `json:"booking_ref"`
	Status     domain.BookingStatus `json:"status"`
}

type AvailabilityResponse struct {
	ShowID         int64 `json:"show_id"`
	AvailableCount int   `json:"available_count"`
}

type MovieRequest struct {
	Title           string `json:"title" binding:"required"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,gt=0"`
	Genre           string `json:"genre"`
	Language        string `json:"language"`
	Rating          string `json:"rating"`
	PosterURL       string `json:"poster_url"`
}

func (r MovieRequest) movie(id int64) domain.Movie {
	return domain.Movie{
		ID:              id,
		Title:           r.Title,
		Description:     r.Description,
		DurationMinutes: r.DurationMinutes,
		Genre:           r.Genre,
		Language:        r.Language,
		Rating:          r.Rating,
		PosterURL:       r.PosterURL,
	}
}

type CreateShowroomRequest struct {
	Name   string          `json:"name" binding:"required"`
	Layout json.RawMessage `json:"layout,omitempty"`
}

type SeatTypeRequest struct {
	Name        string             `json:"name" binding:"required"`
	PremiumBP   domain.BasisPoints `json:"premium_bp"`
	Description string             `json:"description"`
}

type SeatInput struct {
	Row        string `json:"row" binding:"required"`
	Number     int    `json:"number" binding:"required,gt=0"`
	SeatTypeID int64  `json:"seat_type_id" binding:"required,gt=0"`
	Position   string `json:"position"`
}

type BatchCreateSeatsRequest struct {
	Seats []SeatInput `json:"seats" binding:"required,min=1,dive"`
}

type ScheduleShowRequest struct {
	MovieID    int64        `json:"movie_id" binding:"required"`
	ShowroomID int64        `json:"showroom_id" binding:"required"`
	Start      string       `json:"start" binding:"required"`
	End        string       `json:"end" binding:"required"`
	BasePrice  domain.Cents `json:"base_price"`
}

type SetPriceRequest struct {
	Price domain.Cents `json:"price"`
}

type CreatedResponse struct {
	ID int64 `json:"id"`
}

type ErrorResponse struct {
	Code  string  `json:"code"`
	Error string  `json:"error"`
	Seats []int64 `json:"seats,omitempty"`
}

func bookedSeats(seats []domain.BookingSeat) []BookedSeat {
	out := make([]BookedSeat, 0, len(seats))
	for _, s := range seats {
		out = append(out, BookedSeat{SeatID: s.SeatID, Row: s.Row, Number: s.Number, Price: s.Price})
	}
	return out
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
