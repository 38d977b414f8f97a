package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

type Movie struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	Genre           string    `json:"genre,omitempty"`
	Language        string    `json:"language,omitempty"`
	Rating          string    `json:"rating,omitempty"`
	PosterURL       string    `json:"poster_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Duration returns the running time of the movie.
func (m Movie) Duration() time.Duration {
	return time.Duration(m.DurationMinutes) * time.Minute
}

type Showroom struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	TotalSeats int             `json:"total_seats"`
	Layout     json.RawMessage `json:"layout,omitempty"` // opaque, stored as-is
	CreatedAt  time.Time       `json:"created_at"`
}

type SeatType struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	PremiumBP   BasisPoints `json:"premium_bp"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

type Seat struct {
	ID         int64  `json:"id"`
	ShowroomID int64  `json:"showroom_id"`
	SeatTypeID int64  `json:"seat_type_id"`
	Row        string `json:"row"`
	Number     int    `json:"number"`
	Position   string `json:"position,omitempty"`
	Active     bool   `json:"active"`
}

// Label renders the seat the way it is printed on a ticket, e.g. "A12".
func (s Seat) Label() string {
	return s.Row + strconv.Itoa(s.Number)
}

type Show struct {
	ID         int64     `json:"id"`
	MovieID    int64     `json:"movie_id"`
	ShowroomID int64     `json:"showroom_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	BasePrice  Cents     `json:"base_price"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Overlaps reports whether the half-open windows [Start, End) and [start, end) intersect.
func (s Show) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && start.Before(s.End)
}

// Bookable reports whether seats for the show may still be sold at now.
func (s Show) Bookable(now time.Time) bool {
	return s.Active && s.Start.After(now)
}

type PriceSheetEntry struct {
	ShowID     int64 `json:"show_id"`
	SeatTypeID int64 `json:"seat_type_id"`
	Price      Cents `json:"price"`
	Override   bool  `json:"override"`
}

// ShowSummary is a show joined with the names a listing needs.
type ShowSummary struct {
	Show
	MovieTitle   string `json:"movie_title"`
	ShowroomName string `json:"showroom_name"`
}

type ShowFilter struct {
	MovieID *int64
	From    *time.Time
	To      *time.Time
}

type Customer struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

type Booking struct {
	ID          int64         `json:"id"`
	ShowID      int64         `json:"show_id"`
	UserID      string        `json:"user_id,omitempty"`
	Reference   string        `json:"reference"`
	Customer    Customer      `json:"customer"`
	TotalAmount Cents         `json:"total_amount"`
	Status      BookingStatus `json:"status"`
	CancelledBy string        `json:"cancelled_by,omitempty"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type BookingSeat struct {
	BookingID int64  `json:"booking_id"`
	SeatID    int64  `json:"seat_id"`
	ShowID    int64  `json:"show_id"`
	Price     Cents  `json:"price"`
	Released  bool   `json:"released"`
	Row       string `json:"row,omitempty"`
	Number    int    `json:"number,omitempty"`
}

type BookingWithSeats struct {
	Booking Booking       `json:"booking"`
	Seats   []BookingSeat `json:"seats"`
}

// AvailableSeat is a free seat of a show with the price it would sell for.
type AvailableSeat struct {
	SeatID     int64  `json:"seat_id"`
	Row        string `json:"row"`
	Number     int    `json:"number"`
	SeatTypeID int64  `json:"seat_type_id"`
	SeatType   string `json:"seat_type"`
	Price      Cents  `json:"price"`
}

// ShowAvailability is a listing row: a show and how many seats are still free.
type ShowAvailability struct {
	ShowSummary
	AvailableCount int `json:"available_count"`
}
