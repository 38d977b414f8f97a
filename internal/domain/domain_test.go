package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPremium(t *testing.T) {
	tests := []struct {
		name    string
		base    Cents
		premium BasisPoints
		want    Cents
	}{
		{"no premium", 1000, 0, 1000},
		{"vip fifty percent", 1000, 5000, 1500},
		{"rounds half up", 999, 5000, 1499}, // 1498.5
		{"fractional percent", 1250, 1250, 1406},
		{"free show stays free", 0, 5000, 0},
		{"double price", 800, 10000, 1600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyPremium(tt.base, tt.premium))
		})
	}
}

func TestPercentToBasisPoints(t *testing.T) {
	assert.Equal(t, BasisPoints(5000), PercentToBasisPoints(50))
	assert.Equal(t, BasisPoints(1250), PercentToBasisPoints(12.5))
	assert.Equal(t, BasisPoints(1), PercentToBasisPoints(0.01))
	assert.Equal(t, 12.5, BasisPoints(1250).Percent())
}

func TestCentsString(t *testing.T) {
	assert.Equal(t, "15.00", Cents(1500).String())
	assert.Equal(t, "0.05", Cents(5).String())
	assert.Equal(t, "-2.50", Cents(-250).String())
}

func TestDefaultPriceEntries(t *testing.T) {
	show := Show{ID: 7, BasePrice: 1000}
	types := []SeatType{
		{ID: 1, Name: "normal", PremiumBP: 0},
		{ID: 2, Name: "vip", PremiumBP: 5000},
	}

	entries := DefaultPriceEntries(show, types)
	require.Len(t, entries, 2)

	sheet := NewPriceSheet(entries)
	p, ok := sheet.PriceFor(Seat{SeatTypeID: 1})
	assert.True(t, ok)
	assert.Equal(t, Cents(1000), p)

	p, ok = sheet.PriceFor(Seat{SeatTypeID: 2})
	assert.True(t, ok)
	assert.Equal(t, Cents(1500), p)

	_, ok = sheet.PriceFor(Seat{SeatTypeID: 3})
	assert.False(t, ok)
}

func TestBookingStatusTransitions(t *testing.T) {
	assert.True(t, BookingConfirmed.CanTransitionTo(BookingCancelled))
	assert.True(t, BookingConfirmed.CanTransitionTo(BookingCompleted))

	for _, from := range []BookingStatus{BookingCancelled, BookingCompleted} {
		for _, to := range []BookingStatus{BookingConfirmed, BookingCancelled, BookingCompleted} {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
		assert.True(t, from.IsTerminal())
	}

	assert.False(t, BookingConfirmed.CanTransitionTo(BookingConfirmed))
	assert.False(t, BookingStatus("refunded").IsValid())
	assert.True(t, BookingCompleted.HoldsSeats())
	assert.False(t, BookingCancelled.HoldsSeats())
}

func TestShowOverlaps(t *testing.T) {
	base := time.Date(2030, 1, 1, 18, 0, 0, 0, time.UTC)
	show := Show{Start: base, End: base.Add(2 * time.Hour)}

	assert.True(t, show.Overlaps(base.Add(time.Hour), base.Add(3*time.Hour)))
	assert.True(t, show.Overlaps(base.Add(-time.Hour), base.Add(time.Minute)))
	assert.True(t, show.Overlaps(base.Add(30*time.Minute), base.Add(time.Hour)))
	assert.False(t, show.Overlaps(base.Add(2*time.Hour), base.Add(4*time.Hour)), "end is exclusive")
	assert.False(t, show.Overlaps(base.Add(-2*time.Hour), base))
}

func TestErrorMatching(t *testing.T) {
	detailed := Errorf(ErrValidation, "seat %d", 4)
	wrapped := fmt.Errorf("op: %w", detailed)

	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindValidation, KindOf(wrapped))
	assert.Equal(t, "VALIDATION_FAILED", CodeOf(wrapped))
	assert.Equal(t, "validation failed: seat 4", detailed.Error())

	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "INTERNAL", CodeOf(errors.New("boom")))

	rl := fmt.Errorf("op: %w", &RateLimitedError{RetryAfterSeconds: 3})
	assert.Equal(t, KindRateLimited, KindOf(rl))
	assert.True(t, errors.Is(rl, ErrRateLimited))
}

func TestCustomerValidate(t *testing.T) {
	ok := Customer{Name: " Ada ", Email: " Ada@Example.com "}.Normalize()
	require.NoError(t, ok.Validate())
	assert.Equal(t, "ada@example.com", ok.Email)
	assert.Equal(t, "Ada", ok.Name)

	err := Customer{Name: "", Email: "not-an-email"}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "name (required)")
	assert.Contains(t, err.Error(), "email (email)")
}
