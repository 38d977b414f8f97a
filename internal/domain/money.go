package domain

import "fmt"

// Cents is an amount of money in minor currency units.
type Cents int64

// String formats the amount with two decimals, e.g. 1500 -> "15.00".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// BasisPoints expresses a percentage with two decimals of precision: 5000 == 50.00 %.
type BasisPoints int64

const bpScale = 10000

// PercentToBasisPoints converts a percentage such as 12.5 to basis points, rounding half away from zero.
func PercentToBasisPoints(pct float64) BasisPoints {
	if pct < 0 {
		return BasisPoints(pct*100 - 0.5)
	}
	return BasisPoints(pct*100 + 0.5)
}

// Percent returns bp as a percentage value.
func (bp BasisPoints) Percent() float64 {
	return float64(bp) / 100
}

// ApplyPremium returns base × (1 + premium) rounded half-up to the cent.
func ApplyPremium(base Cents, premium BasisPoints) Cents {
	return Cents((int64(base)*(bpScale+int64(premium)) + bpScale/2) / bpScale)
}

// PriceSheet maps seat type IDs to the price of a seat of that type for one show.
type PriceSheet map[int64]Cents

// NewPriceSheet indexes entries by seat type.
func NewPriceSheet(entries []PriceSheetEntry) PriceSheet {
	ps := make(PriceSheet, len(entries))
	for _, e := range entries {
		ps[e.SeatTypeID] = e.Price
	}
	return ps
}

// PriceFor resolves the price of seat. ok is false when the sheet has no entry for its type.
func (ps PriceSheet) PriceFor(seat Seat) (price Cents, ok bool) {
	price, ok = ps[seat.SeatTypeID]
	return price, ok
}

// DefaultPriceEntries computes the non-override entries a freshly scheduled show gets
// for the given seat types.
func DefaultPriceEntries(show Show, types []SeatType) []PriceSheetEntry {
	out := make([]PriceSheetEntry, 0, len(types))
	for _, t := range types {
		out = append(out, PriceSheetEntry{
			ShowID:     show.ID,
			SeatTypeID: t.ID,
			Price:      ApplyPremium(show.BasePrice, t.PremiumBP),
		})
	}
	return out
}
