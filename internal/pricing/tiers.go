package pricing

import (
	"errors"
	"fmt"
)

// ErrInvalidSchedule is returned when a price schedule breaks the tier ordering rules.
var ErrInvalidSchedule = errors.New("invalid price schedule")

// Tier maps a quantity range to a unit price. A nil MaxQuantity means unbounded.
type Tier struct {
	MinQuantity int   `json:"minQuantity" yaml:"min"`
	MaxQuantity *int  `json:"maxQuantity,omitempty" yaml:"max,omitempty"`
	UnitPrice   Money `json:"unitPrice" yaml:"price"`
}

// Contains reports whether quantity falls inside the tier range.
func (t Tier) Contains(quantity int) bool {
	if quantity < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == nil || quantity <= *t.MaxQuantity
}

// Schedule is a list of tiers sorted ascending by MinQuantity.
type Schedule []Tier

// Clone returns an independent copy of the schedule.
func (s Schedule) Clone() Schedule {
	if s == nil {
		return nil
	}
	out := make(Schedule, len(s))
	for i, t := range s {
		out[i] = t
		if t.MaxQuantity != nil {
			upper := *t.MaxQuantity
			out[i].MaxQuantity = &upper
		}
	}
	return out
}

// Validate checks that tiers are sorted, non-overlapping and that only the
// last tier may be unbounded.
func (s Schedule) Validate() error {
	for i, t := range s {
		if t.MinQuantity < 1 {
			return fmt.Errorf("tier %d: min quantity must be at least 1: %w", i, ErrInvalidSchedule)
		}
		if t.UnitPrice < 0 {
			return fmt.Errorf("tier %d: negative unit price: %w", i, ErrInvalidSchedule)
		}
		if t.MaxQuantity != nil && *t.MaxQuantity < t.MinQuantity {
			return fmt.Errorf("tier %d: max quantity below min quantity: %w", i, ErrInvalidSchedule)
		}
		if i == 0 {
			continue
		}
		prev := s[i-1]
		if prev.MaxQuantity == nil {
			return fmt.Errorf("tier %d: follows an unbounded tier: %w", i, ErrInvalidSchedule)
		}
		if t.MinQuantity <= *prev.MaxQuantity {
			return fmt.Errorf("tier %d: overlaps previous tier: %w", i, ErrInvalidSchedule)
		}
	}
	return nil
}

// ResolveUnitPrice returns the unit price that applies to quantity. An empty
// schedule yields base. Quantities below the first tier clamp to the first tier.
func ResolveUnitPrice(schedule Schedule, quantity int, base Money) Money {
	if len(schedule) == 0 {
		return base
	}
	price := schedule[0].UnitPrice
	for _, t := range schedule[1:] {
		if t.MinQuantity > quantity {
			break
		}
		price = t.UnitPrice
	}
	return price
}

// PriceRange is the lowest and highest unit price a schedule can produce.
type PriceRange struct {
	Min Money `json:"min"`
	Max Money `json:"max"`
}

// IsFlat reports whether every quantity resolves to the same price.
func (r PriceRange) IsFlat() bool {
	return r.Min == r.Max
}

// ResolvePriceRange takes the literal min and max over all tiers. It does not
// assume prices decrease with quantity.
func ResolvePriceRange(schedule Schedule, base Money) PriceRange {
	if len(schedule) == 0 {
		return PriceRange{Min: base, Max: base}
	}
	r := PriceRange{Min: schedule[0].UnitPrice, Max: schedule[0].UnitPrice}
	for _, t := range schedule[1:] {
		if t.UnitPrice < r.Min {
			r.Min = t.UnitPrice
		}
		if t.UnitPrice > r.Max {
			r.Max = t.UnitPrice
		}
	}
	return r
}
