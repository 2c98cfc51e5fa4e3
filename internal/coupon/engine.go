package coupon

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/storefront-cart/internal/pricing"
)

var (
	// ErrUnknownCode is returned when no definition exists for the code.
	ErrUnknownCode = errors.New("coupon code unknown")
	// ErrAlreadyApplied is returned when the code is already in the applied set.
	ErrAlreadyApplied = errors.New("coupon already applied")
	// ErrExpired is returned when the coupon is past its expiry instant.
	ErrExpired = errors.New("coupon expired")
	// ErrMinimumSpendUnmet indicates the subtotal did not reach the coupon minimum.
	ErrMinimumSpendUnmet = errors.New("coupon minimum spend not met")
	// ErrIncompatible is returned when the coupon cannot be combined with an applied one.
	ErrIncompatible = errors.New("coupon not compatible with applied coupons")
	// ErrInvalidDefinition is returned for malformed coupon definitions.
	ErrInvalidDefinition = errors.New("invalid coupon definition")
)

// Type is the discount strategy of a coupon.
type Type string

const (
	// Percentage discounts Value basis points of the subtotal.
	Percentage Type = "percentage"
	// Fixed discounts Value minor units.
	Fixed Type = "fixed"
	// FreeShipping grants zero shipping cost and no item discount.
	FreeShipping Type = "free_shipping"
)

// Definition describes a redeemable code.
type Definition struct {
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Type      Type          `json:"discountType"`
	Value     int64         `json:"value"`
	MinSpend  pricing.Money `json:"minSpend"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

// Validate ensures the definition is internally consistent.
func (d Definition) Validate() error {
	if NormalizeCode(d.Code) == "" {
		return fmt.Errorf("code is required: %w", ErrInvalidDefinition)
	}
	switch d.Type {
	case Percentage:
		if d.Value <= 0 || d.Value > 10000 {
			return fmt.Errorf("%s: percentage must be within 1-10000 bps: %w", d.Code, ErrInvalidDefinition)
		}
	case Fixed:
		if d.Value < 0 {
			return fmt.Errorf("%s: fixed value cannot be negative: %w", d.Code, ErrInvalidDefinition)
		}
	case FreeShipping:
	default:
		return fmt.Errorf("%s: unsupported type %q: %w", d.Code, d.Type, ErrInvalidDefinition)
	}
	if d.MinSpend < 0 {
		return fmt.Errorf("%s: negative minimum spend: %w", d.Code, ErrInvalidDefinition)
	}
	return nil
}

// Coupon is a definition that has been applied to a cart.
type Coupon struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Type      Type      `json:"discountType"`
	Value     int64     `json:"value"`
	AppliedAt time.Time `json:"appliedAt"`
}

// Discount computes the coupon discount against subtotal, clamped to [0, subtotal].
func (c Coupon) Discount(subtotal pricing.Money) pricing.Money {
	return compute(c.Type, c.Value, subtotal)
}

// GrantsFreeShipping reports whether the coupon forces shipping cost to zero.
func (c Coupon) GrantsFreeShipping() bool {
	return c.Type == FreeShipping
}

func compute(kind Type, value int64, subtotal pricing.Money) pricing.Money {
	if subtotal <= 0 {
		return 0
	}
	var discount pricing.Money
	switch kind {
	case Percentage:
		discount = (subtotal * value) / 10000
	case Fixed:
		discount = value
	default:
		return 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		return 0
	}
	return discount
}

// Line describes the contribution of one applied coupon.
type Line struct {
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Type      Type          `json:"discountType"`
	Amount    pricing.Money `json:"amount"`
	AppliedAt time.Time     `json:"appliedAt"`
}

// Stats summarises the applied set.
type Stats struct {
	TotalApplied int     `json:"totalApplied"`
	Percentage   int     `json:"percentage"`
	Fixed        int     `json:"fixed"`
	FreeShipping int     `json:"freeShipping"`
	MostRecent   *Coupon `json:"mostRecent,omitempty"`
}

// NormalizeCode trims and upper-cases a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Engine validates and tracks applied coupons. Every applied coupon is
// computed against the original subtotal, never a shrinking remainder.
type Engine struct {
	definitions map[string]Definition
	applied     []Coupon
	now         func() time.Time
}

// NewEngine constructs an engine over the provided definitions. Invalid
// definitions are rejected.
func NewEngine(defs []Definition, now func() time.Time) (*Engine, error) {
	e := &Engine{definitions: make(map[string]Definition, len(defs)), now: now}
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		def.Code = NormalizeCode(def.Code)
		if _, dup := e.definitions[def.Code]; dup {
			return nil, fmt.Errorf("%s: duplicate code: %w", def.Code, ErrInvalidDefinition)
		}
		e.definitions[def.Code] = def
	}
	return e, nil
}

// MustNewEngine behaves like NewEngine but panics on error. Useful for built-in definitions.
func MustNewEngine(defs []Definition, now func() time.Time) *Engine {
	e, err := NewEngine(defs, now)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) clock() time.Time {
	if e != nil && e.now != nil {
		return e.now()
	}
	return time.Now()
}

// Validate performs every Apply check without mutating state.
func (e *Engine) Validate(code string, subtotal pricing.Money) (Definition, error) {
	normalized := NormalizeCode(code)
	def, ok := e.definitions[normalized]
	if !ok {
		return Definition{}, ErrUnknownCode
	}
	if e.IsApplied(normalized) {
		return Definition{}, ErrAlreadyApplied
	}
	if def.ExpiresAt != nil && e.clock().After(*def.ExpiresAt) {
		return Definition{}, ErrExpired
	}
	if subtotal < def.MinSpend {
		return Definition{}, ErrMinimumSpendUnmet
	}
	for _, c := range e.applied {
		if c.Type == def.Type && (def.Type == Percentage || def.Type == FreeShipping) {
			return Definition{}, ErrIncompatible
		}
	}
	return def, nil
}

// Apply validates the code and adds it to the applied set, returning the
// coupon and the discount it contributes at the given subtotal.
func (e *Engine) Apply(code string, subtotal pricing.Money) (Coupon, pricing.Money, error) {
	def, err := e.Validate(code, subtotal)
	if err != nil {
		return Coupon{}, 0, err
	}
	c := Coupon{
		Code:      def.Code,
		Name:      def.Name,
		Type:      def.Type,
		Value:     def.Value,
		AppliedAt: e.clock(),
	}
	e.applied = append(e.applied, c)
	return c, c.Discount(subtotal), nil
}

// Remove drops the code from the applied set and returns the discount it had
// at subtotal. Removing a code that is not applied is a no-op.
func (e *Engine) Remove(code string, subtotal pricing.Money) (pricing.Money, bool) {
	normalized := NormalizeCode(code)
	for i, c := range e.applied {
		if c.Code != normalized {
			continue
		}
		e.applied = append(e.applied[:i:i], e.applied[i+1:]...)
		return c.Discount(subtotal), true
	}
	return 0, false
}

// IsApplied reports whether code is currently in the applied set.
func (e *Engine) IsApplied(code string) bool {
	normalized := NormalizeCode(code)
	for _, c := range e.applied {
		if c.Code == normalized {
			return true
		}
	}
	return false
}

// Discount sums every applied coupon independently clamped, then clamps the
// aggregate to subtotal.
func (e *Engine) Discount(subtotal pricing.Money) pricing.Money {
	var total pricing.Money
	for _, c := range e.applied {
		total += c.Discount(subtotal)
	}
	if total > subtotal {
		total = subtotal
	}
	if total < 0 {
		return 0
	}
	return total
}

// Breakdown lists per-coupon discount amounts at subtotal.
func (e *Engine) Breakdown(subtotal pricing.Money) []Line {
	lines := make([]Line, 0, len(e.applied))
	for _, c := range e.applied {
		name := c.Name
		if name == "" {
			name = c.Code
		}
		lines = append(lines, Line{
			Code:      c.Code,
			Name:      name,
			Type:      c.Type,
			Amount:    c.Discount(subtotal),
			AppliedAt: c.AppliedAt,
		})
	}
	return lines
}

// HasFreeShipping reports whether any applied coupon grants free shipping.
func (e *Engine) HasFreeShipping() bool {
	for _, c := range e.applied {
		if c.GrantsFreeShipping() {
			return true
		}
	}
	return false
}

// Applied returns a copy of the applied set in application order.
func (e *Engine) Applied() []Coupon {
	if len(e.applied) == 0 {
		return nil
	}
	out := make([]Coupon, len(e.applied))
	copy(out, e.applied)
	return out
}

// Restore replaces the applied set wholesale. Used by undo and redo.
func (e *Engine) Restore(coupons []Coupon) {
	if len(coupons) == 0 {
		e.applied = nil
		return
	}
	e.applied = make([]Coupon, len(coupons))
	copy(e.applied, coupons)
}

// Rehydrate replaces the applied set with stored coupons that are still
// redeemable: unknown, expired or duplicate codes are dropped and returned.
// Kept coupons take their terms from the current definition.
func (e *Engine) Rehydrate(stored []Coupon) []string {
	e.applied = nil
	var dropped []string
	now := e.clock()
	for _, c := range stored {
		code := NormalizeCode(c.Code)
		def, ok := e.definitions[code]
		if !ok || e.IsApplied(code) || (def.ExpiresAt != nil && now.After(*def.ExpiresAt)) {
			dropped = append(dropped, code)
			continue
		}
		e.applied = append(e.applied, Coupon{
			Code:      def.Code,
			Name:      def.Name,
			Type:      def.Type,
			Value:     def.Value,
			AppliedAt: c.AppliedAt,
		})
	}
	return dropped
}

// Clear removes every applied coupon and returns how many were removed.
func (e *Engine) Clear() int {
	n := len(e.applied)
	e.applied = nil
	return n
}

// Stats summarises the applied set.
func (e *Engine) Stats() Stats {
	stats := Stats{TotalApplied: len(e.applied)}
	for i, c := range e.applied {
		switch c.Type {
		case Percentage:
			stats.Percentage++
		case Fixed:
			stats.Fixed++
		case FreeShipping:
			stats.FreeShipping++
		}
		if stats.MostRecent == nil || c.AppliedAt.After(stats.MostRecent.AppliedAt) {
			recent := e.applied[i]
			stats.MostRecent = &recent
		}
	}
	return stats
}

// Available lists every known definition sorted by code.
func (e *Engine) Available() []Definition {
	out := make([]Definition, 0, len(e.definitions))
	for _, def := range e.definitions {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
