package shipping

import (
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/storefront-cart/internal/coupon"
	"github.com/noah-isme/storefront-cart/internal/pricing"
)

var (
	// ErrUnknownOption is returned when the requested option id is not offered.
	ErrUnknownOption = errors.New("shipping option unknown")
	// ErrNoOptions is returned when a resolver is built without options.
	ErrNoOptions = errors.New("no shipping options configured")
)

// DefaultOptionID is the option selected for a fresh cart.
const DefaultOptionID = "standard"

// CostRule computes a shipping cost from the cart subtotal.
type CostRule interface {
	Cost(subtotal pricing.Money) pricing.Money
}

// CostRuleFunc adapts a function to CostRule.
type CostRuleFunc func(subtotal pricing.Money) pricing.Money

// Cost implements CostRule.
func (f CostRuleFunc) Cost(subtotal pricing.Money) pricing.Money { return f(subtotal) }

// FlatRate charges Amount unless the subtotal reaches FreeAbove. A zero
// FreeAbove disables the threshold.
type FlatRate struct {
	Amount    pricing.Money `json:"amount" yaml:"amount"`
	FreeAbove pricing.Money `json:"freeAbove,omitempty" yaml:"free_above"`
}

// Cost implements CostRule.
func (r FlatRate) Cost(subtotal pricing.Money) pricing.Money {
	if r.FreeAbove > 0 && subtotal >= r.FreeAbove {
		return 0
	}
	if r.Amount < 0 {
		return 0
	}
	return r.Amount
}

// Option is a selectable delivery method.
type Option struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	DeliveryDays int      `json:"deliveryDays"`
	Rule         CostRule `json:"-"`
}

// BaseCost is the cost of the option before any threshold or coupon.
func (o Option) BaseCost() pricing.Money {
	if o.Rule == nil {
		return 0
	}
	return o.Rule.Cost(0)
}

func (o Option) cost(subtotal pricing.Money) pricing.Money {
	if o.Rule == nil {
		return 0
	}
	if c := o.Rule.Cost(subtotal); c > 0 {
		return c
	}
	return 0
}

// Change describes a selection switch.
type Change struct {
	Old     Option `json:"oldOption"`
	New     Option `json:"newOption"`
	Changed bool   `json:"changed"`
}

// Choice is an option as presented for selection.
type Choice struct {
	Option
	Cost     pricing.Money `json:"cost"`
	Selected bool          `json:"selected"`
}

// FreeReason explains a zero shipping cost.
type FreeReason string

const (
	FreeReasonNone      FreeReason = ""
	FreeReasonCoupon    FreeReason = "coupon"
	FreeReasonThreshold FreeReason = "threshold"
)

// Summary is the shipping breakdown shown next to the cart totals.
type Summary struct {
	Option            Option        `json:"option"`
	Cost              pricing.Money `json:"cost"`
	IsFree            bool          `json:"isFree"`
	FreeReason        FreeReason    `json:"freeReason,omitempty"`
	OriginalCost      pricing.Money `json:"originalCost"`
	Savings           pricing.Money `json:"savings"`
	EstimatedDelivery time.Time     `json:"estimatedDelivery"`
}

// Criteria selects the recommendation strategy.
type Criteria string

const (
	Fastest  Criteria = "fastest"
	Cheapest Criteria = "cheapest"
)

// Resolver owns the selected shipping option for one cart.
type Resolver struct {
	options   []Option
	index     map[string]int
	defaultID string
	selected  string
	now       func() time.Time
}

// NewResolver builds a resolver over options. defaultID must name one of them;
// when empty the first option is the default.
func NewResolver(options []Option, defaultID string, now func() time.Time) (*Resolver, error) {
	if len(options) == 0 {
		return nil, ErrNoOptions
	}
	r := &Resolver{
		options: make([]Option, len(options)),
		index:   make(map[string]int, len(options)),
		now:     now,
	}
	copy(r.options, options)
	for i, opt := range r.options {
		if opt.ID == "" {
			return nil, fmt.Errorf("option %d: empty id", i)
		}
		if _, dup := r.index[opt.ID]; dup {
			return nil, fmt.Errorf("option %q: duplicate id", opt.ID)
		}
		r.index[opt.ID] = i
	}
	if defaultID == "" {
		defaultID = r.options[0].ID
	}
	if _, ok := r.index[defaultID]; !ok {
		return nil, fmt.Errorf("default %q: %w", defaultID, ErrUnknownOption)
	}
	r.defaultID = defaultID
	r.selected = defaultID
	return r, nil
}

// MustNewResolver panics when NewResolver fails.
func MustNewResolver(options []Option, defaultID string, now func() time.Time) *Resolver {
	r, err := NewResolver(options, defaultID, now)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Resolver) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Selected returns the id of the current option.
func (r *Resolver) Selected() string { return r.selected }

// Default returns the id selected for a fresh cart.
func (r *Resolver) Default() string { return r.defaultID }

// Select switches to id. Unknown ids leave the selection untouched.
func (r *Resolver) Select(id string) (Change, error) {
	idx, ok := r.index[id]
	if !ok {
		return Change{}, fmt.Errorf("%q: %w", id, ErrUnknownOption)
	}
	old := r.Info()
	r.selected = id
	return Change{Old: old, New: r.options[idx], Changed: old.ID != id}, nil
}

// Restore sets the selection from a snapshot. Unknown ids fall back to the default.
func (r *Resolver) Restore(id string) {
	if _, ok := r.index[id]; ok {
		r.selected = id
		return
	}
	r.selected = r.defaultID
}

// Info returns the descriptor of the selected option.
func (r *Resolver) Info() Option {
	return r.options[r.index[r.selected]]
}

// Cost evaluates the selected rule. Any free shipping coupon forces zero.
func (r *Resolver) Cost(subtotal pricing.Money, applied []coupon.Coupon) pricing.Money {
	if hasFreeShipping(applied) {
		return 0
	}
	return r.Info().cost(subtotal)
}

// Options lists every option with its cost at subtotal and the selected flag.
func (r *Resolver) Options(subtotal pricing.Money) []Choice {
	out := make([]Choice, 0, len(r.options))
	for _, opt := range r.options {
		out = append(out, Choice{Option: opt, Cost: opt.cost(subtotal), Selected: opt.ID == r.selected})
	}
	return out
}

// EstimatedDelivery adds the selected option's delivery days to from.
func (r *Resolver) EstimatedDelivery(from time.Time) time.Time {
	return from.AddDate(0, 0, r.Info().DeliveryDays)
}

// Summary reports cost, savings and the reason shipping is free, if it is.
func (r *Resolver) Summary(subtotal pricing.Money, applied []coupon.Coupon) Summary {
	opt := r.Info()
	s := Summary{
		Option:            opt,
		Cost:              r.Cost(subtotal, applied),
		OriginalCost:      opt.BaseCost(),
		EstimatedDelivery: r.EstimatedDelivery(r.clock()),
	}
	s.IsFree = s.Cost == 0
	if s.IsFree && s.OriginalCost > 0 {
		if hasFreeShipping(applied) {
			s.FreeReason = FreeReasonCoupon
		} else {
			s.FreeReason = FreeReasonThreshold
		}
	}
	s.Savings = s.OriginalCost - s.Cost
	if s.Savings < 0 {
		s.Savings = 0
	}
	return s
}

// Recommend returns the fastest or cheapest option at subtotal. Ties keep the
// earlier option.
func (r *Resolver) Recommend(c Criteria, subtotal pricing.Money) Option {
	best := r.options[0]
	for _, opt := range r.options[1:] {
		switch c {
		case Cheapest:
			if opt.cost(subtotal) < best.cost(subtotal) {
				best = opt
			}
		default:
			if opt.DeliveryDays < best.DeliveryDays {
				best = opt
			}
		}
	}
	return best
}

func hasFreeShipping(applied []coupon.Coupon) bool {
	for _, c := range applied {
		if c.GrantsFreeShipping() {
			return true
		}
	}
	return false
}
