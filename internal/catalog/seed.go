// Package catalog loads products, coupons and shipping methods from a YAML
// seed and resolves product ids for the cart.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/storefront-cart/internal/cart"
	"github.com/noah-isme/storefront-cart/internal/coupon"
	"github.com/noah-isme/storefront-cart/internal/pricing"
	"github.com/noah-isme/storefront-cart/internal/shipping"
)

//go:embed default_seed.yaml
var defaultSeed []byte

// ErrInvalidSeed wraps every seed validation failure.
var ErrInvalidSeed = errors.New("invalid catalog seed")

// Seed is the on-disk catalog description.
type Seed struct {
	Catalog  []SeedProduct `yaml:"products"`
	Coupons  []SeedCoupon  `yaml:"coupons"`
	Shipping SeedShipping  `yaml:"shipping"`
}

type SeedProduct struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Price       pricing.Money    `yaml:"price"`
	MaxStock    int              `yaml:"maxStock"`
	MinPurchase int              `yaml:"minPurchase"`
	Tiers       pricing.Schedule `yaml:"tiers"`
}

type SeedCoupon struct {
	Code      string        `yaml:"code"`
	Name      string        `yaml:"name"`
	Type      coupon.Type   `yaml:"type"`
	Value     int64         `yaml:"value"`
	MinSpend  pricing.Money `yaml:"minSpend"`
	ExpiresAt *time.Time    `yaml:"expiresAt"`
}

type SeedShipping struct {
	Default string               `yaml:"default"`
	Options []SeedShippingOption `yaml:"options"`
}

type SeedShippingOption struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description"`
	DeliveryDays int           `yaml:"deliveryDays"`
	Cost         pricing.Money `yaml:"cost"`
	FreeAbove    pricing.Money `yaml:"freeAbove"`
}

// DefaultSeed returns the embedded catalog.
func DefaultSeed() (*Seed, error) {
	return ParseSeed(defaultSeed)
}

// LoadSeed reads and validates the seed at path.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a YAML seed.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate reports every problem found in the seed.
func (s *Seed) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(s.Catalog))
	for i, p := range s.Catalog {
		id := strings.TrimSpace(p.ID)
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("product %d: id is required: %w", i, ErrInvalidSeed))
		case seen[id]:
			errs = append(errs, fmt.Errorf("product %s: duplicate id: %w", id, ErrInvalidSeed))
		}
		seen[id] = true
		if p.Price < 0 {
			errs = append(errs, fmt.Errorf("product %s: negative price: %w", id, ErrInvalidSeed))
		}
		if p.MaxStock < 0 {
			errs = append(errs, fmt.Errorf("product %s: negative stock: %w", id, ErrInvalidSeed))
		}
		if err := p.Tiers.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("product %s: %w", id, err))
		}
	}
	if _, err := coupon.NewEngine(s.CouponDefinitions(), nil); err != nil {
		errs = append(errs, err)
	}
	if len(s.Shipping.Options) > 0 {
		if _, err := shipping.NewResolver(s.ShippingOptions(0), s.Shipping.Default, nil); err != nil {
			errs = append(errs, fmt.Errorf("shipping: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Products converts the seed products, sorted by id.
func (s *Seed) Products() []cart.Product {
	out := make([]cart.Product, 0, len(s.Catalog))
	for _, p := range s.Catalog {
		out = append(out, cart.Product{
			ID:            strings.TrimSpace(p.ID),
			Name:          p.Name,
			Price:         p.Price,
			MaxStock:      p.MaxStock,
			MinPurchase:   p.MinPurchase,
			PriceSchedule: p.Tiers.Clone(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CouponDefinitions converts the seed coupons. An empty list yields the built-in codes.
func (s *Seed) CouponDefinitions() []coupon.Definition {
	if len(s.Coupons) == 0 {
		return coupon.DefaultDefinitions()
	}
	out := make([]coupon.Definition, 0, len(s.Coupons))
	for _, c := range s.Coupons {
		out = append(out, coupon.Definition{
			Code:      c.Code,
			Name:      c.Name,
			Type:      c.Type,
			Value:     c.Value,
			MinSpend:  c.MinSpend,
			ExpiresAt: c.ExpiresAt,
		})
	}
	return out
}

// ShippingOptions converts the seed options. A positive freeThreshold
// replaces the threshold of every option that has one. An empty list yields
// the built-in options.
func (s *Seed) ShippingOptions(freeThreshold pricing.Money) []shipping.Option {
	if len(s.Shipping.Options) == 0 {
		if freeThreshold <= 0 {
			freeThreshold = shipping.DefaultFreeThreshold
		}
		return shipping.DefaultOptions(freeThreshold)
	}
	out := make([]shipping.Option, 0, len(s.Shipping.Options))
	for _, o := range s.Shipping.Options {
		rule := shipping.FlatRate{Amount: o.Cost, FreeAbove: o.FreeAbove}
		if freeThreshold > 0 && rule.FreeAbove > 0 {
			rule.FreeAbove = freeThreshold
		}
		out = append(out, shipping.Option{
			ID:           o.ID,
			Name:         o.Name,
			Description:  o.Description,
			DeliveryDays: o.DeliveryDays,
			Rule:         rule,
		})
	}
	return out
}

// DefaultShipping names the preselected option.
func (s *Seed) DefaultShipping() string {
	if s.Shipping.Default == "" && len(s.Shipping.Options) == 0 {
		return shipping.DefaultOptionID
	}
	return s.Shipping.Default
}

// CartConfig returns a cart template carrying the seed's coupons and shipping.
func (s *Seed) CartConfig(freeThreshold pricing.Money) cart.Config {
	return cart.Config{
		Coupons:         s.CouponDefinitions(),
		Shipping:        s.ShippingOptions(freeThreshold),
		DefaultShipping: s.DefaultShipping(),
	}
}
