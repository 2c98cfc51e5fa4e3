package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-cart/internal/cart"
)

// Static serves products from memory.
type Static struct {
	byID  map[string]cart.Product
	order []string
}

// NewStatic indexes products by id. Later duplicates replace earlier ones.
func NewStatic(products []cart.Product) *Static {
	s := &Static{byID: make(map[string]cart.Product, len(products))}
	for _, p := range products {
		if _, ok := s.byID[p.ID]; !ok {
			s.order = append(s.order, p.ID)
		}
		s.byID[p.ID] = p
	}
	return s
}

// Product implements cart.ProductLookup.
func (s *Static) Product(_ context.Context, id string) (cart.Product, error) {
	p, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return cart.Product{}, fmt.Errorf("%s: %w", id, cart.ErrUnknownProduct)
	}
	p.PriceSchedule = p.PriceSchedule.Clone()
	return p, nil
}

// List returns every product in seed order.
func (s *Static) List() []cart.Product {
	out := make([]cart.Product, 0, len(s.order))
	for _, id := range s.order {
		p := s.byID[id]
		p.PriceSchedule = p.PriceSchedule.Clone()
		out = append(out, p)
	}
	return out
}

// Len returns the number of products.
func (s *Static) Len() int { return len(s.order) }

// CachedLookup fronts a slower lookup with the Redis cache. Cache failures
// fall through to the source.
type CachedLookup struct {
	Source cart.ProductLookup
	Cache  *Cache
	Prefix string
	Logger zerolog.Logger
}

func (c CachedLookup) key(id string) string {
	prefix := strings.TrimSuffix(c.Prefix, ":")
	if prefix == "" {
		return "catalog:product:" + id
	}
	return prefix + ":catalog:product:" + id
}

// Product implements cart.ProductLookup.
func (c CachedLookup) Product(ctx context.Context, id string) (cart.Product, error) {
	key := c.key(strings.TrimSpace(id))
	var cached cart.Product
	ok, err := c.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_read_failed")
	}
	if ok {
		return cached, nil
	}
	p, err := c.Source.Product(ctx, id)
	if err != nil {
		return cart.Product{}, err
	}
	if err := c.Cache.SetJSON(ctx, key, p); err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_write_failed")
	}
	return p, nil
}

// Invalidate drops cached entries for ids.
func (c CachedLookup) Invalidate(ctx context.Context, ids ...string) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, c.key(id))
	}
	return c.Cache.Delete(ctx, keys...)
}
