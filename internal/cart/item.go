// Package cart implements the cart ledger: line items, coupons, shipping
// selection, undo/redo history and debounced persistence for one shopper.
package cart

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/storefront-cart/internal/coupon"
	"github.com/noah-isme/storefront-cart/internal/pricing"
	"github.com/noah-isme/storefront-cart/internal/wishlist"
)

var (
	// ErrNotFound indicates the requested item is not in the cart or wishlist.
	ErrNotFound = errors.New("cart item not found")
	// ErrQuantityOutOfRange is returned for quantities below 1 or above stock.
	ErrQuantityOutOfRange = errors.New("quantity out of range")
	// ErrExceedsStock is returned when an add would push a line past its stock ceiling.
	ErrExceedsStock = errors.New("quantity exceeds available stock")
	// ErrUnknownProduct is returned by a ProductLookup for ids it does not know.
	ErrUnknownProduct = errors.New("product not found")
	// ErrInvalidProduct is returned for product descriptors without an id.
	ErrInvalidProduct = errors.New("invalid product")
	// ErrAlreadyInWishlist is returned when the product is already saved.
	ErrAlreadyInWishlist = errors.New("product already in wishlist")
	// ErrNothingToUndo is returned when the history cursor is at its start.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrNothingToRedo is returned when there is no redo tail.
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Product is the descriptor handed over by product browsing.
type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Price         pricing.Money    `json:"price"`
	MaxStock      int              `json:"maxStock"`
	MinPurchase   int              `json:"minPurchase,omitempty"`
	PriceSchedule pricing.Schedule `json:"priceSchedule,omitempty"`
}

// PriceRange is the "from X to Y" range shown before a quantity is chosen.
func (p Product) PriceRange() pricing.PriceRange {
	return pricing.ResolvePriceRange(p.PriceSchedule, p.Price)
}

// UnitPrice resolves the tier price for quantity.
func (p Product) UnitPrice(quantity int) pricing.Money {
	return pricing.ResolveUnitPrice(p.PriceSchedule, quantity, p.Price)
}

// ProductLookup resolves product ids for the HTTP layer and the wishlist.
type ProductLookup interface {
	Product(ctx context.Context, id string) (Product, error)
}

// Item is a cart line. MaxStock of zero means no known ceiling.
type Item struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	BasePrice     pricing.Money    `json:"basePrice"`
	UnitPrice     pricing.Money    `json:"unitPrice"`
	Quantity      int              `json:"quantity"`
	MaxStock      int              `json:"maxStock"`
	AddedAt       time.Time        `json:"addedAt"`
	PriceSchedule pricing.Schedule `json:"priceSchedule,omitempty"`
}

// LineTotal is unit price times quantity.
func (it Item) LineTotal() pricing.Money {
	return it.UnitPrice * pricing.Money(it.Quantity)
}

func (it Item) clone() Item {
	it.PriceSchedule = it.PriceSchedule.Clone()
	return it
}

func (it Item) allows(quantity int) bool {
	if quantity < 1 {
		return false
	}
	return it.MaxStock <= 0 || quantity <= it.MaxStock
}

// reprice re-resolves the unit price from the tier schedule.
func (it *Item) reprice() {
	it.UnitPrice = pricing.ResolveUnitPrice(it.PriceSchedule, it.Quantity, it.BasePrice)
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.clone()
	}
	return out
}

// sanitizeItems drops lines without an id or with a non-positive quantity,
// merges duplicate ids and clamps quantities to a known stock ceiling.
func sanitizeItems(items []Item) []Item {
	out := make([]Item, 0, len(items))
	seen := make(map[string]int, len(items))
	for _, it := range items {
		if it.ID == "" || it.Quantity < 1 {
			continue
		}
		if idx, ok := seen[it.ID]; ok {
			out[idx].Quantity += it.Quantity
			continue
		}
		seen[it.ID] = len(out)
		out = append(out, it.clone())
	}
	for i := range out {
		if out[i].MaxStock > 0 && out[i].Quantity > out[i].MaxStock {
			out[i].Quantity = out[i].MaxStock
		}
		if out[i].BasePrice <= 0 {
			out[i].BasePrice = out[i].UnitPrice
		}
		out[i].reprice()
	}
	return out
}

func fromWishlist(w wishlist.Item) Product {
	return Product{ID: w.ID, Name: w.Name, Price: w.Price, MaxStock: w.MaxStock, PriceSchedule: w.PriceSchedule.Clone()}
}

func toWishlist(p Product, now time.Time) wishlist.Item {
	return wishlist.Item{ID: p.ID, Name: p.Name, Price: p.Price, MaxStock: p.MaxStock, PriceSchedule: p.PriceSchedule, AddedAt: now}
}

// Snapshot is the state captured for undo and redo.
type Snapshot struct {
	Items            []Item          `json:"items"`
	AppliedCoupons   []coupon.Coupon `json:"appliedCoupons"`
	SelectedShipping string          `json:"selectedShipping"`
}

// Stats feeds the cart badge and summary widgets.
type Stats struct {
	TotalItems    int           `json:"totalItems"`
	TotalQuantity int           `json:"totalQuantity"`
	TotalValue    pricing.Money `json:"totalValue"`
	AveragePrice  pricing.Money `json:"averagePrice"`
}

// Info is a compact description of the ledger.
type Info struct {
	ItemCount     int       `json:"itemCount"`
	TotalQuantity int       `json:"totalQuantity"`
	IsEmpty       bool      `json:"isEmpty"`
	LastModified  time.Time `json:"lastModified"`
}
