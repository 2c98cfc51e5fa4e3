package wishlist

import (
	"time"

	"github.com/noah-isme/storefront-cart/internal/pricing"
)

// Item is a saved product. It keeps enough of the product descriptor to move
// it into the cart later without another catalog lookup.
type Item struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Price         pricing.Money    `json:"price"`
	MaxStock      int              `json:"maxStock"`
	PriceSchedule pricing.Schedule `json:"priceSchedule,omitempty"`
	AddedAt       time.Time        `json:"addedAt"`
}

// List keeps saved items in insertion order.
type List struct {
	items []Item
}

// Add appends item unless its id is already saved.
func (l *List) Add(item Item) bool {
	if item.ID == "" || l.Contains(item.ID) {
		return false
	}
	item.PriceSchedule = item.PriceSchedule.Clone()
	l.items = append(l.items, item)
	return true
}

// Remove deletes id, reporting whether it was present.
func (l *List) Remove(id string) bool {
	for i, it := range l.items {
		if it.ID == id {
			l.items = append(l.items[:i:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

func (l *List) Contains(id string) bool {
	_, ok := l.Get(id)
	return ok
}

// Get returns the saved item for id.
func (l *List) Get(id string) (Item, bool) {
	for _, it := range l.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

func (l *List) Len() int { return len(l.items) }

// Items returns a copy of the saved items.
func (l *List) Items() []Item {
	out := make([]Item, len(l.items))
	for i, it := range l.items {
		it.PriceSchedule = it.PriceSchedule.Clone()
		out[i] = it
	}
	return out
}

// Replace swaps the whole list, dropping entries without an id and duplicates.
func (l *List) Replace(items []Item) {
	l.items = nil
	for _, it := range items {
		l.Add(it)
	}
}
