package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-cart/internal/coupon"
	"github.com/noah-isme/storefront-cart/internal/events"
	"github.com/noah-isme/storefront-cart/internal/history"
	"github.com/noah-isme/storefront-cart/internal/obs"
	"github.com/noah-isme/storefront-cart/internal/pricing"
	"github.com/noah-isme/storefront-cart/internal/resilience"
	"github.com/noah-isme/storefront-cart/internal/shipping"
	"github.com/noah-isme/storefront-cart/internal/storage"
	"github.com/noah-isme/storefront-cart/internal/wishlist"
)

// Action names recorded in history.
const (
	ActionAddItem        = "addItem"
	ActionUpdateQuantity = "updateQuantity"
	ActionRemoveItem     = "removeItem"
	ActionClearCart      = "clearCart"
	ActionSetItems       = "setItems"
	ActionApplyCoupon    = "applyCoupon"
	ActionRemoveCoupon   = "removeCoupon"
	ActionSetShipping    = "setShipping"
)

// Config wires a Store to its collaborators. A nil Storage disables persistence.
type Config struct {
	Session         string
	Key             string
	Storage         storage.Store
	PersistDelay    time.Duration
	WriteTimeout    time.Duration
	Breaker         *resilience.Breaker
	Locker          storage.Locker
	Coupons         []coupon.Definition
	Shipping        []shipping.Option
	DefaultShipping string
	Events          *events.Bus
	HistoryLimit    int
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Store is the cart ledger of one shopper. It is not safe for concurrent use;
// Sessions serialises access per session.
type Store struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time

	items        []Item
	wishlist     wishlist.List
	coupons      *coupon.Engine
	shipping     *shipping.Resolver
	history      *history.Engine[Snapshot]
	writer       *storage.Writer
	lastModified time.Time
}

// New builds a store and rehydrates it from storage. Missing, unreadable or
// corrupt records start an empty cart.
func New(ctx context.Context, cfg Config) (*Store, error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	coupons, err := coupon.NewEngine(cfg.Coupons, now)
	if err != nil {
		return nil, fmt.Errorf("coupon engine: %w", err)
	}
	options := cfg.Shipping
	if len(options) == 0 {
		options = shipping.DefaultOptions(shipping.DefaultFreeThreshold)
	}
	resolver, err := shipping.NewResolver(options, cfg.DefaultShipping, now)
	if err != nil {
		return nil, fmt.Errorf("shipping resolver: %w", err)
	}
	if cfg.Storage != nil && cfg.Key == "" {
		cfg.Key = storage.Key("", cfg.Session)
	}

	s := &Store{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("session", cfg.Session).Logger(),
		now:      now,
		coupons:  coupons,
		shipping: resolver,
		history:  history.New[Snapshot](cfg.HistoryLimit, now),
	}
	if cfg.Storage != nil {
		s.rehydrate(ctx)
		s.writer = storage.NewWriter(storage.WriterConfig{
			Store:        cfg.Storage,
			Key:          cfg.Key,
			Delay:        cfg.PersistDelay,
			WriteTimeout: cfg.WriteTimeout,
			Breaker:      cfg.Breaker,
			Locker:       cfg.Locker,
			Logger:       s.log,
		})
	}
	return s, nil
}

func (s *Store) rehydrate(ctx context.Context) {
	var (
		data    []byte
		missing bool
	)
	err := s.cfg.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = s.cfg.Storage.Load(ctx, s.cfg.Key)
		if errors.Is(err, storage.ErrNotFound) {
			missing = true
			return nil
		}
		return err
	})
	switch {
	case missing:
		obs.ObserveRehydrate("empty")
		return
	case err != nil:
		obs.ObserveRehydrate("error")
		s.log.Warn().Err(err).Str("key", s.cfg.Key).Msg("cart_rehydrate_failed")
		return
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		obs.ObserveRehydrate("corrupt")
		s.log.Warn().Err(err).Str("key", s.cfg.Key).Msg("cart_record_discarded")
		return
	}
	s.items = rec.Items
	s.wishlist.Replace(rec.Wishlist)
	if dropped := s.coupons.Rehydrate(rec.AppliedCoupons); len(dropped) > 0 {
		s.log.Warn().Strs("codes", dropped).Str("key", s.cfg.Key).Msg("cart_coupons_dropped")
	}
	s.shipping.Restore(rec.SelectedShipping)
	s.lastModified = rec.ModifiedAt()
	obs.ObserveRehydrate("ok")
	s.log.Debug().Int("items", len(s.items)).Msg("cart_rehydrated")
}

// Session returns the session id the store belongs to.
func (s *Store) Session() string { return s.cfg.Session }

// AddItem adds quantity units of p, merging with an existing line. A zero
// quantity falls back to the product's minimum purchase or 1; a negative one
// is rejected.
func (s *Store) AddItem(ctx context.Context, p Product, quantity int) (Item, error) {
	if strings.TrimSpace(p.ID) == "" {
		return Item{}, s.reject(ctx, ActionAddItem, events.TopicItemAdded, ErrInvalidProduct, nil)
	}
	if quantity < 0 {
		err := fmt.Errorf("%s: %d below 1: %w", p.ID, quantity, ErrQuantityOutOfRange)
		return Item{}, s.reject(ctx, ActionAddItem, events.TopicItemAdded, err, history.Metadata{"productId": p.ID, "quantity": quantity})
	}
	if quantity == 0 {
		quantity = max(p.MinPurchase, 1)
	}
	meta := history.Metadata{"productId": p.ID, "name": p.Name, "quantity": quantity}

	var line Item
	if idx := s.index(p.ID); idx >= 0 {
		line = s.items[idx]
		next := line.Quantity + quantity
		if !line.allows(next) {
			err := fmt.Errorf("%s: %d exceeds stock %d: %w", p.ID, next, line.MaxStock, ErrExceedsStock)
			return Item{}, s.reject(ctx, ActionAddItem, events.TopicItemAdded, err, meta)
		}
		meta["previousQuantity"] = line.Quantity
		line.Quantity = next
		line.reprice()
		s.items[idx] = line
	} else {
		line = Item{
			ID:            p.ID,
			Name:          p.Name,
			BasePrice:     p.Price,
			Quantity:      quantity,
			MaxStock:      p.MaxStock,
			AddedAt:       s.now().UTC(),
			PriceSchedule: p.PriceSchedule.Clone(),
		}
		if !line.allows(quantity) {
			err := fmt.Errorf("%s: %d exceeds stock %d: %w", p.ID, quantity, line.MaxStock, ErrExceedsStock)
			return Item{}, s.reject(ctx, ActionAddItem, events.TopicItemAdded, err, meta)
		}
		line.reprice()
		s.items = append(s.items, line)
	}
	meta["newQuantity"] = line.Quantity
	s.commit(ctx, ActionAddItem, events.TopicItemAdded, fmt.Sprintf("%s added to cart", displayName(line)), meta)
	return line.clone(), nil
}

// UpdateQuantity sets the quantity of an existing line. Setting the current
// quantity again is not recorded.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	idx := s.index(id)
	if idx < 0 {
		return s.reject(ctx, ActionUpdateQuantity, events.TopicItemUpdated, fmt.Errorf("%s: %w", id, ErrNotFound), nil)
	}
	line := s.items[idx]
	if !line.allows(quantity) {
		err := fmt.Errorf("%s: %d not within 1-%d: %w", id, quantity, line.MaxStock, ErrQuantityOutOfRange)
		return s.reject(ctx, ActionUpdateQuantity, events.TopicItemUpdated, err, history.Metadata{"productId": id, "quantity": quantity})
	}
	if line.Quantity == quantity {
		return nil
	}
	meta := history.Metadata{"productId": id, "name": line.Name, "previousQuantity": line.Quantity, "quantity": quantity}
	line.Quantity = quantity
	line.reprice()
	s.items[idx] = line
	s.commit(ctx, ActionUpdateQuantity, events.TopicItemUpdated, fmt.Sprintf("%s quantity set to %d", displayName(line), quantity), meta)
	return nil
}

// RemoveItem deletes a line and records its prior quantity.
func (s *Store) RemoveItem(ctx context.Context, id string) error {
	idx := s.index(id)
	if idx < 0 {
		return s.reject(ctx, ActionRemoveItem, events.TopicItemRemoved, fmt.Errorf("%s: %w", id, ErrNotFound), nil)
	}
	line := s.items[idx]
	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	meta := history.Metadata{"productId": id, "name": line.Name, "previousQuantity": line.Quantity}
	s.commit(ctx, ActionRemoveItem, events.TopicItemRemoved, fmt.Sprintf("%s removed from cart", displayName(line)), meta)
	return nil
}

// ClearCart empties the cart and its coupons. It is recorded even when the
// cart is already empty.
func (s *Store) ClearCart(ctx context.Context) error {
	meta := history.Metadata{"itemCount": len(s.items), "couponCount": s.coupons.Clear()}
	s.items = nil
	s.commit(ctx, ActionClearCart, events.TopicCartCleared, "Cart cleared", meta)
	return nil
}

// SetItems replaces every line after sanitising the input.
func (s *Store) SetItems(ctx context.Context, items []Item) error {
	s.items = sanitizeItems(items)
	meta := history.Metadata{"itemCount": len(s.items)}
	s.commit(ctx, ActionSetItems, events.TopicCartReplaced, "Cart updated", meta)
	return nil
}

// ApplyCoupon applies code against the current subtotal.
func (s *Store) ApplyCoupon(ctx context.Context, code string) (coupon.Coupon, pricing.Money, error) {
	applied, discount, err := s.coupons.Apply(code, s.Subtotal())
	if err != nil {
		err = fmt.Errorf("%s: %w", coupon.NormalizeCode(code), err)
		return coupon.Coupon{}, 0, s.reject(ctx, ActionApplyCoupon, events.TopicCouponApplied, err, history.Metadata{"code": coupon.NormalizeCode(code)})
	}
	meta := history.Metadata{"code": applied.Code, "discountType": string(applied.Type), "discount": discount}
	s.commit(ctx, ActionApplyCoupon, events.TopicCouponApplied, fmt.Sprintf("Coupon %s applied", applied.Code), meta)
	return applied, discount, nil
}

// RemoveCoupon drops code and returns the discount it had. Removing a code
// that is not applied does nothing.
func (s *Store) RemoveCoupon(ctx context.Context, code string) (pricing.Money, error) {
	discount, ok := s.coupons.Remove(code, s.Subtotal())
	if !ok {
		return 0, nil
	}
	normalized := coupon.NormalizeCode(code)
	meta := history.Metadata{"code": normalized, "discount": discount}
	s.commit(ctx, ActionRemoveCoupon, events.TopicCouponRemoved, fmt.Sprintf("Coupon %s removed", normalized), meta)
	return discount, nil
}

// ValidateCoupon runs the apply checks without changing the cart.
func (s *Store) ValidateCoupon(code string) (coupon.Definition, error) {
	return s.coupons.Validate(code, s.Subtotal())
}

// SetShippingOption switches the delivery method. Unknown ids keep the prior selection.
func (s *Store) SetShippingOption(ctx context.Context, id string) (shipping.Change, error) {
	change, err := s.shipping.Select(id)
	if err != nil {
		return shipping.Change{}, s.reject(ctx, ActionSetShipping, events.TopicShippingSelected, err, history.Metadata{"optionId": id})
	}
	if !change.Changed {
		return change, nil
	}
	meta := history.Metadata{"oldOption": change.Old.ID, "newOption": change.New.ID}
	s.commit(ctx, ActionSetShipping, events.TopicShippingSelected, fmt.Sprintf("Shipping set to %s", change.New.Name), meta)
	return change, nil
}

// Undo restores the state before the most recent action.
func (s *Store) Undo(ctx context.Context) (history.Info, error) {
	info := s.history.UndoInfo()
	if !s.history.Undo(s.restore) {
		return history.Info{}, s.reject(ctx, "undo", events.TopicUndo, ErrNothingToUndo, nil)
	}
	s.replay(ctx, "undo", events.TopicUndo, "Undid "+info.Action, info)
	return info, nil
}

// Redo replays the action most recently undone.
func (s *Store) Redo(ctx context.Context) (history.Info, error) {
	info := s.history.RedoInfo()
	if !s.history.Redo(s.restore) {
		return history.Info{}, s.reject(ctx, "redo", events.TopicRedo, ErrNothingToRedo, nil)
	}
	s.replay(ctx, "redo", events.TopicRedo, "Redid "+info.Action, info)
	return info, nil
}

func (s *Store) restore(snap Snapshot) {
	s.items = cloneItems(snap.Items)
	s.coupons.Restore(snap.AppliedCoupons)
	s.shipping.Restore(snap.SelectedShipping)
}

func (s *Store) replay(ctx context.Context, op, topic, message string, info history.Info) {
	s.touch()
	s.persist()
	obs.ObserveCartOperation(op, "ok")
	s.notify(ctx, topic, events.SeveritySuccess, message, info.Metadata)
}

// AddToWishlist saves p for later.
func (s *Store) AddToWishlist(ctx context.Context, p Product) error {
	if strings.TrimSpace(p.ID) == "" {
		return s.reject(ctx, "addToWishlist", events.TopicWishlistAdded, ErrInvalidProduct, nil)
	}
	if !s.wishlist.Add(toWishlist(p, s.now().UTC())) {
		return s.reject(ctx, "addToWishlist", events.TopicWishlistAdded, fmt.Errorf("%s: %w", p.ID, ErrAlreadyInWishlist), nil)
	}
	s.touch()
	s.persist()
	obs.ObserveCartOperation("addToWishlist", "ok")
	s.notify(ctx, events.TopicWishlistAdded, events.SeveritySuccess, fmt.Sprintf("%s saved to wishlist", p.Name), map[string]any{"productId": p.ID})
	return nil
}

// RemoveFromWishlist drops a saved product.
func (s *Store) RemoveFromWishlist(ctx context.Context, id string) error {
	if !s.wishlist.Remove(id) {
		return s.reject(ctx, "removeFromWishlist", events.TopicWishlistRemoved, fmt.Errorf("%s: %w", id, ErrNotFound), nil)
	}
	s.touch()
	s.persist()
	obs.ObserveCartOperation("removeFromWishlist", "ok")
	s.notify(ctx, events.TopicWishlistRemoved, events.SeveritySuccess, "Removed from wishlist", map[string]any{"productId": id})
	return nil
}

// MoveToCart adds one unit of a saved product and removes it from the
// wishlist only when the add succeeds.
func (s *Store) MoveToCart(ctx context.Context, id string) (Item, error) {
	saved, ok := s.wishlist.Get(id)
	if !ok {
		return Item{}, s.reject(ctx, "moveToCart", events.TopicWishlistMoved, fmt.Errorf("%s: %w", id, ErrNotFound), nil)
	}
	line, err := s.AddItem(ctx, fromWishlist(saved), 1)
	if err != nil {
		return Item{}, err
	}
	s.wishlist.Remove(id)
	s.persist()
	obs.ObserveCartOperation("moveToCart", "ok")
	s.notify(ctx, events.TopicWishlistMoved, events.SeveritySuccess, fmt.Sprintf("%s moved to cart", displayName(line)), map[string]any{"productId": id})
	return line, nil
}

// Wishlist returns the saved products.
func (s *Store) Wishlist() []wishlist.Item { return s.wishlist.Items() }

func (s *Store) IsInWishlist(id string) bool { return s.wishlist.Contains(id) }

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []Item { return cloneItems(s.items) }

// Item returns the line for id.
func (s *Store) Item(id string) (Item, bool) {
	if idx := s.index(id); idx >= 0 {
		return s.items[idx].clone(), true
	}
	return Item{}, false
}

func (s *Store) IsInCart(id string) bool { return s.index(id) >= 0 }

// ItemCount is the number of distinct lines.
func (s *Store) ItemCount() int { return len(s.items) }

func (s *Store) Subtotal() pricing.Money { return pricing.Subtotal(s.lines()) }

func (s *Store) Discount() pricing.Money { return s.coupons.Discount(s.Subtotal()) }

func (s *Store) ShippingCost() pricing.Money {
	return s.shipping.Cost(s.Subtotal(), s.coupons.Applied())
}

// Total is max(0, subtotal - discount) + shipping.
func (s *Store) Total() pricing.Money { return s.Summary().Total }

// Summary computes every total in one pass.
func (s *Store) Summary() pricing.Summary {
	lines := s.lines()
	subtotal := pricing.Subtotal(lines)
	applied := s.coupons.Applied()
	return pricing.Compute(lines, s.coupons.Discount(subtotal), s.shipping.Cost(subtotal, applied))
}

func (s *Store) Stats() Stats {
	st := Stats{TotalItems: len(s.items), TotalValue: s.Subtotal()}
	for _, it := range s.items {
		st.TotalQuantity += it.Quantity
	}
	if st.TotalQuantity > 0 {
		st.AveragePrice = st.TotalValue / pricing.Money(st.TotalQuantity)
	}
	return st
}

func (s *Store) Info() Info {
	info := Info{ItemCount: len(s.items), IsEmpty: len(s.items) == 0, LastModified: s.lastModified}
	for _, it := range s.items {
		info.TotalQuantity += it.Quantity
	}
	return info
}

func (s *Store) Coupons() []coupon.Coupon { return s.coupons.Applied() }

func (s *Store) CouponBreakdown() []coupon.Line { return s.coupons.Breakdown(s.Subtotal()) }

func (s *Store) CouponStats() coupon.Stats { return s.coupons.Stats() }

func (s *Store) AvailableCoupons() []coupon.Definition { return s.coupons.Available() }

// ShippingInfo describes the selected delivery method.
func (s *Store) ShippingInfo() shipping.Option { return s.shipping.Info() }

func (s *Store) ShippingSummary() shipping.Summary {
	return s.shipping.Summary(s.Subtotal(), s.coupons.Applied())
}

func (s *Store) ShippingOptions() []shipping.Choice { return s.shipping.Options(s.Subtotal()) }

func (s *Store) RecommendShipping(c shipping.Criteria) shipping.Option {
	return s.shipping.Recommend(c, s.Subtotal())
}

func (s *Store) UndoInfo() history.Info { return s.history.UndoInfo() }

func (s *Store) RedoInfo() history.Info { return s.history.RedoInfo() }

func (s *Store) HistoryInfo() history.Summary { return s.history.Info() }

// History lists recorded actions, oldest first.
func (s *Store) History() []history.Entry[Snapshot] { return s.history.Entries() }

// Record returns the persisted form of the current state.
func (s *Store) Record() Record {
	var modified int64
	if !s.lastModified.IsZero() {
		modified = s.lastModified.UnixMilli()
	}
	return Record{
		Items:            cloneItems(s.items),
		Wishlist:         s.wishlist.Items(),
		AppliedCoupons:   s.coupons.Applied(),
		SelectedShipping: s.shipping.Selected(),
		LastModified:     modified,
		Version:          RecordVersion,
	}
}

// Flush writes any pending record now.
func (s *Store) Flush(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Flush(ctx)
}

// Close flushes pending persistence and stops the background writer.
func (s *Store) Close(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close(ctx)
}

func (s *Store) snapshot() Snapshot {
	return Snapshot{
		Items:            cloneItems(s.items),
		AppliedCoupons:   s.coupons.Applied(),
		SelectedShipping: s.shipping.Selected(),
	}
}

func (s *Store) commit(ctx context.Context, action, topic, message string, meta history.Metadata) {
	s.touch()
	s.history.Save(s.snapshot(), action, meta)
	s.persist()
	obs.ObserveCartOperation(action, "ok")
	s.notify(ctx, topic, events.SeveritySuccess, message, meta)
}

func (s *Store) reject(ctx context.Context, op, topic string, err error, meta map[string]any) error {
	obs.ObserveCartOperation(op, "rejected")
	s.log.Debug().Err(err).Str("op", op).Msg("cart_operation_rejected")
	s.notify(ctx, topic, events.SeverityWarning, err.Error(), meta)
	return err
}

func (s *Store) notify(ctx context.Context, topic string, severity events.Severity, message string, meta map[string]any) {
	if s.cfg.Events == nil {
		return
	}
	if _, err := s.cfg.Events.Emit(ctx, topic, severity, message, meta); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("cart_notify_failed")
	}
}

func (s *Store) persist() {
	if s.writer == nil {
		return
	}
	data, err := EncodeRecord(s.Record())
	if err != nil {
		s.log.Error().Err(err).Msg("cart_record_encode_failed")
		return
	}
	s.writer.Schedule(data)
}

func (s *Store) touch() { s.lastModified = s.now().UTC() }

func (s *Store) index(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) lines() []pricing.Item {
	out := make([]pricing.Item, len(s.items))
	for i, it := range s.items {
		out[i] = pricing.Item{Qty: it.Quantity, UnitPrice: it.UnitPrice}
	}
	return out
}

func displayName(it Item) string {
	if it.Name != "" {
		return it.Name
	}
	return it.ID
}
