package events

// Topic constants for notifications emitted by the cart.
const (
	TopicItemAdded        = "cart.item_added"
	TopicItemUpdated      = "cart.item_updated"
	TopicItemRemoved      = "cart.item_removed"
	TopicCartCleared      = "cart.cleared"
	TopicCartReplaced     = "cart.replaced"
	TopicCouponApplied    = "cart.coupon_applied"
	TopicCouponRemoved    = "cart.coupon_removed"
	TopicShippingSelected = "cart.shipping_selected"
	TopicUndo             = "cart.undo"
	TopicRedo             = "cart.redo"
	TopicWishlistAdded    = "wishlist.added"
	TopicWishlistRemoved  = "wishlist.removed"
	TopicWishlistMoved    = "wishlist.moved"
)

// DefaultTopics returns the canonical list of topics that produce toasts.
func DefaultTopics() []string {
	return []string{
		TopicItemAdded,
		TopicItemUpdated,
		TopicItemRemoved,
		TopicCartCleared,
		TopicCartReplaced,
		TopicCouponApplied,
		TopicCouponRemoved,
		TopicShippingSelected,
		TopicUndo,
		TopicRedo,
		TopicWishlistAdded,
		TopicWishlistRemoved,
		TopicWishlistMoved,
	}
}
