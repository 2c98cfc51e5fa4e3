package shipping

import "github.com/noah-isme/storefront-cart/internal/pricing"

// DefaultFreeThreshold is the subtotal from which standard delivery is free.
const DefaultFreeThreshold pricing.Money = 100_000

// DefaultOptions returns the built-in delivery methods. Only the standard
// option honours the free threshold.
func DefaultOptions(freeThreshold pricing.Money) []Option {
	return []Option{
		{
			ID:           DefaultOptionID,
			Name:         "Standard",
			Description:  "Regular courier delivery",
			DeliveryDays: 5,
			Rule:         FlatRate{Amount: 3_990, FreeAbove: freeThreshold},
		},
		{
			ID:           "express",
			Name:         "Express",
			Description:  "Priority courier delivery",
			DeliveryDays: 2,
			Rule:         FlatRate{Amount: 7_990},
		},
		{
			ID:           "pickup",
			Name:         "Store pickup",
			Description:  "Collect from the seller's pickup point",
			DeliveryDays: 1,
			Rule:         FlatRate{},
		},
	}
}
