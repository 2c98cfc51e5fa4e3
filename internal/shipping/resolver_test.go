package shipping_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-cart/internal/coupon"
	"github.com/noah-isme/storefront-cart/internal/pricing"
	"github.com/noah-isme/storefront-cart/internal/shipping"
)

var orderDate = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func newResolver(t *testing.T) *shipping.Resolver {
	t.Helper()
	r, err := shipping.NewResolver(shipping.DefaultOptions(10_000), shipping.DefaultOptionID, func() time.Time { return orderDate })
	require.NoError(t, err)
	return r
}

func TestCostFollowsSelectedRule(t *testing.T) {
	r := newResolver(t)
	require.Equal(t, shipping.DefaultOptionID, r.Selected())
	require.EqualValues(t, 3_990, r.Cost(5_000, nil))
	require.EqualValues(t, 0, r.Cost(10_000, nil))

	change, err := r.Select("express")
	require.NoError(t, err)
	require.True(t, change.Changed)
	require.Equal(t, "standard", change.Old.ID)
	require.Equal(t, "express", change.New.ID)
	require.EqualValues(t, 7_990, r.Cost(50_000, nil))
}

func TestFreeShippingCouponForcesZero(t *testing.T) {
	r := newResolver(t)
	_, err := r.Select("express")
	require.NoError(t, err)
	applied := []coupon.Coupon{{Code: "FREESHIP", Type: coupon.FreeShipping}}
	require.EqualValues(t, 0, r.Cost(100, applied))

	summary := r.Summary(100, applied)
	require.True(t, summary.IsFree)
	require.Equal(t, shipping.FreeReasonCoupon, summary.FreeReason)
	require.EqualValues(t, 7_990, summary.OriginalCost)
	require.EqualValues(t, 7_990, summary.Savings)
}

func TestSelectUnknownKeepsPrior(t *testing.T) {
	r := newResolver(t)
	_, err := r.Select("pickup")
	require.NoError(t, err)

	_, err = r.Select("teleport")
	require.ErrorIs(t, err, shipping.ErrUnknownOption)
	require.Equal(t, "pickup", r.Selected())

	change, err := r.Select("pickup")
	require.NoError(t, err)
	require.False(t, change.Changed)
}

func TestSummaryThresholdAndDelivery(t *testing.T) {
	r := newResolver(t)
	summary := r.Summary(12_000, nil)
	require.Equal(t, shipping.FreeReasonThreshold, summary.FreeReason)
	require.EqualValues(t, 3_990, summary.Savings)
	require.Equal(t, orderDate.AddDate(0, 0, 5), summary.EstimatedDelivery)

	paid := r.Summary(1_000, nil)
	require.False(t, paid.IsFree)
	require.Equal(t, shipping.FreeReasonNone, paid.FreeReason)
	require.Zero(t, paid.Savings)
}

func TestOptionsMarksSelection(t *testing.T) {
	r := newResolver(t)
	_, err := r.Select("express")
	require.NoError(t, err)
	choices := r.Options(0)
	require.Len(t, choices, 3)
	selected := 0
	for _, c := range choices {
		if c.Selected {
			selected++
			require.Equal(t, "express", c.ID)
		}
	}
	require.Equal(t, 1, selected)
}

func TestRecommendAndRestore(t *testing.T) {
	r := newResolver(t)
	require.Equal(t, "pickup", r.Recommend(shipping.Fastest, 0).ID)
	require.Equal(t, "pickup", r.Recommend(shipping.Cheapest, 0).ID)

	r.Restore("express")
	require.Equal(t, "express", r.Selected())
	r.Restore("gone")
	require.Equal(t, shipping.DefaultOptionID, r.Selected())
}

func TestNewResolverValidation(t *testing.T) {
	_, err := shipping.NewResolver(nil, "", nil)
	require.ErrorIs(t, err, shipping.ErrNoOptions)

	_, err = shipping.NewResolver(shipping.DefaultOptions(0), "missing", nil)
	require.ErrorIs(t, err, shipping.ErrUnknownOption)

	rule := shipping.CostRuleFunc(func(subtotal pricing.Money) pricing.Money { return subtotal / 10 })
	r, err := shipping.NewResolver([]shipping.Option{{ID: "percent", Rule: rule}}, "", nil)
	require.NoError(t, err)
	require.EqualValues(t, 50, r.Cost(500, nil))
}
