package pricing

import "testing"

func TestComputeClampsDiscount(t *testing.T) {
	items := []Item{{Qty: 2, UnitPrice: 1000}, {Qty: 0, UnitPrice: 500}}
	summary := Compute(items, 5000, 300)
	if summary.Subtotal != 2000 {
		t.Fatalf("expected subtotal 2000, got %d", summary.Subtotal)
	}
	if summary.Discount != 2000 {
		t.Fatalf("expected discount clamped to 2000, got %d", summary.Discount)
	}
	if summary.Total != 300 {
		t.Fatalf("expected total 300, got %d", summary.Total)
	}
}

func TestComputeNeverNegative(t *testing.T) {
	for _, discount := range []Money{-10, 0, 10, 1_000_000} {
		for _, shipping := range []Money{-5, 0, 250} {
			summary := Compute([]Item{{Qty: 1, UnitPrice: 100}}, discount, shipping)
			if summary.Total < 0 {
				t.Fatalf("negative total for discount=%d shipping=%d: %d", discount, shipping, summary.Total)
			}
		}
	}
	if got := Compute(nil, 100, 0).Total; got != 0 {
		t.Fatalf("expected empty cart total 0, got %d", got)
	}
}
