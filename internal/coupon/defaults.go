package coupon

// DefaultDefinitions returns the built-in codes used when no seed file supplies them.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Code: "SAVE10", Name: "10% off", Type: Percentage, Value: 1000},
		{Code: "SAVE20", Name: "20% off orders over 50.000", Type: Percentage, Value: 2000, MinSpend: 50_000},
		{Code: "WELCOME5000", Name: "5.000 off your first order", Type: Fixed, Value: 5_000, MinSpend: 20_000},
		{Code: "FREESHIP", Name: "Free shipping", Type: FreeShipping},
	}
}
