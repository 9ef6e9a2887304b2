package domain

import "github.com/shopspring/decimal"

// ShippingCost returns zero once subtotal reaches threshold, otherwise baseCost.
func ShippingCost(subtotal, threshold, baseCost decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(threshold) {
		return decimal.Zero
	}
	return baseCost
}

// ShippingPolicy binds the configured threshold and base fee.
type ShippingPolicy struct {
	FreeShippingThreshold decimal.Decimal
	BaseCost              decimal.Decimal
}

func (p ShippingPolicy) Cost(subtotal decimal.Decimal) decimal.Decimal {
	return ShippingCost(subtotal, p.FreeShippingThreshold, p.BaseCost)
}
