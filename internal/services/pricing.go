package services

import (
	"github.com/saffron-market/api/internal/domain"
)

// DefaultShippingFee is the flat shipping cost applied to every order, in
// currency minor units.
const DefaultShippingFee int64 = 50000

// AmountTolerance is the maximum allowed difference between a client-declared
// amount and the server-computed total, absorbing rounding in client code.
const AmountTolerance int64 = 1

// PricingCalculator recomputes authoritative order totals from line items.
// It is pure: no I/O, no side effects.
type PricingCalculator struct {
	shippingFee int64
}

// NewPricingCalculator constructs a calculator with the given flat shipping fee.
// Negative fees are treated as zero.
func NewPricingCalculator(shippingFee int64) PricingCalculator {
	if shippingFee < 0 {
		shippingFee = 0
	}
	return PricingCalculator{shippingFee: shippingFee}
}

// ShippingFee returns the flat fee applied by this calculator.
func (c PricingCalculator) ShippingFee() int64 {
	return c.shippingFee
}

// Price totals the given line items and adds the shipping fee. It totals over
// whatever it is given; callers reject empty or malformed line sequences.
func (c PricingCalculator) Price(items []domain.OrderLine) domain.PricingBreakdown {
	breakdown := domain.PricingBreakdown{
		Shipping: c.shippingFee,
		Items:    make([]domain.ItemPricingBreakdown, 0, len(items)),
	}

	for _, item := range items {
		lineSubtotal := item.UnitPrice * int64(item.Quantity)
		breakdown.Subtotal += lineSubtotal
		breakdown.Items = append(breakdown.Items, domain.ItemPricingBreakdown{
			ProductID: item.ProductID,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  lineSubtotal,
		})
	}

	breakdown.Total = breakdown.Subtotal + breakdown.Shipping
	return breakdown
}

// WithinTolerance reports whether a client-declared amount agrees with the
// computed total within AmountTolerance.
func WithinTolerance(computed, declared int64) bool {
	diff := computed - declared
	if diff < 0 {
		diff = -diff
	}
	return diff <= AmountTolerance
}
