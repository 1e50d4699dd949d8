package domain

// PricingBreakdown captures the aggregated monetary results of pricing an order.
type PricingBreakdown struct {
	Subtotal int64
	Shipping int64
	Total    int64
	Items    []ItemPricingBreakdown
}

// ItemPricingBreakdown stores the per-line pricing outputs.
type ItemPricingBreakdown struct {
	ProductID string
	UnitPrice int64
	Quantity  int
	Subtotal  int64
}
