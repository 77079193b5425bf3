package lineitem

// LineItem represents a single cart line frozen into an order at creation time.
// UnitPriceCents is the price the buyer was shown; it is never recomputed from
// the live catalog after the order exists.
type LineItem struct {
	ProductRef     string `json:"productRef"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}
