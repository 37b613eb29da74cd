package model

// CartState tracks where a shopper's cart is in its lifecycle.
// Transitions are owned exclusively by the cart controller:
//
//	Empty -> Building -> Checkout -> Completed
//	                 \-> Expired
//	                 \-> Abandoned
//
// Completed, Expired and Abandoned are terminal from the shopper's
// perspective.
type CartState string

const (
	CartEmpty     CartState = "EMPTY"
	CartBuilding  CartState = "BUILDING"
	CartCheckout  CartState = "CHECKOUT"
	CartCompleted CartState = "COMPLETED"
	CartExpired   CartState = "EXPIRED"
	CartAbandoned CartState = "ABANDONED"
)

// CartLine is one held seat inside a cart, priced at its stored base
// price.  Lines keep insertion order so the cart renders stably.
type CartLine struct {
	SeatID     uint64 `json:"seat_id"`
	Label      string `json:"label"`
	ZoneID     uint64 `json:"zone_id"`
	PriceCents uint32 `json:"price_cents"`
}

// PricedCart is the result of running the discount engine over a set
// of cart lines.  SubtotalCents is the sum of line prices,
// DiscountCents the reduction (zero without a code), TotalCents the
// amount the shopper would be charged.
type PricedCart struct {
	Lines         []CartLine `json:"lines"`
	SubtotalCents uint32     `json:"subtotal_cents"`
	DiscountCents uint32     `json:"discount_cents"`
	TotalCents    uint32     `json:"total_cents"`
	AppliedCode   string     `json:"applied_code,omitempty"`
}
