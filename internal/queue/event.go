// Package queue defines message payloads exchanged over the message
// broker and the background consumer for the sales log.
package queue

// CartCompletedEvent is published when a shopper completes checkout
// and their holds are promoted to sold or reserved seats.  It carries
// enough for downstream consumers to log, notify or feed analytics
// without querying the primary database.
type CartCompletedEvent struct {
	ShopperID     string   `json:"shopper_id"`
	SessionID     uint64   `json:"session_id"`
	SeatIDs       []uint64 `json:"seat_ids"`
	SeatLabels    []string `json:"seats"`
	SubtotalCents uint32   `json:"subtotal_cents"`
	DiscountCents uint32   `json:"discount_cents"`
	TotalCents    uint32   `json:"total_cents"`
	DiscountCode  string   `json:"discount_code,omitempty"`
	Outcome       string   `json:"outcome"` // SOLD or RESERVED
	CompletedAt   string   `json:"completed_at"`
}

// HoldsReleasedEvent is published when a cart's holds go back to the
// pool without a purchase, either because the countdown ran out or
// because the shopper abandoned the cart.
type HoldsReleasedEvent struct {
	ShopperID  string   `json:"shopper_id"`
	SessionID  uint64   `json:"session_id"`
	SeatIDs    []uint64 `json:"seat_ids"`
	Reason     string   `json:"reason"` // "expired" or "abandoned"
	ReleasedAt string   `json:"released_at"`
}
