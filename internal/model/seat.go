package model

import "time"

// SeatStatus is the single status surfaced to the seat map.  The
// values are mutually exclusive: a seat's status is derived either
// from its terminal state in the database or from a live hold, never
// from both at once.
type SeatStatus string

const (
	SeatAvailable   SeatStatus = "AVAILABLE"     // free for claiming
	SeatHeldByMe    SeatStatus = "HELD_BY_ME"    // held by the viewing shopper
	SeatHeldByOther SeatStatus = "HELD_BY_OTHER" // held by a different shopper
	SeatReserved    SeatStatus = "RESERVED"      // unpaid reservation completed
	SeatSold        SeatStatus = "SOLD"          // purchase completed
	SeatBlocked     SeatStatus = "BLOCKED"       // administratively blocked
)

// Terminal reports whether the status is a database-owned terminal
// state.  Terminal seats never enter the hold store.
func (s SeatStatus) Terminal() bool {
	return s == SeatReserved || s == SeatSold || s == SeatBlocked
}

// Seat describes one sellable seat of a session.  Seats belong to a
// pricing zone; the stored price never changes when discounts apply.
//
// Fields:
//  ID         – primary key identifier.
//  SessionID  – session this seat is sold for.
//  ZoneID     – pricing zone the seat belongs to.
//  Label      – human-readable seat label (e.g. "B12").
//  PriceCents – base price in cents.
//  Status     – terminal status column; holds are not stored here.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Seat struct {
	ID         uint64     // asientos.id
	SessionID  uint64     // asientos.funcion_id
	ZoneID     uint64     // asientos.zona_id
	Label      string     // asientos.etiqueta
	PriceCents uint32     // asientos.precio_cents
	Status     SeatStatus // asientos.estado (terminal states only)
	CreatedAt  time.Time  // asientos.created_at
	UpdatedAt  time.Time  // asientos.updated_at
}

// SeatView is what the seat map renders for one seat: the base seat
// data plus the viewer-relative status and, when the viewer holds the
// seat, its expiry for countdown display.
type SeatView struct {
	SeatID     uint64     `json:"seat_id"`
	Label      string     `json:"label"`
	ZoneID     uint64     `json:"zone_id"`
	PriceCents uint32     `json:"price_cents"`
	Status     SeatStatus `json:"status"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
