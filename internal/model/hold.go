package model

import "time"

// Hold represents a temporary, exclusive claim on one seat while a
// shopper builds their cart.  At most one live hold exists per seat
// at any instant; the hold store enforces this.  A hold disappears on
// explicit release, on checkout promotion, or when ExpiresAt passes.
//
// Fields:
//  SessionID  – session the seat belongs to.
//  SeatID     – seat being held.
//  ShopperID  – shopper session that owns the hold.
//  Token      – opaque token returned to the client for correlation.
//  AcquiredAt – when the hold was taken.
//  ExpiresAt  – when the hold lapses; never extended by activity.
type Hold struct {
	SessionID  uint64    `json:"session_id"`
	SeatID     uint64    `json:"seat_id"`
	ShopperID  string    `json:"shopper_id"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Live reports whether the hold is still in force at the given
// instant.  Reads must treat a non-live hold as absent.
func (h Hold) Live(now time.Time) bool {
	return now.Before(h.ExpiresAt)
}
