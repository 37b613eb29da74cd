// Package holdstore owns the authoritative seat-hold state: the
// mapping from a seat to at most one live hold.  Two implementations
// share one contract — RedisStore for multi-instance deployments and
// MemoryStore for single-process use and tests.  Whatever countdown a
// client renders is a display hint only; liveness decisions are made
// here.
package holdstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/entradaslive/ticketing-core/internal/model"
)

// ErrConflict is returned by Claim when another shopper already holds
// the seat.  The loser is not retried automatically; the seat simply
// renders as held-by-other.
var ErrConflict = errors.New("seat already held")

// ErrNotOwner is returned by Release and Promote when the caller does
// not own a live hold on the seat.  A missing or expired hold counts
// as not-owned so stale clients can detect that their UI state is out
// of date rather than see a silent no-op.
var ErrNotOwner = errors.New("hold not owned by caller")

// Store is the seat-hold contract.  Claim must be atomic: under
// concurrent callers for one seat exactly one succeeds.  Reads never
// observe a logically expired hold as live.
type Store interface {
	// Claim takes an exclusive hold on the seat for the shopper,
	// lapsing after ttl.  Returns ErrConflict when another live hold
	// exists.
	Claim(ctx context.Context, sessionID, seatID uint64, shopperID string, ttl time.Duration) (model.Hold, error)
	// Release discards the shopper's hold on the seat.  Returns
	// ErrNotOwner when no live hold is owned by the shopper.
	Release(ctx context.Context, sessionID, seatID uint64, shopperID string) error
	// Promote removes the shopper's hold at checkout so that the
	// terminal seat status recorded in the database takes over.
	// Owner-checked like Release.
	Promote(ctx context.Context, sessionID, seatID uint64, shopperID string) error
	// Get returns the live hold on the seat, if any.
	Get(ctx context.Context, sessionID, seatID uint64) (model.Hold, bool, error)
}

// Status derives the viewer-relative hold status of a seat.  Terminal
// states (sold, reserved, blocked) live in the database and take
// precedence in the caller; this function only distinguishes
// available from held-by-me / held-by-other.
func Status(ctx context.Context, s Store, sessionID, seatID uint64, viewerID string) (model.SeatStatus, *time.Time, error) {
	h, ok, err := s.Get(ctx, sessionID, seatID)
	if err != nil {
		return model.SeatAvailable, nil, err
	}
	if !ok {
		return model.SeatAvailable, nil, nil
	}
	if h.ShopperID == viewerID {
		exp := h.ExpiresAt
		return model.SeatHeldByMe, &exp, nil
	}
	return model.SeatHeldByOther, nil, nil
}

// newToken returns a random hexadecimal correlation token for a hold.
func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
