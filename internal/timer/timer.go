// Package timer derives the shopper-facing countdown from hold
// expiries and runs the background sweep that releases overdue holds.
// The countdown is display-only; the authoritative expiry lives in
// the hold store, so two browser tabs can never disagree about
// whether a seat is still held.
package timer

import (
	"context"
	"log"
	"time"

	"github.com/entradaslive/ticketing-core/internal/clock"
	"github.com/entradaslive/ticketing-core/internal/model"
)

// RemainingSeconds returns the number of whole seconds until the
// soonest hold expiry, clamped at zero.  Adding a seat to a cart does
// not reset the other seats' expiries, so the displayed countdown
// always tracks the hold that lapses first.  An empty set yields
// zero.
func RemainingSeconds(holds []model.Hold, now time.Time) int {
	if len(holds) == 0 {
		return 0
	}
	soonest := holds[0].ExpiresAt
	for _, h := range holds[1:] {
		if h.ExpiresAt.Before(soonest) {
			soonest = h.ExpiresAt
		}
	}
	secs := int(soonest.Sub(now) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// Registry is the slice of the cart layer the sweeper needs: one call
// that expires every cart whose countdown has reached zero.  The
// implementation must be idempotent because the client-triggered
// expiry path can race with the sweep.
type Registry interface {
	ExpireDue(ctx context.Context, now time.Time) int
}

// Sweeper periodically expires overdue carts.  It runs independently
// of any shopper request, so a shopper who closed their browser
// mid-hold is cleaned up by time alone.
type Sweeper struct {
	reg      Registry
	clk      clock.Clock
	interval time.Duration
}

// NewSweeper returns a sweeper ticking every interval.
func NewSweeper(reg Registry, clk clock.Clock, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Sweeper{reg: reg, clk: clk, interval: interval}
}

// Run blocks until ctx is cancelled, expiring due carts on every
// tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("sweep: started, interval=%s", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("sweep: stopped")
			return
		case <-ticker.C:
			if n := s.reg.ExpireDue(ctx, s.clk.Now()); n > 0 {
				log.Printf("sweep: expired %d cart(s)", n)
			}
		}
	}
}
