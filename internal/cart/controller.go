// Package cart owns the shopper cart state machine and orchestrates
// the hold store, countdown and discount engine behind one coherent
// cart per shopper.  State transitions live exclusively here:
//
//	Empty -> Building -> Checkout -> Completed
//	                 \-> Expired
//	                 \-> Abandoned
package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/entradaslive/ticketing-core/internal/clock"
	"github.com/entradaslive/ticketing-core/internal/discount"
	"github.com/entradaslive/ticketing-core/internal/holdstore"
	"github.com/entradaslive/ticketing-core/internal/model"
	"github.com/entradaslive/ticketing-core/internal/queue"
	"github.com/entradaslive/ticketing-core/internal/salewindow"
	"github.com/entradaslive/ticketing-core/internal/timer"
)

// ErrSalesClosed is returned when the channel is not currently
// accepting new holds, either because its sale window is closed or
// because the session's release instant has already passed.
var ErrSalesClosed = errors.New("channel not open for sale")

// ErrSeatUnavailable is returned when the seat is in a terminal state
// (sold, reserved or blocked) and can never be claimed.
var ErrSeatUnavailable = errors.New("seat not available")

// ErrEmptyCart is returned when checkout is attempted on a cart with
// no held seats.
var ErrEmptyCart = errors.New("cart is empty")

// ErrNoCart is returned when the shopper has no live cart.
var ErrNoCart = errors.New("no active cart")

// ErrWrongSession is returned when a seat from a different session is
// added to a cart already bound to another one.
var ErrWrongSession = errors.New("cart is bound to a different session")

// ErrExpiredHold marks the checkout-time re-validation failure: one
// or more holds lapsed between Building and Checkout.  Match it with
// errors.Is; the concrete error is an *ExpiredHoldsError carrying the
// removed seats.
var ErrExpiredHold = errors.New("hold expired before checkout")

// ExpiredHoldsError reports which seats were dropped from the cart
// because their holds lapsed.  Checkout aborts back to Building; the
// remaining seats stay held.
type ExpiredHoldsError struct {
	SeatIDs []uint64
}

func (e *ExpiredHoldsError) Error() string {
	return fmt.Sprintf("hold expired before checkout for %d seat(s)", len(e.SeatIDs))
}

// Is lets errors.Is(err, ErrExpiredHold) succeed on the typed error.
func (e *ExpiredHoldsError) Is(target error) bool { return target == ErrExpiredHold }

// SeatSource is the slice of the seat repository the controller
// needs: seat lookup for pricing and the terminal status write on
// checkout.
type SeatSource interface {
	GetSeat(ctx context.Context, sessionID, seatID uint64) (model.Seat, error)
	UpdateStatus(ctx context.Context, sessionID uint64, seatIDs []uint64, status model.SeatStatus) error
}

// SessionSource supplies session records for sale-window decisions.
type SessionSource interface {
	GetSession(ctx context.Context, id uint64) (model.Session, error)
}

// Publisher pushes cart lifecycle events to the broker.  Publishing
// is best-effort; failures are logged, never surfaced to the shopper.
type Publisher interface {
	PublishCartCompleted(ctx context.Context, ev queue.CartCompletedEvent) error
	PublishHoldsReleased(ctx context.Context, ev queue.HoldsReleasedEvent) error
}

// cartEntry is one shopper's live cart.  All mutation happens under
// mu; the registry lock is only held long enough to find the entry.
type cartEntry struct {
	mu        sync.Mutex
	shopperID string
	sessionID uint64
	state     model.CartState
	lines     []model.CartLine
	holds     map[uint64]model.Hold
	code      *model.DiscountCode
	closed    bool // set once on expiry/abandon/completion
}

// View is the cart snapshot returned to handlers: the priced cart,
// the state, and the display countdown in seconds.
type View struct {
	SessionID        uint64           `json:"session_id"`
	State            model.CartState  `json:"state"`
	Priced           model.PricedCart `json:"cart"`
	RemainingSeconds int              `json:"remaining_seconds"`
}

// Controller coordinates holds, countdowns and discounts for every
// live cart.  It is safe for concurrent use.
type Controller struct {
	store    holdstore.Store
	seats    SeatSource
	sessions SessionSource
	engine   *discount.Engine
	pub      Publisher
	clk      clock.Clock

	mu    sync.Mutex
	carts map[string]*cartEntry // keyed by shopper session id
}

// NewController wires a Controller.  pub may be nil when no broker is
// configured; events are then skipped.
func NewController(store holdstore.Store, seats SeatSource, sessions SessionSource, engine *discount.Engine, pub Publisher, clk clock.Clock) *Controller {
	return &Controller{
		store:    store,
		seats:    seats,
		sessions: sessions,
		engine:   engine,
		pub:      pub,
		clk:      clk,
		carts:    make(map[string]*cartEntry),
	}
}

// entryFor returns the shopper's cart, creating an Empty one when
// create is set.
func (c *Controller) entryFor(shopperID string, create bool) (*cartEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.carts[shopperID]
	if !ok && create {
		e = &cartEntry{shopperID: shopperID, state: model.CartEmpty, holds: make(map[uint64]model.Hold)}
		c.carts[shopperID] = e
		ok = true
	}
	return e, ok
}

func (c *Controller) drop(shopperID string) {
	c.mu.Lock()
	delete(c.carts, shopperID)
	c.mu.Unlock()
}

// AddSeat claims a seat through the hold store and appends it to the
// shopper's cart.  The channel must currently accept holds; the hold
// TTL is derived from the session's release policy so the store's
// expiry matches the configured release instant exactly.  Adding a
// seat the shopper already holds returns the existing hold rather
// than a conflict.
func (c *Controller) AddSeat(ctx context.Context, shopperID string, sessionID, seatID uint64, channel string) (model.Hold, error) {
	now := c.clk.Now()
	sess, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return model.Hold{}, err
	}
	if !salewindow.AcceptsHolds(sess, channel, now) {
		return model.Hold{}, ErrSalesClosed
	}
	seat, err := c.seats.GetSeat(ctx, sessionID, seatID)
	if err != nil {
		return model.Hold{}, err
	}
	if seat.Status.Terminal() {
		return model.Hold{}, ErrSeatUnavailable
	}

	e, _ := c.entryFor(shopperID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != model.CartEmpty && e.state != model.CartBuilding {
		return model.Hold{}, ErrNoCart
	}
	if e.state == model.CartBuilding && e.sessionID != sessionID {
		return model.Hold{}, ErrWrongSession
	}

	ttl := salewindow.ReservationExpiry(sess, now).Sub(now)
	h, err := c.store.Claim(ctx, sessionID, seatID, shopperID, ttl)
	if errors.Is(err, holdstore.ErrConflict) {
		// Conflicting with our own hold means a double click or a cart
		// lost to a restart; adopt the live hold instead of telling the
		// shopper their own seat is taken.
		if own, live, gerr := c.store.Get(ctx, sessionID, seatID); gerr == nil && live && own.ShopperID == shopperID {
			h, err = own, nil
		}
	}
	if err != nil {
		return model.Hold{}, err
	}

	e.sessionID = sessionID
	e.state = model.CartBuilding
	if _, exists := e.holds[seatID]; !exists {
		e.lines = append(e.lines, model.CartLine{
			SeatID:     seat.ID,
			Label:      seat.Label,
			ZoneID:     seat.ZoneID,
			PriceCents: seat.PriceCents,
		})
	}
	e.holds[seatID] = h
	return h, nil
}

// RemoveSeat releases one held seat.  Removing the last seat returns
// the cart to Empty; the discount, if any, is kept for the next seat.
func (c *Controller) RemoveSeat(ctx context.Context, shopperID string, seatID uint64) error {
	e, ok := c.entryFor(shopperID, false)
	if !ok {
		return ErrNoCart
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != model.CartBuilding {
		return ErrNoCart
	}
	if _, held := e.holds[seatID]; !held {
		return holdstore.ErrNotOwner
	}
	if err := c.store.Release(ctx, e.sessionID, seatID, shopperID); err != nil && !errors.Is(err, holdstore.ErrNotOwner) {
		return err
	}
	e.dropSeat(seatID)
	if len(e.lines) == 0 {
		e.state = model.CartEmpty
	}
	return nil
}

// ApplyCode validates a discount code and attaches it to the cart,
// replacing any previously applied code.  An invalid or expired code
// leaves the cart unchanged and the error is surfaced to the
// shopper; the cart still checks out at full price.
func (c *Controller) ApplyCode(ctx context.Context, shopperID, code string) (model.PricedCart, error) {
	e, ok := c.entryFor(shopperID, false)
	if !ok {
		return model.PricedCart{}, ErrNoCart
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != model.CartBuilding {
		return model.PricedCart{}, ErrNoCart
	}
	d, err := c.engine.Validate(ctx, code)
	if err != nil {
		return discount.Apply(e.lines, e.code), err
	}
	e.code = &d // replaces, never stacks
	return discount.Apply(e.lines, e.code), nil
}

// Get returns the current cart view.  Reading the cart also applies
// lazy expiry: when the soonest hold has lapsed the whole cart is
// expired before the view is built, so a returning tab immediately
// sees the truth.
func (c *Controller) Get(ctx context.Context, shopperID string) (View, error) {
	e, ok := c.entryFor(shopperID, false)
	if !ok {
		return View{}, ErrNoCart
	}
	now := c.clk.Now()
	e.mu.Lock()
	if e.state == model.CartBuilding && timer.RemainingSeconds(e.holdList(), now) <= 0 {
		c.expireLocked(ctx, e, now)
	}
	v := View{
		SessionID:        e.sessionID,
		State:            e.state,
		Priced:           discount.Apply(e.lines, e.code),
		RemainingSeconds: timer.RemainingSeconds(e.holdList(), now),
	}
	e.mu.Unlock()
	return v, nil
}

// Checkout re-validates every hold and promotes the cart.  reserve
// selects the terminal seat status: false marks seats Sold, true
// marks them Reserved (unpaid reservation).
//
// A hold that lapsed between Building and Checkout aborts the whole
// checkout: the expired seats are removed, the cart returns to
// Building, and an *ExpiredHoldsError names the dropped seats.  The
// surviving holds stay live so the shopper can retry immediately.
//
// On success the terminal status is written before any hold is
// removed, so the seat is covered by either the hold or the terminal
// status at every instant and a rival can never claim it mid-checkout.
func (c *Controller) Checkout(ctx context.Context, shopperID string, reserve bool) (model.PricedCart, error) {
	e, ok := c.entryFor(shopperID, false)
	if !ok {
		return model.PricedCart{}, ErrNoCart
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != model.CartBuilding {
		return model.PricedCart{}, ErrNoCart
	}
	if len(e.lines) == 0 {
		return model.PricedCart{}, ErrEmptyCart
	}
	e.state = model.CartCheckout

	// Re-validate liveness of every hold before any money changes
	// hands.  The store never reports a logically expired hold as
	// live, so this is the authoritative check.
	var lapsed []uint64
	for seatID := range e.holds {
		h, live, err := c.store.Get(ctx, e.sessionID, seatID)
		if err != nil {
			e.state = model.CartBuilding
			return model.PricedCart{}, err
		}
		if !live || h.ShopperID != shopperID {
			lapsed = append(lapsed, seatID)
		}
	}
	if len(lapsed) > 0 {
		for _, seatID := range lapsed {
			e.dropSeat(seatID)
		}
		e.state = model.CartBuilding
		if len(e.lines) == 0 {
			e.state = model.CartEmpty
		}
		return model.PricedCart{}, &ExpiredHoldsError{SeatIDs: lapsed}
	}

	// Finalize while every hold is still live: the terminal status is
	// written first, so at no instant is the seat both unheld and
	// non-terminal.  A rival claim during the write loses to the hold;
	// one after it loses to the Terminal check in AddSeat.
	final := model.SeatSold
	if reserve {
		final = model.SeatReserved
	}
	seatIDs := make([]uint64, 0, len(e.holds))
	for seatID := range e.holds {
		seatIDs = append(seatIDs, seatID)
	}
	if err := c.seats.UpdateStatus(ctx, e.sessionID, seatIDs, final); err != nil {
		e.state = model.CartBuilding
		return model.PricedCart{}, err
	}

	// The holds are redundant now.  One that lapsed since the status
	// write is already gone; that reads as ErrNotOwner and is fine.
	for _, seatID := range seatIDs {
		if err := c.store.Promote(ctx, e.sessionID, seatID, shopperID); err != nil && !errors.Is(err, holdstore.ErrNotOwner) {
			log.Printf("cart: remove hold for seat %d failed: %v", seatID, err)
		}
	}

	priced := discount.Apply(e.lines, e.code)
	if e.code != nil {
		if err := c.engine.RegisterUse(ctx, *e.code); err != nil {
			log.Printf("cart: register discount use failed: %v", err)
		}
	}

	e.state = model.CartCompleted
	e.closed = true
	c.publishCompleted(ctx, e, priced, string(final))
	c.drop(shopperID)
	return priced, nil
}

// Abandon releases every hold and discards the cart.  Safe to call
// on an already-terminal cart.
func (c *Controller) Abandon(ctx context.Context, shopperID string) error {
	e, ok := c.entryFor(shopperID, false)
	if !ok {
		return ErrNoCart
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	c.releaseAllLocked(ctx, e)
	e.state = model.CartAbandoned
	e.closed = true
	c.publishReleased(ctx, e, "abandoned")
	c.drop(shopperID)
	return nil
}

// ExpireDue implements timer.Registry: every Building cart whose
// countdown reached zero is expired exactly once.  Calling it twice,
// or concurrently with the read-path lazy expiry, has no additional
// effect.
func (c *Controller) ExpireDue(ctx context.Context, now time.Time) int {
	c.mu.Lock()
	due := make([]*cartEntry, 0)
	for _, e := range c.carts {
		due = append(due, e)
	}
	c.mu.Unlock()

	n := 0
	for _, e := range due {
		e.mu.Lock()
		if e.state == model.CartBuilding && len(e.holds) > 0 && timer.RemainingSeconds(e.holdList(), now) <= 0 {
			c.expireLocked(ctx, e, now)
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// expireLocked releases all holds and marks the cart Expired.  The
// caller holds e.mu.  Idempotent via the closed flag because both the
// sweep and a client-triggered read can race here.
func (c *Controller) expireLocked(ctx context.Context, e *cartEntry, _ time.Time) {
	if e.closed {
		return
	}
	c.releaseAllLocked(ctx, e)
	e.state = model.CartExpired
	e.closed = true
	c.publishReleased(ctx, e, "expired")
	c.drop(e.shopperID)
}

func (c *Controller) releaseAllLocked(ctx context.Context, e *cartEntry) {
	for seatID := range e.holds {
		// ErrNotOwner just means the store already expired the hold.
		if err := c.store.Release(ctx, e.sessionID, seatID, e.shopperID); err != nil && !errors.Is(err, holdstore.ErrNotOwner) {
			log.Printf("cart: release seat %d failed: %v", seatID, err)
		}
	}
}

func (c *Controller) publishCompleted(ctx context.Context, e *cartEntry, priced model.PricedCart, outcome string) {
	if c.pub == nil {
		return
	}
	ev := queue.CartCompletedEvent{
		ShopperID:     e.shopperID,
		SessionID:     e.sessionID,
		SubtotalCents: priced.SubtotalCents,
		DiscountCents: priced.DiscountCents,
		TotalCents:    priced.TotalCents,
		DiscountCode:  priced.AppliedCode,
		Outcome:       outcome,
		CompletedAt:   c.clk.Now().Format(time.RFC3339),
	}
	for _, l := range e.lines {
		ev.SeatIDs = append(ev.SeatIDs, l.SeatID)
		ev.SeatLabels = append(ev.SeatLabels, l.Label)
	}
	if err := c.pub.PublishCartCompleted(ctx, ev); err != nil {
		log.Printf("cart: publish completed event failed: %v", err)
	}
}

func (c *Controller) publishReleased(ctx context.Context, e *cartEntry, reason string) {
	if c.pub == nil {
		return
	}
	ev := queue.HoldsReleasedEvent{
		ShopperID:  e.shopperID,
		SessionID:  e.sessionID,
		Reason:     reason,
		ReleasedAt: c.clk.Now().Format(time.RFC3339),
	}
	for seatID := range e.holds {
		ev.SeatIDs = append(ev.SeatIDs, seatID)
	}
	if err := c.pub.PublishHoldsReleased(ctx, ev); err != nil {
		log.Printf("cart: publish released event failed: %v", err)
	}
}

// dropSeat removes one seat's line and hold entry.  Caller holds
// e.mu.
func (e *cartEntry) dropSeat(seatID uint64) {
	delete(e.holds, seatID)
	for i, l := range e.lines {
		if l.SeatID == seatID {
			e.lines = append(e.lines[:i], e.lines[i+1:]...)
			break
		}
	}
}

func (e *cartEntry) holdList() []model.Hold {
	hs := make([]model.Hold, 0, len(e.holds))
	for _, h := range e.holds {
		hs = append(hs, h)
	}
	return hs
}
