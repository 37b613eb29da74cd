package cart

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entradaslive/ticketing-core/internal/clock"
	"github.com/entradaslive/ticketing-core/internal/discount"
	"github.com/entradaslive/ticketing-core/internal/holdstore"
	"github.com/entradaslive/ticketing-core/internal/model"
	"github.com/entradaslive/ticketing-core/internal/queue"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeSeats struct {
	mu      sync.Mutex
	seats   map[uint64]model.Seat
	updates []model.SeatStatus
	updated [][]uint64
}

func (f *fakeSeats) GetSeat(_ context.Context, _ uint64, seatID uint64) (model.Seat, error) {
	s, ok := f.seats[seatID]
	if !ok {
		return model.Seat{}, fmt.Errorf("seat %d not found", seatID)
	}
	return s, nil
}

func (f *fakeSeats) UpdateStatus(_ context.Context, _ uint64, seatIDs []uint64, status model.SeatStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, status)
	f.updated = append(f.updated, seatIDs)
	for _, id := range seatIDs {
		s := f.seats[id]
		s.Status = status
		f.seats[id] = s
	}
	return nil
}

type fakeSessions struct {
	sessions map[uint64]model.Session
}

func (f *fakeSessions) GetSession(_ context.Context, id uint64) (model.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return model.Session{}, fmt.Errorf("session %d not found", id)
	}
	return s, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	completed []queue.CartCompletedEvent
	released  []queue.HoldsReleasedEvent
}

func (f *fakePublisher) PublishCartCompleted(_ context.Context, ev queue.CartCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, ev)
	return nil
}

func (f *fakePublisher) PublishHoldsReleased(_ context.Context, ev queue.HoldsReleasedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, ev)
	return nil
}

type fakeCodes struct {
	codes map[string]model.DiscountCode
	used  map[uint64]int
}

func (f *fakeCodes) GetByCode(_ context.Context, code string) (model.DiscountCode, bool, error) {
	d, ok := f.codes[code]
	return d, ok, nil
}

func (f *fakeCodes) RegisterUse(_ context.Context, id uint64) error {
	if f.used == nil {
		f.used = map[uint64]int{}
	}
	f.used[id]++
	return nil
}

type fixture struct {
	ctrl  *Controller
	store *holdstore.MemoryStore
	seats *fakeSeats
	pub   *fakePublisher
	codes *fakeCodes
	clk   *clock.Fake
}

// newFixture builds a controller over the in-memory store with one
// session (id 1) using an after-hold release of 10 minutes and two
// seats priced $50 and $30.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(baseTime)
	store := holdstore.NewMemoryStore(clk)
	seats := &fakeSeats{seats: map[uint64]model.Seat{
		1: {ID: 1, SessionID: 1, ZoneID: 1, Label: "A1", PriceCents: 5000, Status: model.SeatAvailable},
		2: {ID: 2, SessionID: 1, ZoneID: 1, Label: "A2", PriceCents: 3000, Status: model.SeatAvailable},
	}}
	start := baseTime.Add(-24 * time.Hour)
	end := baseTime.Add(6 * time.Hour)
	sessions := &fakeSessions{sessions: map[uint64]model.Session{
		1: {
			ID:              1,
			CelebrationTime: baseTime.Add(8 * time.Hour),
			Channels: map[string]model.ChannelWindow{
				model.ChannelInternet: {Active: true, Start: &start, End: &end},
			},
			Release: model.ReleasePolicyFromMinutes(10),
			Active:  true,
		},
	}}
	codes := &fakeCodes{codes: map[string]model.DiscountCode{
		"SUMMER10": {
			ID:        7,
			Code:      "SUMMER10",
			ValidFrom: baseTime.Add(-time.Hour),
			ValidTo:   baseTime.Add(time.Hour),
			Rule:      model.DiscountPercentage,
			Value:     10,
			MaxUses:   100,
		},
	}}
	pub := &fakePublisher{}
	ctrl := NewController(store, seats, sessions, discount.NewEngine(codes, clk), pub, clk)
	return &fixture{ctrl: ctrl, store: store, seats: seats, pub: pub, codes: codes, clk: clk}
}

func TestAddSeat_ClaimAndConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(10*time.Minute), h.ExpiresAt, "TTL follows the after-hold policy")

	_, err = f.ctrl.AddSeat(ctx, "bob", 1, 1, model.ChannelInternet)
	assert.ErrorIs(t, err, holdstore.ErrConflict)

	v, err := f.ctrl.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.CartBuilding, v.State)
	assert.Equal(t, uint32(5000), v.Priced.TotalCents)
	assert.Equal(t, 600, v.RemainingSeconds)
}

func TestAddSeat_ReAddOwnSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)

	// A double click on an already-held seat is not a conflict; the
	// shopper keeps their hold and the cart gains no duplicate line.
	again, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)
	assert.Equal(t, first.Token, again.Token)

	v, err := f.ctrl.Get(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, v.Priced.Lines, 1)
	assert.Equal(t, uint32(5000), v.Priced.TotalCents)

	// The seat stays closed to everyone else.
	_, err = f.ctrl.AddSeat(ctx, "bob", 1, 1, model.ChannelInternet)
	assert.ErrorIs(t, err, holdstore.ErrConflict)
}

func TestAddSeat_SalesClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Past the channel's sale end the claim is refused outright.
	f.clk.Advance(7 * time.Hour)
	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	assert.ErrorIs(t, err, ErrSalesClosed)
}

func TestAddSeat_BeforeEventExpiryPassed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Switch to a before-event release far enough in the past that a
	// new hold would be born expired: celebration is at +8h, release
	// 9 hours before it has already gone by.
	s := f.ctrl.sessions.(*fakeSessions).sessions[1]
	s.Release = model.ReleasePolicyFromMinutes(-540)
	f.ctrl.sessions.(*fakeSessions).sessions[1] = s

	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	assert.ErrorIs(t, err, ErrSalesClosed)
}

func TestAddSeat_TerminalSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.seats.seats[2]
	s.Status = model.SeatSold
	f.seats.seats[2] = s

	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 2, model.ChannelInternet)
	assert.ErrorIs(t, err, ErrSeatUnavailable)
}

func TestRemoveSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.RemoveSeat(ctx, "alice", 1))

	// The seat is immediately claimable by someone else.
	_, err = f.ctrl.AddSeat(ctx, "bob", 1, 1, model.ChannelInternet)
	assert.NoError(t, err)

	// Removing a seat that is not in the cart reports stale state.
	err = f.ctrl.RemoveSeat(ctx, "bob", 2)
	assert.ErrorIs(t, err, holdstore.ErrNotOwner)
}

func TestApplyCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)
	_, err = f.ctrl.AddSeat(ctx, "alice", 1, 2, model.ChannelInternet)
	require.NoError(t, err)

	pc, err := f.ctrl.ApplyCode(ctx, "alice", "SUMMER10")
	require.NoError(t, err)
	assert.Equal(t, uint32(7200), pc.TotalCents)

	// An unknown code keeps the cart on the previous discount.
	pc, err = f.ctrl.ApplyCode(ctx, "alice", "NOPE")
	assert.ErrorIs(t, err, discount.ErrCodeInvalid)
	assert.Equal(t, uint32(7200), pc.TotalCents)
}

func TestCheckout_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)
	_, err = f.ctrl.AddSeat(ctx, "alice", 1, 2, model.ChannelInternet)
	require.NoError(t, err)
	_, err = f.ctrl.ApplyCode(ctx, "alice", "SUMMER10")
	require.NoError(t, err)

	priced, err := f.ctrl.Checkout(ctx, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, uint32(8000), priced.SubtotalCents)
	assert.Equal(t, uint32(7200), priced.TotalCents)

	// Seats were marked sold and the discount redemption recorded.
	require.Len(t, f.seats.updates, 1)
	assert.Equal(t, model.SeatSold, f.seats.updates[0])
	assert.ElementsMatch(t, []uint64{1, 2}, f.seats.updated[0])
	assert.Equal(t, 1, f.codes.used[7])

	// The completion event went out and the cart is gone.
	require.Len(t, f.pub.completed, 1)
	assert.Equal(t, "SOLD", f.pub.completed[0].Outcome)
	assert.Equal(t, uint32(7200), f.pub.completed[0].TotalCents)
	_, err = f.ctrl.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoCart)

	// Holds were promoted, not released: no released event.
	assert.Empty(t, f.pub.released)
}

func TestCheckout_Reserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)

	_, err = f.ctrl.Checkout(ctx, "alice", true)
	require.NoError(t, err)
	require.Len(t, f.seats.updates, 1)
	assert.Equal(t, model.SeatReserved, f.seats.updates[0])
}

// racingSeats wraps the seat fake so that the terminal status write
// races a rival claim, like a shopper clicking the seat at the instant
// a checkout finalizes.
type racingSeats struct {
	*fakeSeats
	store    holdstore.Store
	rivalErr error
}

func (r *racingSeats) UpdateStatus(ctx context.Context, sessionID uint64, seatIDs []uint64, status model.SeatStatus) error {
	_, r.rivalErr = r.store.Claim(ctx, sessionID, seatIDs[0], "bob", time.Minute)
	return r.fakeSeats.UpdateStatus(ctx, sessionID, seatIDs, status)
}

func TestCheckout_NoClaimWindowWhileFinalizing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	racing := &racingSeats{fakeSeats: f.seats, store: f.store}
	f.ctrl.seats = racing

	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)

	_, err = f.ctrl.Checkout(ctx, "alice", false)
	require.NoError(t, err)

	// The rival claim fired while the checkout was finalizing; alice's
	// hold was still live at that point, so the claim must have lost.
	assert.ErrorIs(t, racing.rivalErr, holdstore.ErrConflict)

	// After checkout the seat is terminal, so a fresh claim is refused
	// before it ever reaches the store.
	_, err = f.ctrl.AddSeat(ctx, "bob", 1, 1, model.ChannelInternet)
	assert.ErrorIs(t, err, ErrSeatUnavailable)

	// No hold was left behind on the sold seat.
	_, live, err := f.store.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, live)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.Checkout(ctx, "alice", false)
	assert.ErrorIs(t, err, ErrNoCart)

	_, err = f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.RemoveSeat(ctx, "alice", 1))

	_, err = f.ctrl.Checkout(ctx, "alice", false)
	assert.ErrorIs(t, err, ErrNoCart, "cart went back to Empty after last removal")
}

func TestCheckout_ExpiredHoldAborts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Seat 1 held now, seat 2 held four minutes later; the after-hold
	// policy gives them different expiries.
	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)
	f.clk.Advance(4 * time.Minute)
	_, err = f.ctrl.AddSeat(ctx, "alice", 1, 2, model.ChannelInternet)
	require.NoError(t, err)

	// Seat 1 lapses (held 10m), seat 2 is still live.
	f.clk.Advance(7 * time.Minute)

	_, err = f.ctrl.Checkout(ctx, "alice", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpiredHold)
	var ehe *ExpiredHoldsError
	require.ErrorAs(t, err, &ehe)
	assert.Equal(t, []uint64{1}, ehe.SeatIDs)

	// Checkout aborted back to Building with the expired seat gone.
	v, err := f.ctrl.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.CartBuilding, v.State)
	require.Len(t, v.Priced.Lines, 1)
	assert.Equal(t, uint64(2), v.Priced.Lines[0].SeatID)

	// The expired seat is available to other shoppers.
	_, err = f.ctrl.AddSeat(ctx, "bob", 1, 1, model.ChannelInternet)
	assert.NoError(t, err)

	// Nothing was sold.
	assert.Empty(t, f.seats.updates)
}

func TestExpireDue_ReleasesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)
	_, err = f.ctrl.AddSeat(ctx, "alice", 1, 2, model.ChannelInternet)
	require.NoError(t, err)

	f.clk.Advance(11 * time.Minute)

	assert.Equal(t, 1, f.ctrl.ExpireDue(ctx, f.clk.Now()))
	// Idempotent: the second sweep finds nothing.
	assert.Equal(t, 0, f.ctrl.ExpireDue(ctx, f.clk.Now()))

	require.Len(t, f.pub.released, 1)
	assert.Equal(t, "expired", f.pub.released[0].Reason)
	assert.ElementsMatch(t, []uint64{1, 2}, f.pub.released[0].SeatIDs)

	// Both seats are back in the pool.
	_, err = f.ctrl.AddSeat(ctx, "bob", 1, 1, model.ChannelInternet)
	assert.NoError(t, err)
	_, err = f.ctrl.AddSeat(ctx, "bob", 1, 2, model.ChannelInternet)
	assert.NoError(t, err)
}

func TestGet_LazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)

	f.clk.Advance(11 * time.Minute)

	// Reading the cart after the countdown ran out expires it even if
	// the sweep has not fired yet.
	v, err := f.ctrl.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.CartExpired, v.State)
	assert.Zero(t, v.RemainingSeconds)
	require.Len(t, f.pub.released, 1)

	// The sweep afterwards has nothing left to do.
	assert.Equal(t, 0, f.ctrl.ExpireDue(ctx, f.clk.Now()))
}

func TestAbandon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.Abandon(ctx, "alice"))
	require.Len(t, f.pub.released, 1)
	assert.Equal(t, "abandoned", f.pub.released[0].Reason)

	_, err = f.ctrl.AddSeat(ctx, "bob", 1, 1, model.ChannelInternet)
	assert.NoError(t, err)
}

func TestAddSeat_WrongSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sessions := f.ctrl.sessions.(*fakeSessions)
	other := sessions.sessions[1]
	other.ID = 2
	sessions.sessions[2] = other
	f.seats.seats[9] = model.Seat{ID: 9, SessionID: 2, ZoneID: 1, Label: "B1", PriceCents: 2000, Status: model.SeatAvailable}

	_, err := f.ctrl.AddSeat(ctx, "alice", 1, 1, model.ChannelInternet)
	require.NoError(t, err)
	_, err = f.ctrl.AddSeat(ctx, "alice", 2, 9, model.ChannelInternet)
	assert.ErrorIs(t, err, ErrWrongSession)
}
