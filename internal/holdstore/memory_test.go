package holdstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entradaslive/ticketing-core/internal/clock"
	"github.com/entradaslive/ticketing-core/internal/model"
)

func newStore() (*MemoryStore, *clock.Fake) {
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewMemoryStore(clk), clk
}

func TestClaim_ExactlyOneWinner(t *testing.T) {
	store, _ := newStore()
	ctx := context.Background()

	const callers = 50
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			_, err := store.Claim(ctx, 1, 42, shopper(n), 5*time.Minute)
			switch err {
			case nil:
				wins.Add(1)
			case ErrConflict:
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one claim must succeed")
	assert.Equal(t, int32(callers-1), conflicts.Load())
}

// TestClaim_FuzzManySeats hammers a small seat space from many
// goroutines and checks that no seat ever ends up with two live
// holders.
func TestClaim_FuzzManySeats(t *testing.T) {
	store, _ := newStore()
	ctx := context.Background()

	const (
		shoppers = 20
		seats    = 8
		rounds   = 25
	)
	winners := make([]sync.Map, seats) // seat index -> set of shoppers that won
	var wg sync.WaitGroup
	for i := 0; i < shoppers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				seat := uint64((n + r) % seats)
				if _, err := store.Claim(ctx, 7, seat, shopper(n), time.Minute); err == nil {
					winners[seat].Store(shopper(n), struct{}{})
				}
			}
		}(i)
	}
	wg.Wait()

	for seat := 0; seat < seats; seat++ {
		count := 0
		winners[seat].Range(func(_, _ any) bool { count++; return true })
		assert.LessOrEqual(t, count, 1, "seat %d claimed by more than one shopper", seat)
	}
}

func TestRelease_OnlyOwner(t *testing.T) {
	store, _ := newStore()
	ctx := context.Background()

	_, err := store.Claim(ctx, 1, 5, "alice", 5*time.Minute)
	require.NoError(t, err)

	// Not a silent no-op: the non-owner learns their UI is stale.
	assert.ErrorIs(t, store.Release(ctx, 1, 5, "bob"), ErrNotOwner)

	require.NoError(t, store.Release(ctx, 1, 5, "alice"))

	// Releasing twice fails: the hold is gone.
	assert.ErrorIs(t, store.Release(ctx, 1, 5, "alice"), ErrNotOwner)
}

func TestExpiry_LazyOnRead(t *testing.T) {
	store, clk := newStore()
	ctx := context.Background()

	h, err := store.Claim(ctx, 1, 9, "alice", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(5*time.Minute), h.ExpiresAt)

	clk.Advance(5*time.Minute + time.Second)

	// The lapsed hold reads as absent and the seat is claimable again.
	_, ok, err := store.Get(ctx, 1, 9)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Claim(ctx, 1, 9, "bob", 5*time.Minute)
	assert.NoError(t, err)

	// The previous owner cannot release what expired.
	assert.ErrorIs(t, store.Release(ctx, 1, 9, "alice"), ErrNotOwner)
}

func TestStatus_ViewerRelative(t *testing.T) {
	store, clk := newStore()
	ctx := context.Background()

	st, exp, err := Status(ctx, store, 1, 3, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, st)
	assert.Nil(t, exp)

	_, err = store.Claim(ctx, 1, 3, "alice", 5*time.Minute)
	require.NoError(t, err)

	st, exp, err = Status(ctx, store, 1, 3, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeldByMe, st)
	require.NotNil(t, exp)
	assert.Equal(t, clk.Now().Add(5*time.Minute), *exp)

	st, exp, err = Status(ctx, store, 1, 3, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeldByOther, st)
	assert.Nil(t, exp, "expiry is not leaked to other shoppers")
}

func shopper(n int) string {
	return "shopper-" + string(rune('a'+n%26)) + string(rune('0'+n/26))
}
