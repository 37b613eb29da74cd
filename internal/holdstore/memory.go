package holdstore

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/entradaslive/ticketing-core/internal/clock"
	"github.com/entradaslive/ticketing-core/internal/model"
)

const shardCount = 64

type seatKey struct {
	sessionID uint64
	seatID    uint64
}

// shard holds a slice of the seat space behind its own mutex so that
// contention on one seat never serialises claims on unrelated seats.
type shard struct {
	mu    sync.Mutex
	holds map[seatKey]model.Hold
}

// MemoryStore is an in-process Store used when no Redis is configured
// and by tests.  Expiry is lazy: every operation discards a lapsed
// hold before evaluating against it, so a logically expired hold is
// never observed as live even between sweeps.
type MemoryStore struct {
	shards [shardCount]*shard
	clk    clock.Clock
}

// NewMemoryStore returns an empty MemoryStore reading time from clk.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	s := &MemoryStore{clk: clk}
	for i := range s.shards {
		s.shards[i] = &shard{holds: make(map[seatKey]model.Hold)}
	}
	return s
}

func (s *MemoryStore) shardFor(k seatKey) *shard {
	h := fnv.New32a()
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(k.sessionID >> (8 * i))
		buf[8+i] = byte(k.seatID >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	return s.shards[h.Sum32()%shardCount]
}

// Claim implements Store.  First successful claim wins; a live hold
// by anyone, including the caller, yields ErrConflict.
func (s *MemoryStore) Claim(_ context.Context, sessionID, seatID uint64, shopperID string, ttl time.Duration) (model.Hold, error) {
	k := seatKey{sessionID, seatID}
	sh := s.shardFor(k)
	now := s.clk.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.holds[k]; ok {
		if existing.Live(now) {
			return model.Hold{}, ErrConflict
		}
		delete(sh.holds, k) // lapsed, treat as absent
	}
	token, err := newToken()
	if err != nil {
		return model.Hold{}, err
	}
	h := model.Hold{
		SessionID:  sessionID,
		SeatID:     seatID,
		ShopperID:  shopperID,
		Token:      token,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	sh.holds[k] = h
	return h, nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, sessionID, seatID uint64, shopperID string) error {
	return s.removeOwned(sessionID, seatID, shopperID)
}

// Promote implements Store.  Identical to Release at this layer; the
// caller records the terminal seat status in the database.
func (s *MemoryStore) Promote(_ context.Context, sessionID, seatID uint64, shopperID string) error {
	return s.removeOwned(sessionID, seatID, shopperID)
}

func (s *MemoryStore) removeOwned(sessionID, seatID uint64, shopperID string) error {
	k := seatKey{sessionID, seatID}
	sh := s.shardFor(k)
	now := s.clk.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	h, ok := sh.holds[k]
	if !ok {
		return ErrNotOwner
	}
	if !h.Live(now) {
		delete(sh.holds, k)
		return ErrNotOwner
	}
	if h.ShopperID != shopperID {
		return ErrNotOwner
	}
	delete(sh.holds, k)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, sessionID, seatID uint64) (model.Hold, bool, error) {
	k := seatKey{sessionID, seatID}
	sh := s.shardFor(k)
	now := s.clk.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	h, ok := sh.holds[k]
	if !ok {
		return model.Hold{}, false, nil
	}
	if !h.Live(now) {
		delete(sh.holds, k)
		return model.Hold{}, false, nil
	}
	return h, true, nil
}
