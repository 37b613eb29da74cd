package holdstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/entradaslive/ticketing-core/internal/clock"
	"github.com/entradaslive/ticketing-core/internal/model"
)

// removeOwnedScript deletes a hold key only when the stored hold
// belongs to the calling shopper.  Returns 1 on removal, 0 when the
// key is absent (expired or never held), -1 when owned by someone
// else.  Running it server-side keeps the owner check and the delete
// atomic.
var removeOwnedScript = redis.NewScript(`
    local v = redis.call('GET', KEYS[1])
    if not v then
        return 0
    end
    local h = cjson.decode(v)
    if h.shopper_id == ARGV[1] then
        redis.call('DEL', KEYS[1])
        return 1
    end
    return -1
`)

// RedisStore keeps holds as JSON values under per-seat keys with a
// PX expiry, so Redis itself enforces hold lifetime across every
// service instance.  SET NX gives the at-most-one-holder guarantee.
type RedisStore struct {
	rdb    *redis.Client
	clk    clock.Clock
	prefix string
}

// NewRedisStore returns a RedisStore on the given client.  The key
// prefix namespaces holds from the rate limiter sharing the same
// Redis.
func NewRedisStore(rdb *redis.Client, clk clock.Clock) *RedisStore {
	return &RedisStore{rdb: rdb, clk: clk, prefix: "hold"}
}

func (s *RedisStore) key(sessionID, seatID uint64) string {
	return fmt.Sprintf("%s:%d:%d", s.prefix, sessionID, seatID)
}

// Claim implements Store via SET NX PX: the first writer wins and the
// key's TTL mirrors the hold's expiry, so an expired hold vanishes
// without any sweep touching Redis.
func (s *RedisStore) Claim(ctx context.Context, sessionID, seatID uint64, shopperID string, ttl time.Duration) (model.Hold, error) {
	token, err := newToken()
	if err != nil {
		return model.Hold{}, err
	}
	now := s.clk.Now()
	h := model.Hold{
		SessionID:  sessionID,
		SeatID:     seatID,
		ShopperID:  shopperID,
		Token:      token,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	payload, err := json.Marshal(h)
	if err != nil {
		return model.Hold{}, err
	}
	ok, err := s.rdb.SetNX(ctx, s.key(sessionID, seatID), string(payload), ttl).Result()
	if err != nil {
		return model.Hold{}, err
	}
	if !ok {
		return model.Hold{}, ErrConflict
	}
	return h, nil
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, sessionID, seatID uint64, shopperID string) error {
	return s.removeOwned(ctx, sessionID, seatID, shopperID)
}

// Promote implements Store.
func (s *RedisStore) Promote(ctx context.Context, sessionID, seatID uint64, shopperID string) error {
	return s.removeOwned(ctx, sessionID, seatID, shopperID)
}

func (s *RedisStore) removeOwned(ctx context.Context, sessionID, seatID uint64, shopperID string) error {
	res, err := removeOwnedScript.Run(ctx, s.rdb, []string{s.key(sessionID, seatID)}, shopperID).Int()
	if err != nil {
		return err
	}
	if res != 1 {
		return ErrNotOwner
	}
	return nil
}

// Get implements Store.  A key Redis already expired simply reads as
// absent; a still-present key whose logical expiry has passed (clock
// skew between instances) is likewise reported absent.
func (s *RedisStore) Get(ctx context.Context, sessionID, seatID uint64) (model.Hold, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(sessionID, seatID)).Bytes()
	if err == redis.Nil {
		return model.Hold{}, false, nil
	}
	if err != nil {
		return model.Hold{}, false, err
	}
	var h model.Hold
	if err := json.Unmarshal(v, &h); err != nil {
		return model.Hold{}, false, err
	}
	if !h.Live(s.clk.Now()) {
		return model.Hold{}, false, nil
	}
	return h, true, nil
}
