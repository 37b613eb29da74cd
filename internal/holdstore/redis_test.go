package holdstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entradaslive/ticketing-core/internal/clock"
	"github.com/entradaslive/ticketing-core/internal/model"
)

var redisBase = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newRedisFixture(t *testing.T) (*RedisStore, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	return NewRedisStore(db, clock.NewFake(redisBase)), mock
}

func TestRedisStore_ClaimWins(t *testing.T) {
	s, mock := newRedisFixture(t)
	mock.Regexp().ExpectSetNX("hold:1:1", `.*"shopper_id":"alice".*`, 10*time.Minute).SetVal(true)

	h, err := s.Claim(context.Background(), 1, 1, "alice", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "alice", h.ShopperID)
	assert.Equal(t, redisBase.Add(10*time.Minute), h.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_ClaimConflict(t *testing.T) {
	s, mock := newRedisFixture(t)

	// SET NX returning false means another live hold owns the key.
	mock.Regexp().ExpectSetNX("hold:1:1", `.*`, 10*time.Minute).SetVal(false)

	_, err := s.Claim(context.Background(), 1, 1, "bob", 10*time.Minute)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_GetAbsent(t *testing.T) {
	s, mock := newRedisFixture(t)
	mock.ExpectGet("hold:1:2").RedisNil()

	_, live, err := s.Get(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.False(t, live)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_GetLogicalExpiry(t *testing.T) {
	s, mock := newRedisFixture(t)
	ctx := context.Background()

	// The key still exists (another instance's clock runs behind, so
	// the PX expiry has not fired yet) but the logical expiry has
	// passed; it must not read as live.
	h := model.Hold{
		SessionID:  1,
		SeatID:     1,
		ShopperID:  "alice",
		AcquiredAt: redisBase.Add(-10 * time.Minute),
		ExpiresAt:  redisBase.Add(-time.Minute),
	}
	payload, err := json.Marshal(h)
	require.NoError(t, err)
	mock.ExpectGet("hold:1:1").SetVal(string(payload))

	_, live, err := s.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, live)

	// A hold whose logical expiry is still ahead round-trips intact.
	h.ExpiresAt = redisBase.Add(5 * time.Minute)
	payload, err = json.Marshal(h)
	require.NoError(t, err)
	mock.ExpectGet("hold:1:1").SetVal(string(payload))

	got, live, err := s.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, "alice", got.ShopperID)
	assert.Equal(t, redisBase.Add(5*time.Minute), got.ExpiresAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_RemoveOwned(t *testing.T) {
	s, mock := newRedisFixture(t)
	ctx := context.Background()

	// 1: the caller owned the hold and it was deleted.
	mock.ExpectEvalSha(removeOwnedScript.Hash(), []string{"hold:1:1"}, "alice").SetVal(int64(1))
	assert.NoError(t, s.Release(ctx, 1, 1, "alice"))

	// 0: the key is absent, the hold expired or never existed.
	mock.ExpectEvalSha(removeOwnedScript.Hash(), []string{"hold:1:1"}, "alice").SetVal(int64(0))
	assert.ErrorIs(t, s.Release(ctx, 1, 1, "alice"), ErrNotOwner)

	// -1: a different shopper owns the hold.
	mock.ExpectEvalSha(removeOwnedScript.Hash(), []string{"hold:1:1"}, "bob").SetVal(int64(-1))
	assert.ErrorIs(t, s.Promote(ctx, 1, 1, "bob"), ErrNotOwner)

	assert.NoError(t, mock.ExpectationsWereMet())
}
