package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type countingClient struct {
	calls  int
	market *RawMarket
	err    error
}

func (c *countingClient) GetMarket(context.Context, string) (*RawMarket, error) {
	c.calls++
	return c.market, c.err
}

func TestCachedClient_CachesSuccessfulFetch(t *testing.T) {
	redisClient := setupMiniRedis(t)
	inner := &countingClient{market: &RawMarket{ConditionID: "0xabc", Question: "Will X happen?"}}
	cached := NewCachedClient(inner, redisClient, time.Minute)

	m1, err := cached.GetMarket(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", m1.ConditionID)

	m2, err := cached.GetMarket(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", m2.ConditionID)

	assert.Equal(t, 1, inner.calls)
}

func TestCachedClient_PropagatesInnerError(t *testing.T) {
	redisClient := setupMiniRedis(t)
	inner := &countingClient{err: ErrNotFound}
	cached := NewCachedClient(inner, redisClient, time.Minute)

	_, err := cached.GetMarket(context.Background(), "0xmissing")
	require.Error(t, err)
}
