package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/marketintel/engine/internal/metrics"
)

// CachedClient wraps a Client with a Redis read-through cache and a
// circuit breaker, grounded on internal/externaldata's Cache/
// BreakerManager pair generalized from {news, polling, social} sources
// down to the single market-data source. A market rarely moves enough
// within its TTL to matter for ingestion's derived fields, so a cache
// hit is preferred over a live call whenever one is fresh.
type CachedClient struct {
	inner   Client
	redis   *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
}

// NewCachedClient builds a cached, breaker-guarded decorator over inner.
func NewCachedClient(inner Client, redisClient *redis.Client, ttl time.Duration) *CachedClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "marketdata",
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerState(name, breakerStateValue(to))
		},
	})

	return &CachedClient{inner: inner, redis: redisClient, breaker: breaker, ttl: ttl}
}

func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func (c *CachedClient) cacheKey(conditionID string) string {
	return fmt.Sprintf("marketdata:market:%s", conditionID)
}

// GetMarket reads through Redis before hitting the breaker-guarded
// inner client, and caches a successful fetch for ttl.
func (c *CachedClient) GetMarket(ctx context.Context, conditionID string) (*RawMarket, error) {
	key := c.cacheKey(conditionID)

	if cached, ok := c.readCache(ctx, key); ok {
		return cached, nil
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.GetMarket(ctx, conditionID)
	})
	if err != nil {
		return nil, err
	}

	market := result.(*RawMarket)
	c.writeCache(ctx, key, market)
	return market, nil
}

func (c *CachedClient) readCache(ctx context.Context, key string) (*RawMarket, bool) {
	raw, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("marketdata cache read error")
		}
		return nil, false
	}
	var market RawMarket
	if err := json.Unmarshal([]byte(raw), &market); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("marketdata cache payload corrupt")
		return nil, false
	}
	return &market, true
}

func (c *CachedClient) writeCache(ctx context.Context, key string, market *RawMarket) {
	data, err := json.Marshal(market)
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal marketdata cache payload")
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to write marketdata cache entry")
	}
}
