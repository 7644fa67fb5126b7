package externaldata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/marketintel/engine/internal/metrics"
)

// cachedPayload is what's actually stored in Redis: the fetch result
// plus the time it was fetched, so freshness can be recomputed on read
// rather than trusted from write time.
type cachedPayload struct {
	Items     []Item    `json:"items"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache wraps a Redis client with fresh/stale tiers: a read younger
// than FreshTTL is served as fresh, older than FreshTTL but younger
// than StaleTTL is served with Stale=true, and anything older is a
// cache miss (grounded on the teacher's CachedCoinGeckoClient's
// cache-key/TTL pattern, generalized from a single TTL to two tiers).
type Cache struct {
	redis    *redis.Client
	freshTTL map[Source]time.Duration
	staleTTL map[Source]time.Duration
}

// NewCache builds a cache with per-source fresh TTLs; the stale TTL is
// always 4x the fresh TTL.
func NewCache(redisClient *redis.Client, freshTTL map[Source]time.Duration) *Cache {
	stale := make(map[Source]time.Duration, len(freshTTL))
	for source, ttl := range freshTTL {
		stale[source] = ttl * 4
	}
	return &Cache{redis: redisClient, freshTTL: freshTTL, staleTTL: stale}
}

func cacheKey(source Source, params Params) string {
	key := fmt.Sprintf("externaldata:%s", source)
	for k, v := range params {
		key += fmt.Sprintf(":%s=%s", k, v)
	}
	return key
}

// Get returns a cached result tagged fresh or stale, or (nil, false) on
// a full miss (past the stale TTL, or never written).
func (c *Cache) Get(ctx context.Context, source Source, params Params) (*FetchResult, bool) {
	key := cacheKey(source, params)
	raw, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("externaldata cache read error")
		}
		metrics.ExternalDataCache.WithLabelValues(string(source), "miss").Inc()
		return nil, false
	}

	var payload cachedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("externaldata cache payload corrupt")
		metrics.ExternalDataCache.WithLabelValues(string(source), "miss").Inc()
		return nil, false
	}

	age := time.Since(payload.FetchedAt)
	freshTTL := c.freshTTL[source]
	stale := age > freshTTL

	tier := "fresh"
	if stale {
		tier = "stale"
	}
	metrics.ExternalDataCache.WithLabelValues(string(source), tier).Inc()

	return &FetchResult{
		Items:            payload.Items,
		FreshnessSeconds: int64(age.Seconds()),
		Stale:            stale,
		FetchedAt:        payload.FetchedAt,
	}, true
}

// Put writes a fresh fetch result, keyed with the stale TTL so a later
// read within that window still resolves (as stale) rather than
// missing entirely.
func (c *Cache) Put(ctx context.Context, source Source, params Params, result *FetchResult) {
	key := cacheKey(source, params)
	payload := cachedPayload{Items: result.Items, FetchedAt: result.FetchedAt}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal externaldata cache payload")
		return
	}
	ttl := c.staleTTL[source]
	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to write externaldata cache entry")
	}
}
