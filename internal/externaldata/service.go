package externaldata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/marketintel/engine/internal/metrics"
)

// Service is the production Fetcher: cache-first, rate-limited,
// circuit-broken, per-call-timeout reads over one Provider per source.
type Service struct {
	providers map[Source]Provider
	cache     *Cache
	breakers  *BreakerManager
	limiter   *RateLimiter
	timeout   time.Duration
}

// NewService wires a Fetcher from its collaborators. providers maps
// each source to its (out-of-scope) upstream client.
func NewService(providers map[Source]Provider, cache *Cache, breakers *BreakerManager, limiter *RateLimiter, timeout time.Duration) *Service {
	return &Service{providers: providers, cache: cache, breakers: breakers, limiter: limiter, timeout: timeout}
}

// Fetch serves a fresh cache hit immediately. On a stale hit or full
// miss it attempts a live call guarded by the rate limiter and circuit
// breaker; a live failure falls back to the stale cached value (if any)
// with Stale=true, or propagates the error on a full miss.
func (s *Service) Fetch(ctx context.Context, source Source, params Params) (*FetchResult, error) {
	cached, hadCached := s.cache.Get(ctx, source, params)
	if hadCached && !cached.Stale {
		return cached, nil
	}

	metrics.ExternalDataFetches.WithLabelValues(string(source), "attempt").Inc()

	result, err := s.fetchLive(ctx, source, params)
	if err != nil {
		if hadCached {
			log.Warn().Err(err).Str("source", string(source)).Msg("live fetch failed, serving stale cache")
			metrics.ExternalDataFetches.WithLabelValues(string(source), "stale_fallback").Inc()
			return cached, nil
		}
		metrics.ExternalDataFetches.WithLabelValues(string(source), "error").Inc()
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}

	metrics.ExternalDataFetches.WithLabelValues(string(source), "success").Inc()
	s.cache.Put(ctx, source, params, result)
	return result, nil
}

func (s *Service) fetchLive(ctx context.Context, source Source, params Params) (*FetchResult, error) {
	if err := s.limiter.Wait(ctx, source); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	provider, ok := s.providers[source]
	if !ok {
		return nil, fmt.Errorf("no provider configured for source %s", source)
	}

	breaker := s.breakers.Breaker(source)
	raw, err := breaker.Execute(func() (interface{}, error) {
		return provider.Fetch(callCtx, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit breaker for %s: %w", source, err)
		}
		return nil, err
	}

	result, ok := raw.(*FetchResult)
	if !ok || result == nil {
		return nil, fmt.Errorf("provider for %s returned no result", source)
	}
	result.FetchedAt = time.Now()
	return result, nil
}
