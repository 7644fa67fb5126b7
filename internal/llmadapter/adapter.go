package llmadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/marketintel/engine/internal/domain"
	"github.com/marketintel/engine/internal/metrics"
)

// Adapter is the uniform call surface specialist agents use: it owns
// per-call timeout, structured-output validation, retry on
// RATE_LIMITED/TIMEOUT only, and ordered provider fallback with a
// circuit breaker per provider — generalized from the teacher's
// per-model CircuitBreaker (internal/llm/fallback.go) to gobreaker,
// reusing the same library the external-data breakers use.
type Adapter struct {
	providers  []Provider
	breakers   map[ProviderID]*gobreaker.CircuitBreaker
	maxRetries int
	timeout    time.Duration
}

// AdapterConfig configures retry/timeout behavior shared across providers.
type AdapterConfig struct {
	MaxRetries int
	Timeout    time.Duration
}

// NewAdapter builds an Adapter trying providers in the given order. The
// first provider is preferred; later ones are fallbacks tried only when
// an earlier one's breaker is open or its call fails.
func NewAdapter(providers []Provider, cfg AdapterConfig) *Adapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	breakers := make(map[ProviderID]*gobreaker.CircuitBreaker, len(providers))
	for _, p := range providers {
		id := p.ID()
		breakers[id] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "llm-provider-" + string(id),
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				metrics.RecordCircuitBreakerState(name, stateValue(to))
				log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("llm provider circuit breaker state change")
			},
		})
	}
	return &Adapter{providers: providers, breakers: breakers, maxRetries: cfg.MaxRetries, timeout: cfg.Timeout}
}

// Invoke tries each provider in order, retrying a given provider on
// RATE_LIMITED/TIMEOUT errors up to maxRetries with a backoff of
// attempt² seconds (1s, 4s, 9s, ...), and falling through to the next provider on any other
// failure or when that provider's circuit is open. A schema violation
// is not retried against the same provider — the model produced a
// coherent but non-conformant answer, so advancing to a different
// provider is more useful than re-asking the same one.
func (a *Adapter) Invoke(ctx context.Context, req Request) (*Result, error) {
	var lastErr error

	for _, provider := range a.providers {
		id := provider.ID()
		breaker := a.breakers[id]

		result, err := a.invokeWithRetry(ctx, breaker, provider, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var provErr *domain.ProviderError
		if errors.As(err, &provErr) {
			log.Warn().Str("provider", string(id)).Str("kind", string(provErr.Kind)).Msg("llm provider failed, trying fallback")
		} else {
			log.Warn().Err(err).Str("provider", string(id)).Msg("llm provider failed, trying fallback")
		}
	}

	return nil, fmt.Errorf("all llm providers exhausted: %w", lastErr)
}

func (a *Adapter) invokeWithRetry(ctx context.Context, breaker *gobreaker.CircuitBreaker, provider Provider, req Request) (*Result, error) {
	attempts := a.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		raw, err := breaker.Execute(func() (interface{}, error) {
			return provider.Invoke(callCtx, req)
		})
		cancel()

		if err != nil {
			lastErr = classifyBreakerError(err)
			var provErr *domain.ProviderError
			if errors.As(lastErr, &provErr) && provErr.Retryable {
				continue
			}
			return nil, lastErr
		}

		rawMsg := raw.(json.RawMessage)
		decoded := map[string]any{}
		if decodeErr := json.Unmarshal(rawMsg, &decoded); decodeErr != nil {
			lastErr = domain.NewProviderError(domain.ProviderErrorValidation, "decode structured output: "+decodeErr.Error())
			return nil, lastErr
		}
		if valErr := req.Schema.Validate(decoded); valErr != nil {
			lastErr = domain.NewProviderError(domain.ProviderErrorValidation, valErr.Error())
			return nil, lastErr
		}

		return &Result{Raw: rawMsg, Decoded: decoded, Provider: provider.ID()}, nil
	}

	return nil, lastErr
}

func classifyBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewProviderError(domain.ProviderErrorUpstream, "circuit breaker open: "+err.Error())
	}
	var provErr *domain.ProviderError
	if errors.As(err, &provErr) {
		return provErr
	}
	return domain.NewProviderError(domain.ProviderErrorUpstream, err.Error())
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
