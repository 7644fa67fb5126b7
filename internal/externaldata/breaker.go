package externaldata

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/marketintel/engine/internal/metrics"
)

// BreakerSettings configures one source's circuit breaker: once at least
// MinRequests calls fall within a CountInterval and the share of them
// that failed reaches FailureRatio, the circuit opens for OpenTimeout;
// half-open admits HalfOpenMaxReqs probes before deciding to close or
// re-open.
type BreakerSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// DefaultBreakerSettings mirrors the teacher's LLM breaker profile:
// tolerant of a handful of failures, longer open timeout than a
// database breaker since upstream data providers recover slowly.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:     3,
		FailureRatio:    0.6,
		OpenTimeout:     60 * time.Second,
		HalfOpenMaxReqs: 2,
		CountInterval:   10 * time.Second,
	}
}

// BreakerManager holds one circuit breaker per source, generalized from
// the teacher's per-service-type CircuitBreakerManager.
type BreakerManager struct {
	breakers map[Source]*gobreaker.CircuitBreaker
}

// NewBreakerManager builds one breaker per known source using the given
// settings (or defaults when nil).
func NewBreakerManager(settings map[Source]BreakerSettings) *BreakerManager {
	m := &BreakerManager{breakers: make(map[Source]*gobreaker.CircuitBreaker)}
	for _, source := range []Source{SourceNews, SourcePolling, SourceSocial} {
		s, ok := settings[source]
		if !ok {
			s = DefaultBreakerSettings()
		}
		m.breakers[source] = m.build(source, s)
	}
	return m
}

func (m *BreakerManager) build(source Source, s BreakerSettings) *gobreaker.CircuitBreaker {
	name := string(source)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenMaxReqs,
		Interval:    s.CountInterval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.RecordCircuitBreakerState(name, stateValue(to))
		},
	})
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

// Breaker returns the circuit breaker guarding a source.
func (m *BreakerManager) Breaker(source Source) *gobreaker.CircuitBreaker {
	return m.breakers[source]
}
