package externaldata

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/marketintel/engine/internal/metrics"
)

// RateLimitSettings configures one source's token bucket plus a daily
// request quota (spec §4.3: "rate-limited token buckets per endpoint
// with daily-quota counter").
type RateLimitSettings struct {
	RequestsPerSecond float64
	Burst             int
	DailyQuota        int64
}

// DefaultRateLimitSettings is deliberately conservative: external news
// and social APIs bill per-request and rate-limit aggressively.
func DefaultRateLimitSettings() RateLimitSettings {
	return RateLimitSettings{RequestsPerSecond: 2, Burst: 5, DailyQuota: 5000}
}

// limiterState pairs a token bucket with a day-scoped counter. The
// counter resets once 24 hours have passed since the current window
// began (a rolling window, not the calendar day); this is
// process-wide state guarded by a mutex per spec §5's shared-resource
// policy, not a distributed quota.
type limiterState struct {
	mu         sync.Mutex
	bucket     *rate.Limiter
	quota      int64
	usedToday  int64
	dayStarted time.Time
}

// RateLimiter enforces per-source request pacing and a daily cap.
type RateLimiter struct {
	sources map[Source]*limiterState
}

// NewRateLimiter builds one limiter per known source.
func NewRateLimiter(settings map[Source]RateLimitSettings) *RateLimiter {
	rl := &RateLimiter{sources: make(map[Source]*limiterState)}
	now := time.Now()
	for _, source := range []Source{SourceNews, SourcePolling, SourceSocial} {
		s, ok := settings[source]
		if !ok {
			s = DefaultRateLimitSettings()
		}
		rl.sources[source] = &limiterState{
			bucket:     rate.NewLimiter(rate.Limit(s.RequestsPerSecond), s.Burst),
			quota:      s.DailyQuota,
			dayStarted: now,
		}
	}
	return rl
}

// ErrQuotaExceeded is returned when a source's daily request budget is
// exhausted.
var ErrQuotaExceeded = &quotaError{}

type quotaError struct{}

func (*quotaError) Error() string { return "externaldata: daily quota exceeded" }

// Wait blocks until the source's token bucket admits a request, then
// charges the daily quota. Returns ErrQuotaExceeded without waiting if
// the day's quota is already spent.
func (rl *RateLimiter) Wait(ctx context.Context, source Source) error {
	state := rl.sources[source]
	state.mu.Lock()
	rl.rolloverIfNewDay(state)
	if state.usedToday >= state.quota {
		state.mu.Unlock()
		metrics.RateLimiterRejections.WithLabelValues(string(source)).Inc()
		return ErrQuotaExceeded
	}
	state.usedToday++
	state.mu.Unlock()

	return state.bucket.Wait(ctx)
}

func (rl *RateLimiter) rolloverIfNewDay(state *limiterState) {
	now := time.Now()
	if now.Sub(state.dayStarted) >= 24*time.Hour {
		state.usedToday = 0
		state.dayStarted = now
	}
}
