// Package externaldata fetches news, polling, and social snapshots for
// the analysis stage: per-source circuit breaker, token-bucket rate
// limiting with a daily quota, and cache-first reads with fresh/stale
// tiers (spec §4.3). The news/polling/social data providers themselves
// are out-of-scope collaborators; this package owns only the
// acquisition discipline wrapped around them.
package externaldata

import (
	"context"
	"time"
)

// Source identifies which external feed a fetch targets.
type Source string

const (
	SourceNews    Source = "news"
	SourcePolling Source = "polling"
	SourceSocial  Source = "social"
)

// Item is one normalized unit from a source: an article, a poll, or a
// social mention. Shape is deliberately loose since the upstream
// collaborator's schema is out of scope.
type Item = map[string]any

// FetchResult is a normalized snapshot from one source fetch.
type FetchResult struct {
	Items            []Item
	FreshnessSeconds int64
	Stale            bool
	FetchedAt        time.Time
}

// Params scopes a single fetch request (e.g. market question, keywords,
// time window); kept as a generic map since each source's collaborator
// defines its own query shape.
type Params map[string]string

// Provider is the raw, uncached, unprotected collaborator boundary: a
// live call to the upstream news/polling/social API. Implementations
// live outside this package's concerns (retries, caching, breaking).
type Provider interface {
	Fetch(ctx context.Context, params Params) (*FetchResult, error)
}

// Fetcher is what the rest of the engine consumes: the protected,
// cached, rate-limited view over a Provider.
type Fetcher interface {
	Fetch(ctx context.Context, source Source, params Params) (*FetchResult, error)
}
