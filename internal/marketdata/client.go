// Package marketdata defines the protocol the engine uses to fetch a
// raw Polymarket market (spec §6: "market data protocol"). The actual
// market-data API is an out-of-scope collaborator; this package owns
// the client shape and a stub implementation for tests and local runs.
package marketdata

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound means the condition_id does not correspond to any known
// market.
var ErrNotFound = errors.New("marketdata: market not found")

// ErrUnreachable means the upstream collaborator could not be reached
// within the call's deadline.
var ErrUnreachable = errors.New("marketdata: unreachable")

// RawMarket is the upstream market payload prior to MBD normalization.
type RawMarket struct {
	ConditionID    string
	MarketID       string
	Question       string
	Resolution     string
	Category       string
	ExpiryTime     time.Time
	YesPrice       float64
	BestBid        float64
	BestAsk        float64
	Volume24h      float64
	LiquidityUSD   float64
	RecentPrices   []PricePoint
	Catalysts      []CatalystEvent
}

// PricePoint is one sample in the market's recent trade history, used
// to derive a volatility regime.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}

// CatalystEvent is a scheduled or anticipated event the market-data
// collaborator reports for this market (a debate date, a scheduled
// ruling, an earnings call), carried through to MBD.KeyCatalysts
// unchanged by ingestion.
type CatalystEvent struct {
	Event     string
	Timestamp time.Time
}

// Client is the market-data protocol: get_market(condition_id) in
// spec §6's vocabulary.
type Client interface {
	GetMarket(ctx context.Context, conditionID string) (*RawMarket, error)
}
