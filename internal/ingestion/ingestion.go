// Package ingestion normalizes a raw market-data payload into a
// MarketBriefingDocument, computing the derived fields spec §4.1 names:
// liquidity_score from book depth, volatility_regime from recent price
// variance, and ambiguity_flags from heuristic scans of the resolution
// criteria text. Grounded on the teacher's CoinGeckoClient normalization
// step (converting an upstream payload into the teacher's own
// MarketPrice/OHLCV shape) generalized to MBD construction.
package ingestion

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/marketintel/engine/internal/domain"
	"github.com/marketintel/engine/internal/marketdata"
)

// categoryToEventType maps the market-data collaborator's free-text
// category onto the engine's closed EventType vocabulary.
var categoryToEventType = map[string]domain.EventType{
	"election":      domain.EventTypeElection,
	"politics":      domain.EventTypeElection,
	"policy":        domain.EventTypePolicy,
	"regulation":    domain.EventTypePolicy,
	"court":         domain.EventTypeCourt,
	"legal":         domain.EventTypeCourt,
	"geopolitics":   domain.EventTypeGeopolitical,
	"geopolitical":  domain.EventTypeGeopolitical,
	"war":           domain.EventTypeGeopolitical,
	"economy":       domain.EventTypeEconomic,
	"economic":      domain.EventTypeEconomic,
	"finance":       domain.EventTypeEconomic,
}

// ambiguityPhrases are heuristic markers of loosely specified resolution
// criteria, scanned case-insensitively.
var ambiguityPhrases = []string{
	"subject to interpretation",
	"at the discretion of",
	"may be amended",
	"tbd",
	"to be determined",
	"unclear",
	"ambiguous",
}

// Ingest fetches the raw market and normalizes it into an MBD, or
// returns an IngestionFailed error per spec §4.1 — terminal for the
// pipeline.
func Ingest(ctx context.Context, client marketdata.Client, conditionID string, now time.Time) (domain.MarketBriefingDocument, error) {
	raw, err := client.GetMarket(ctx, conditionID)
	if err != nil {
		return domain.MarketBriefingDocument{}, domain.IngestionFailed{ConditionID: conditionID, Reason: err.Error()}
	}

	mbd := domain.MarketBriefingDocument{
		MarketID:           raw.MarketID,
		ConditionID:        raw.ConditionID,
		EventType:          classifyEventType(raw.Category),
		Question:           raw.Question,
		ResolutionCriteria: raw.Resolution,
		ExpiryTimestamp:    raw.ExpiryTime,
		CurrentProbability: raw.YesPrice,
		LiquidityScore:     liquidityScore(raw),
		BidAskSpread:       bidAskSpread(raw),
		VolatilityRegime:   volatilityRegime(raw.RecentPrices),
		Volume24h:          raw.Volume24h,
		AmbiguityFlags:     scanAmbiguity(raw.Resolution),
		KeyCatalysts:       catalysts(raw.Catalysts),
	}

	if err := mbd.Valid(now); err != nil {
		return domain.MarketBriefingDocument{}, domain.IngestionFailed{ConditionID: conditionID, Reason: err.Error()}
	}

	return mbd, nil
}

// catalysts carries the market-data collaborator's scheduled-event list
// through to the MBD unchanged; thesis construction requires at least
// one to cite (spec §4.6), so a market with none reported gets an empty
// KeyCatalysts and thesis construction fails with an error; no
// placeholder catalyst is synthesized here.
func catalysts(raw []marketdata.CatalystEvent) []domain.Catalyst {
	if len(raw) == 0 {
		return nil
	}
	out := make([]domain.Catalyst, 0, len(raw))
	for _, c := range raw {
		out = append(out, domain.Catalyst{Event: c.Event, Timestamp: c.Timestamp})
	}
	return out
}

func classifyEventType(category string) domain.EventType {
	if et, ok := categoryToEventType[strings.ToLower(strings.TrimSpace(category))]; ok {
		return et
	}
	return domain.EventTypeOther
}

// liquidityScore maps liquidity-pool depth (USD) onto a 0-10 scale via
// a log scale, since market depth spans several orders of magnitude.
func liquidityScore(raw *marketdata.RawMarket) float64 {
	if raw.LiquidityUSD <= 0 {
		return 0
	}
	score := math.Log10(raw.LiquidityUSD+1) * 1.5
	return clamp(score, 0, 10)
}

func bidAskSpread(raw *marketdata.RawMarket) float64 {
	if raw.BestAsk <= 0 || raw.BestBid <= 0 || raw.BestAsk < raw.BestBid {
		return 0
	}
	return raw.BestAsk - raw.BestBid
}

// volatilityRegime buckets recent price variance into low/medium/high.
// Grounded on the thresholds the teacher's trend-following agents use
// for regime-switching (see internal/agent's momentum framing).
func volatilityRegime(points []marketdata.PricePoint) domain.VolatilityRegime {
	if len(points) < 2 {
		return domain.VolatilityLow
	}

	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}

	mean := 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))

	variance := 0.0
	for _, p := range prices {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(prices))
	stddev := math.Sqrt(variance)

	switch {
	case stddev < 0.03:
		return domain.VolatilityLow
	case stddev < 0.08:
		return domain.VolatilityMedium
	default:
		return domain.VolatilityHigh
	}
}

func scanAmbiguity(resolutionCriteria string) []string {
	lower := strings.ToLower(resolutionCriteria)
	var flags []string
	for _, phrase := range ambiguityPhrases {
		if strings.Contains(lower, phrase) {
			flags = append(flags, fmt.Sprintf("resolution criteria contains ambiguous phrase: %q", phrase))
		}
	}
	return flags
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
