// Package recommendation synthesizes the terminal TradeRecommendation
// from the consensus probability, the winning thesis, and the risk
// philosophy signals (spec §4.9). Cent-denominated zone and EV math runs
// in shopspring/decimal, the convention the pack's trading repos use to
// keep price-zone arithmetic free of float drift.
package recommendation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/debate"
	"github.com/marketintel/engine/internal/domain"
)

var (
	hundred    = decimal.NewFromInt(100)
	five       = decimal.NewFromInt(5)
	ninetyFive = decimal.NewFromInt(95)
)

// Build selects an action, computes entry/target zones and expected
// value, and assembles the human-readable explanation.
func Build(
	mbd domain.MarketBriefingDocument,
	consensus domain.Consensus,
	bull, bear domain.Thesis,
	record domain.DebateRecord,
	riskSignals []domain.RiskPhilosophySignal,
	cfg config.ConsensusConfig,
) domain.TradeRecommendation {
	edge := consensus.ConsensusProbability - mbd.CurrentProbability
	absEdge := edge
	if absEdge < 0 {
		absEdge = -absEdge
	}

	action := selectAction(consensus, mbd.CurrentProbability, absEdge, cfg.MinEdgeThreshold)
	liquidityRisk := classifyLiquidityRisk(mbd, riskSignals)

	bandWidth := decimal.NewFromFloat(consensus.ConfidenceBandHi - consensus.ConfidenceBandLo)
	wideningBps := averageZoneWidening(riskSignals)

	currentQuote := decimal.NewFromFloat(mbd.CurrentProbability).Mul(hundred)
	entryLo, entryHi := entryZone(currentQuote, bandWidth, liquidityRisk, wideningBps)

	consensusProb := decimal.NewFromFloat(consensus.ConsensusProbability)
	targetLo, targetHi := targetZone(consensusProb, bandWidth)

	ev := expectedValue(action, entryLo, entryHi, consensusProb)

	winProbability := consensus.ConsensusProbability
	if action == domain.ActionLongNo {
		winProbability = 1 - consensus.ConsensusProbability
	}

	explanation := buildExplanation(consensus, mbd.CurrentProbability, bull, bear, record)

	entryLoF, _ := entryLo.Float64()
	entryHiF, _ := entryHi.Float64()
	targetLoF, _ := targetLo.Float64()
	targetHiF, _ := targetHi.Float64()
	evF, _ := ev.Float64()

	return domain.TradeRecommendation{
		Action:         action,
		EntryZoneLo:    entryLoF,
		EntryZoneHi:    entryHiF,
		TargetZoneLo:   targetLoF,
		TargetZoneHi:   targetHiF,
		ExpectedValue:  evF,
		WinProbability: winProbability,
		LiquidityRisk:  liquidityRisk,
		Explanation:    explanation,
		Metadata: domain.RecommendationMetadata{
			MarketProbability:    mbd.CurrentProbability,
			ConsensusProbability: consensus.ConsensusProbability,
			Edge:                 edge,
			ConfidenceBandLo:     consensus.ConfidenceBandLo,
			ConfidenceBandHi:     consensus.ConfidenceBandHi,
		},
	}
}

// selectAction implements spec §4.9's action-selection rule.
func selectAction(consensus domain.Consensus, marketProbability, absEdge, minEdgeThreshold float64) domain.Action {
	if consensus.EfficientlyPriced {
		return domain.ActionNoTrade
	}
	if consensus.Regime == domain.RegimeHighUncertainty && absEdge < 2*minEdgeThreshold {
		return domain.ActionNoTrade
	}
	if consensus.ConsensusProbability > marketProbability+minEdgeThreshold {
		return domain.ActionLongYes
	}
	if consensus.ConsensusProbability < marketProbability-minEdgeThreshold {
		return domain.ActionLongNo
	}
	return domain.ActionNoTrade
}

// entryZone centers on the current best quote (in cents), widened
// proportionally to the confidence band width, a liquidity-risk
// multiplier, and the risk-philosophy zone-widening average.
func entryZone(currentQuote, bandWidth decimal.Decimal, liquidityRisk domain.LiquidityRisk, wideningBps decimal.Decimal) (lo, hi decimal.Decimal) {
	bandWidening := bandWidth.Mul(hundred).Mul(decimal.NewFromFloat(0.5))
	riskMultiplier := liquidityRiskMultiplier(liquidityRisk)
	philosophyWidening := wideningBps.Div(decimal.NewFromInt(100))

	half := bandWidening.Mul(riskMultiplier).Add(philosophyWidening)
	return clampCents(currentQuote.Sub(half)), clampCents(currentQuote.Add(half))
}

// targetZone centers on the consensus probability in cents, clipped to
// (5,95), widened by half the confidence band width.
func targetZone(consensusProb, bandWidth decimal.Decimal) (lo, hi decimal.Decimal) {
	center := consensusProb.Mul(hundred)
	half := bandWidth.Mul(hundred).Mul(decimal.NewFromFloat(0.5))

	lo = clampFiveToNinetyFive(center.Sub(half))
	hi = clampFiveToNinetyFive(center.Add(half))
	return lo, hi
}

// expectedValue is the per-$100-notional payout, deriving payoff and
// cost from the entry zone midpoint per spec §4.9. A LONG_YES position
// costs the midpoint (cents) per $1 of exposure and pays $1 if the
// market resolves YES; LONG_NO is symmetric off (100-midpoint).
func expectedValue(action domain.Action, entryLo, entryHi, consensusProb decimal.Decimal) decimal.Decimal {
	if action == domain.ActionNoTrade {
		return decimal.Zero
	}

	mid := entryLo.Add(entryHi).Div(decimal.NewFromInt(2))
	cost := mid.Div(hundred)
	if action == domain.ActionLongNo {
		cost = hundred.Sub(mid).Div(hundred)
	}

	winProbability := consensusProb
	if action == domain.ActionLongNo {
		winProbability = decimal.NewFromInt(1).Sub(consensusProb)
	}

	return winProbability.Sub(cost).Mul(hundred)
}

func averageZoneWidening(riskSignals []domain.RiskPhilosophySignal) decimal.Decimal {
	if len(riskSignals) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, rs := range riskSignals {
		total = total.Add(decimal.NewFromFloat(rs.ZoneWideningBps))
	}
	return total.Div(decimal.NewFromInt(int64(len(riskSignals))))
}

// classifyLiquidityRisk maps book depth and spread onto a LiquidityRisk
// bucket (spec §4.9), with any risk-philosophy liquidity-caution flag
// escalating the bucket by one level.
func classifyLiquidityRisk(mbd domain.MarketBriefingDocument, riskSignals []domain.RiskPhilosophySignal) domain.LiquidityRisk {
	risk := domain.LiquidityRiskLow
	switch {
	case mbd.LiquidityScore < 3 || mbd.BidAskSpread > 0.05:
		risk = domain.LiquidityRiskHigh
	case mbd.LiquidityScore < 6 || mbd.BidAskSpread > 0.02:
		risk = domain.LiquidityRiskMedium
	}

	for _, rs := range riskSignals {
		if rs.LiquidityCaution {
			return escalate(risk)
		}
	}
	return risk
}

func escalate(risk domain.LiquidityRisk) domain.LiquidityRisk {
	switch risk {
	case domain.LiquidityRiskLow:
		return domain.LiquidityRiskMedium
	default:
		return domain.LiquidityRiskHigh
	}
}

func liquidityRiskMultiplier(risk domain.LiquidityRisk) decimal.Decimal {
	switch risk {
	case domain.LiquidityRiskHigh:
		return decimal.NewFromFloat(1.5)
	case domain.LiquidityRiskMedium:
		return decimal.NewFromFloat(1.2)
	default:
		return decimal.NewFromFloat(1.0)
	}
}

func buildExplanation(consensus domain.Consensus, marketProbability float64, bull, bear domain.Thesis, record domain.DebateRecord) domain.Explanation {
	winner := debate.Winner(record)
	winningThesis := bull
	if winner == domain.DirectionNo {
		winningThesis = bear
	}

	catalysts := unionStrings(bull.Catalysts, bear.Catalysts)
	failures := unionStrings(bull.FailureConditions, bear.FailureConditions)

	edge := consensus.ConsensusProbability - marketProbability
	summary := fmt.Sprintf(
		"Consensus probability %.2f%% against a current market price of %.2f%% (edge %.2f pts); regime %s.",
		consensus.ConsensusProbability*100, marketProbability*100, edge*100, consensus.Regime,
	)

	explanation := domain.Explanation{
		Summary:          summary,
		CoreThesis:       winningThesis.CoreArgument,
		KeyCatalysts:     catalysts,
		FailureScenarios: failures,
	}

	if consensus.Regime != domain.RegimeHighConfidence {
		explanation.UncertaintyNote = fmt.Sprintf("disagreement index %.2f places this analysis in the %s regime; treat the consensus probability as a wider band than usual.", consensus.DisagreementIndex, consensus.Regime)
	}

	return explanation
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var result []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			trimmed := strings.TrimSpace(s)
			if trimmed == "" || seen[trimmed] {
				continue
			}
			seen[trimmed] = true
			result = append(result, trimmed)
		}
	}
	return result
}

func clampCents(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if v.GreaterThan(hundred) {
		return hundred
	}
	return v
}

func clampFiveToNinetyFive(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(five) {
		return five
	}
	if v.GreaterThan(ninetyFive) {
		return ninetyFive
	}
	return v
}
