package recommendation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/domain"
)

func cfg() config.ConsensusConfig {
	return config.ConsensusConfig{MinEdgeThreshold: 0.03, BandWidthK: 0.5}
}

func TestBuild_NoTradeWhenEfficientlyPriced(t *testing.T) {
	consensus := domain.Consensus{ConsensusProbability: 0.55, EfficientlyPriced: true, Regime: domain.RegimeHighConfidence}
	mbd := domain.MarketBriefingDocument{CurrentProbability: 0.55, LiquidityScore: 8}
	bull := domain.Thesis{Direction: domain.DirectionYes, CoreArgument: "bull case", Catalysts: []string{"c1"}, FailureConditions: []string{"f1"}}
	bear := domain.Thesis{Direction: domain.DirectionNo, CoreArgument: "bear case", Catalysts: []string{"c2"}, FailureConditions: []string{"f2"}}
	record := domain.DebateRecord{BullScore: 0.3, BearScore: 0.1}

	rec := Build(mbd, consensus, bull, bear, record, nil, cfg())
	assert.Equal(t, domain.ActionNoTrade, rec.Action)
	assert.InDelta(t, 0.0, rec.ExpectedValue, 1e-9)
}

func TestBuild_LongYesWhenConsensusAboveMarket(t *testing.T) {
	consensus := domain.Consensus{ConsensusProbability: 0.65, EfficientlyPriced: false, Regime: domain.RegimeHighConfidence, ConfidenceBandLo: 0.60, ConfidenceBandHi: 0.70}
	mbd := domain.MarketBriefingDocument{CurrentProbability: 0.55, LiquidityScore: 8, BidAskSpread: 0.01}
	bull := domain.Thesis{Direction: domain.DirectionYes, CoreArgument: "bull case", Catalysts: []string{"c1"}, FailureConditions: []string{"f1"}}
	bear := domain.Thesis{Direction: domain.DirectionNo, CoreArgument: "bear case", Catalysts: []string{"c2"}, FailureConditions: []string{"f2"}}
	record := domain.DebateRecord{BullScore: 0.5, BearScore: 0.1}

	rec := Build(mbd, consensus, bull, bear, record, nil, cfg())
	assert.Equal(t, domain.ActionLongYes, rec.Action)
	assert.Equal(t, domain.LiquidityRiskLow, rec.LiquidityRisk)
	assert.LessOrEqual(t, rec.TargetZoneLo, rec.TargetZoneHi)
	assert.LessOrEqual(t, rec.EntryZoneLo, rec.EntryZoneHi)
}

func TestBuild_LiquidityCautionEscalatesRisk(t *testing.T) {
	consensus := domain.Consensus{ConsensusProbability: 0.65, EfficientlyPriced: false, Regime: domain.RegimeHighConfidence, ConfidenceBandLo: 0.60, ConfidenceBandHi: 0.70}
	mbd := domain.MarketBriefingDocument{CurrentProbability: 0.55, LiquidityScore: 8, BidAskSpread: 0.01}
	bull := domain.Thesis{Direction: domain.DirectionYes, CoreArgument: "bull case", Catalysts: []string{"c1"}, FailureConditions: []string{"f1"}}
	bear := domain.Thesis{Direction: domain.DirectionNo, CoreArgument: "bear case", Catalysts: []string{"c2"}, FailureConditions: []string{"f2"}}
	record := domain.DebateRecord{BullScore: 0.5, BearScore: 0.1}
	riskSignals := []domain.RiskPhilosophySignal{{Philosophy: "conservative", LiquidityCaution: true}}

	rec := Build(mbd, consensus, bull, bear, record, riskSignals, cfg())
	assert.Equal(t, domain.LiquidityRiskMedium, rec.LiquidityRisk)
}

func TestBuild_UncertaintyNoteAbsentAtHighConfidence(t *testing.T) {
	consensus := domain.Consensus{ConsensusProbability: 0.65, Regime: domain.RegimeHighConfidence, ConfidenceBandLo: 0.6, ConfidenceBandHi: 0.7}
	mbd := domain.MarketBriefingDocument{CurrentProbability: 0.55}
	bull := domain.Thesis{Direction: domain.DirectionYes, CoreArgument: "bull case", Catalysts: []string{"c1"}, FailureConditions: []string{"f1"}}
	bear := domain.Thesis{Direction: domain.DirectionNo, CoreArgument: "bear case", Catalysts: []string{"c2"}, FailureConditions: []string{"f2"}}
	record := domain.DebateRecord{BullScore: 0.5, BearScore: 0.1}

	rec := Build(mbd, consensus, bull, bear, record, nil, cfg())
	assert.Empty(t, rec.Explanation.UncertaintyNote)
}
