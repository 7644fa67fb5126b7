package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/domain"
)

func baseCfg() config.ConsensusConfig {
	return config.ConsensusConfig{
		MinEdgeThreshold:          0.05,
		HighDisagreementThreshold: 0.20,
		FailThreshold:             0.30,
		BandWidthK:                0.5,
	}
}

func agreeingSignals() []domain.AgentSignal {
	return []domain.AgentSignal{
		{AgentName: "a", FairProbability: 0.61},
		{AgentName: "b", FairProbability: 0.60},
		{AgentName: "c", FairProbability: 0.59},
	}
}

func sampleDebate(bullScore, bearScore float64) domain.DebateRecord {
	return domain.DebateRecord{
		Tests:     []domain.DebateTest{{TestType: domain.TestTypeEvidence, Outcome: domain.OutcomeSurvived, Score: 0.5}},
		BullScore: bullScore,
		BearScore: bearScore,
	}
}

func TestCompute_InsufficientDataMissingTheses(t *testing.T) {
	_, err := Compute(domain.MarketBriefingDocument{}, domain.FusedSignal{}, domain.Thesis{}, domain.Thesis{}, domain.DebateRecord{}, nil, baseCfg())
	require.Error(t, err)
	var insufficient domain.InsufficientData
	require.ErrorAs(t, err, &insufficient)
}

func TestCompute_ConsensusFailedOnHighDisagreement(t *testing.T) {
	signals := []domain.AgentSignal{
		{AgentName: "a", FairProbability: 0.9},
		{AgentName: "b", FairProbability: 0.1},
	}
	bull := domain.Thesis{Direction: domain.DirectionYes, FairProbability: 0.9}
	bear := domain.Thesis{Direction: domain.DirectionNo, FairProbability: 0.1}

	_, err := Compute(domain.MarketBriefingDocument{}, domain.FusedSignal{FairProbability: 0.5}, bull, bear, sampleDebate(0.5, 0.1), signals, baseCfg())
	require.Error(t, err)
	var failed domain.ConsensusFailed
	require.ErrorAs(t, err, &failed)
}

func TestCompute_HighConfidenceRegimeOnAgreement(t *testing.T) {
	bull := domain.Thesis{Direction: domain.DirectionYes, FairProbability: 0.65}
	bear := domain.Thesis{Direction: domain.DirectionNo, FairProbability: 0.45}

	result, err := Compute(domain.MarketBriefingDocument{CurrentProbability: 0.55}, domain.FusedSignal{FairProbability: 0.6}, bull, bear, sampleDebate(0.5, 0.1), agreeingSignals(), baseCfg())
	require.NoError(t, err)
	assert.Equal(t, domain.RegimeHighConfidence, result.Regime)
	assert.LessOrEqual(t, result.ConfidenceBandLo, result.ConsensusProbability)
	assert.GreaterOrEqual(t, result.ConfidenceBandHi, result.ConsensusProbability)
}

func TestCompute_EfficientlyPricedWhenCloseToMarket(t *testing.T) {
	bull := domain.Thesis{Direction: domain.DirectionYes, FairProbability: 0.56}
	bear := domain.Thesis{Direction: domain.DirectionNo, FairProbability: 0.44}

	result, err := Compute(domain.MarketBriefingDocument{CurrentProbability: 0.60}, domain.FusedSignal{FairProbability: 0.60}, bull, bear, sampleDebate(0.3, 0.3), agreeingSignals(), baseCfg())
	require.NoError(t, err)
	assert.True(t, result.EfficientlyPriced)
}
