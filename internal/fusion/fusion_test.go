package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/domain"
)

func baseConfig() config.SignalFusionConfig {
	return config.SignalFusionConfig{
		BaseWeights: map[string]float64{
			"momentum":      0.30,
			"mean_reversion": 0.30,
			"market_microstructure": 0.40,
		},
		ContextAdjustments: map[string]map[string]float64{
			"policy": {"momentum": 0.10},
		},
		ConflictThreshold: 0.15,
		AlignmentBonus:    0.05,
	}
}

func mbd() domain.MarketBriefingDocument {
	return domain.MarketBriefingDocument{
		EventType:        domain.EventTypePolicy,
		VolatilityRegime: domain.VolatilityMedium,
	}
}

func TestFuse_InsufficientDataBelowMinimum(t *testing.T) {
	signals := []domain.AgentSignal{
		{AgentName: "momentum", FairProbability: 0.6, Confidence: 0.7},
	}
	_, err := Fuse(signals, mbd(), baseConfig(), 2)
	require.Error(t, err)
	var insufficient domain.InsufficientData
	require.ErrorAs(t, err, &insufficient)
}

func TestFuse_WeightsRenormalizeAcrossPresentAgents(t *testing.T) {
	signals := []domain.AgentSignal{
		{AgentName: "momentum", FairProbability: 0.7, Confidence: 0.8},
		{AgentName: "mean_reversion", FairProbability: 0.5, Confidence: 0.6},
	}
	fused, err := Fuse(signals, mbd(), baseConfig(), 2)
	require.NoError(t, err)

	total := 0.0
	for _, w := range fused.Weights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestFuse_DetectsConflictBeyondThreshold(t *testing.T) {
	signals := []domain.AgentSignal{
		{AgentName: "momentum", FairProbability: 0.8, Confidence: 0.8},
		{AgentName: "mean_reversion", FairProbability: 0.4, Confidence: 0.8},
	}
	fused, err := Fuse(signals, mbd(), baseConfig(), 2)
	require.NoError(t, err)
	require.Len(t, fused.ConflictingSignals, 1)
	assert.InDelta(t, 0.4, fused.ConflictingSignals[0].Disagreement, 1e-9)
}

func TestFuse_HighAlignmentWhenSignalsAgree(t *testing.T) {
	signals := []domain.AgentSignal{
		{AgentName: "momentum", FairProbability: 0.61, Confidence: 0.7},
		{AgentName: "mean_reversion", FairProbability: 0.60, Confidence: 0.7},
		{AgentName: "market_microstructure", FairProbability: 0.59, Confidence: 0.7},
	}
	fused, err := Fuse(signals, mbd(), baseConfig(), 2)
	require.NoError(t, err)
	assert.Greater(t, fused.SignalAlignment, 0.9)
	assert.InDelta(t, 0.60, fused.FairProbability, 0.02)
}

func TestFuse_UnknownAgentGetsDefaultWeight(t *testing.T) {
	signals := []domain.AgentSignal{
		{AgentName: "momentum", FairProbability: 0.6, Confidence: 0.7},
		{AgentName: "some_new_agent", FairProbability: 0.5, Confidence: 0.5},
	}
	fused, err := Fuse(signals, mbd(), baseConfig(), 2)
	require.NoError(t, err)
	assert.Contains(t, fused.Weights, "some_new_agent")
	assert.Greater(t, fused.Weights["some_new_agent"], 0.0)
}
