package thesis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketintel/engine/internal/domain"
)

func sampleMBD() domain.MarketBriefingDocument {
	return domain.MarketBriefingDocument{
		CurrentProbability: 0.55,
		KeyCatalysts: []domain.Catalyst{
			{Event: "FOMC meeting", Timestamp: time.Now().Add(24 * time.Hour)},
		},
	}
}

func sampleSignals() []domain.AgentSignal {
	return []domain.AgentSignal{
		{AgentName: "momentum", Direction: domain.DirectionYes, FairProbability: 0.7, KeyDrivers: []string{"strong momentum"}, RiskFactors: []string{"momentum reversal risk"}},
		{AgentName: "mean_reversion", Direction: domain.DirectionNo, FairProbability: 0.4, KeyDrivers: []string{"overextended move"}, RiskFactors: []string{"trend continuation risk"}},
	}
}

func TestBuild_ProducesBullAndBearWithCitations(t *testing.T) {
	bull, bear, err := Build(sampleMBD(), domain.FusedSignal{FairProbability: 0.6}, sampleSignals())
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionYes, bull.Direction)
	assert.InDelta(t, 0.6, bull.FairProbability, 1e-9)
	assert.NotEmpty(t, bull.Catalysts)
	assert.NotEmpty(t, bull.SupportingSignals)
	assert.NotEmpty(t, bull.FailureConditions)

	assert.Equal(t, domain.DirectionNo, bear.Direction)
	assert.InDelta(t, 0.5, bear.FairProbability, 1e-9)
	assert.NotEmpty(t, bear.Catalysts)
	assert.NotEmpty(t, bear.SupportingSignals)
	assert.NotEmpty(t, bear.FailureConditions)
}

func TestBuild_BullFloorsAtHalf(t *testing.T) {
	bull, bear, err := Build(sampleMBD(), domain.FusedSignal{FairProbability: 0.3}, sampleSignals())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, bull.FairProbability, 1e-9)
	assert.InDelta(t, 0.3, bear.FairProbability, 1e-9)
}

func TestBuild_ErrorsWithoutCatalysts(t *testing.T) {
	mbd := sampleMBD()
	mbd.KeyCatalysts = nil
	_, _, err := Build(mbd, domain.FusedSignal{FairProbability: 0.6}, sampleSignals())
	require.Error(t, err)
}

func TestBuild_ErrorsWithoutSignals(t *testing.T) {
	_, _, err := Build(sampleMBD(), domain.FusedSignal{FairProbability: 0.6}, nil)
	require.Error(t, err)
}
