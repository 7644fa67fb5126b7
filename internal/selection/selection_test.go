package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marketintel/engine/internal/agent"
	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/domain"
)

func allEnabled() config.AdvancedAgentsConfig {
	return config.AdvancedAgentsConfig{
		EventIntelligence:  config.AdvancedAgentGroup{Enabled: true},
		PollingStatistical: config.AdvancedAgentGroup{Enabled: true},
		SentimentNarrative: config.AdvancedAgentGroup{Enabled: true},
		PriceAction:        config.PriceActionConfig{Enabled: true, MinVolumeThreshold: 1000},
		EventScenario:      config.AdvancedAgentGroup{Enabled: true},
	}
}

func noCostLimit() config.CostOptimizationConfig {
	return config.CostOptimizationConfig{}
}

func containsKind(kinds []agent.Kind, target agent.Kind) bool {
	for _, k := range kinds {
		if k == target {
			return true
		}
	}
	return false
}

func TestSelect_MVPAgentsAlwaysActive(t *testing.T) {
	mbd := domain.MarketBriefingDocument{EventType: domain.EventTypeOther}
	decision := Select(mbd, config.AdvancedAgentsConfig{}, noCostLimit(), Availability{})

	assert.True(t, containsKind(decision.ActiveAgents, agent.KindMarketMicrostructure))
	assert.True(t, containsKind(decision.ActiveAgents, agent.KindProbabilityBaseline))
	assert.True(t, containsKind(decision.ActiveAgents, agent.KindRiskAssessment))
}

func TestSelect_ElectionAddsPollingAndSentimentAndEventCandidates(t *testing.T) {
	mbd := domain.MarketBriefingDocument{EventType: domain.EventTypeElection, Volume24h: 5000}
	decision := Select(mbd, allEnabled(), noCostLimit(), Availability{News: true, Polling: true, Social: true})

	assert.True(t, containsKind(decision.ActiveAgents, agent.KindPollingIntelligence))
	assert.True(t, containsKind(decision.ActiveAgents, agent.KindMediaSentiment))
	assert.True(t, containsKind(decision.ActiveAgents, agent.KindBreakingNews))
}

func TestSelect_ConfigFilterDropsDisabledGroup(t *testing.T) {
	mbd := domain.MarketBriefingDocument{EventType: domain.EventTypeElection}
	cfg := allEnabled()
	cfg.SentimentNarrative = config.AdvancedAgentGroup{Enabled: false}

	decision := Select(mbd, cfg, noCostLimit(), Availability{News: true, Polling: true, Social: true})
	assert.False(t, containsKind(decision.ActiveAgents, agent.KindMediaSentiment))
}

func TestSelect_AvailabilityFilterDropsAgentsMissingRequiredFeed(t *testing.T) {
	mbd := domain.MarketBriefingDocument{EventType: domain.EventTypeElection}
	decision := Select(mbd, allEnabled(), noCostLimit(), Availability{News: false, Polling: false, Social: false})

	assert.False(t, containsKind(decision.ActiveAgents, agent.KindBreakingNews))
	assert.False(t, containsKind(decision.ActiveAgents, agent.KindPollingIntelligence))
	assert.False(t, containsKind(decision.ActiveAgents, agent.KindMediaSentiment))
}

func TestSelect_PriceActionRequiresMinVolume(t *testing.T) {
	mbd := domain.MarketBriefingDocument{EventType: domain.EventTypeOther, Volume24h: 10}
	cfg := allEnabled()
	decision := Select(mbd, cfg, noCostLimit(), Availability{News: true, Polling: true, Social: true})

	assert.False(t, containsKind(decision.ActiveAgents, agent.KindMomentum))
}

func TestSelect_CostFilterAdmitsWithinBudget(t *testing.T) {
	mbd := domain.MarketBriefingDocument{EventType: domain.EventTypeElection}
	cost := config.CostOptimizationConfig{SkipLowImpactAgents: true, MaxCostPerAnalysis: 0.10}

	decision := Select(mbd, allEnabled(), cost, Availability{News: true, Polling: true, Social: true})

	// budget left after MVP agents: 0.10 - 3*0.02 = 0.04; candidates are
	// ranked by estimatedImpact before the cutoff, and breaking_news
	// (impact 0.9, cost 0.04) outranks every other election candidate, so
	// it is the only one admitted within budget.
	assert.Len(t, decision.ActiveAgents, 4)
	assert.True(t, containsKind(decision.ActiveAgents, agent.KindBreakingNews))
}
