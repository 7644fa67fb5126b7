// Package selection implements the dynamic agent selection cascade
// (spec §4.2): MVP agents always run, market-type candidates are added,
// then configuration, data-availability, and cost filters trim the
// candidate set down to active_agents. Grounded on
// internal/orchestrator's getDefaultWeight/OrchestratorConfig lookup-
// table pattern — table-driven rule evaluation over event_type,
// generalized here from "agent weight" to "agent admission".
package selection

import (
	"fmt"
	"sort"

	"github.com/marketintel/engine/internal/agent"
	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/domain"
)

// Decision is the selection outcome plus the audit trail spec §4.2
// requires ("active_agents[] plus an audit entry describing the
// decision path").
type Decision struct {
	ActiveAgents []agent.Kind
	AuditTrail   []string
}

// mvpKinds always run regardless of market type or configuration.
var mvpKinds = []agent.Kind{
	agent.KindMarketMicrostructure,
	agent.KindProbabilityBaseline,
	agent.KindRiskAssessment,
}

// marketTypeCandidates is the category→kind mapping spec §4.2 step 2
// defers to "full table in glossary" — the glossary in spec.md does not
// actually carry this table, so the category groupings below are this
// engine's own grounded interpretation, recorded as an Open Question
// decision in DESIGN.md. polling_statistical maps to
// {polling_intelligence, historical_pattern}; sentiment_narrative maps
// to {media_sentiment, social_sentiment, narrative_velocity};
// event_intelligence maps to {breaking_news, event_impact};
// event_scenario maps to {catalyst, tail_risk}; price_action maps to
// {momentum, mean_reversion}.
var (
	groupPollingStatistical = []agent.Kind{agent.KindPollingIntelligence, agent.KindHistoricalPattern}
	groupSentimentNarrative = []agent.Kind{agent.KindMediaSentiment, agent.KindSocialSentiment, agent.KindNarrativeVelocity}
	groupEventIntelligence  = []agent.Kind{agent.KindBreakingNews, agent.KindEventImpact}
	groupEventScenario      = []agent.Kind{agent.KindCatalyst, agent.KindTailRisk}
	groupPriceAction        = []agent.Kind{agent.KindMomentum, agent.KindMeanReversion}
)

var marketTypeCandidates = map[domain.EventType][]agent.Kind{
	domain.EventTypeElection:     union(groupPollingStatistical, groupSentimentNarrative, groupEventIntelligence),
	domain.EventTypeCourt:        union(groupEventIntelligence, groupPollingStatistical),
	domain.EventTypePolicy:       union(groupEventIntelligence, groupSentimentNarrative, groupEventScenario),
	domain.EventTypeGeopolitical: union(groupEventIntelligence, groupSentimentNarrative, groupEventScenario),
	domain.EventTypeEconomic:     union(groupEventIntelligence, groupPollingStatistical),
}

// estimatedCost is a static per-kind cost estimate for the greedy
// cost-budget filter (step 5); MVP agents are excluded since they are
// always admitted and subtracted from budget first.
var estimatedCost = map[agent.Kind]float64{
	agent.KindBreakingNews:        0.04,
	agent.KindEventImpact:         0.04,
	agent.KindPollingIntelligence: 0.03,
	agent.KindHistoricalPattern:   0.02,
	agent.KindMediaSentiment:      0.03,
	agent.KindSocialSentiment:     0.03,
	agent.KindNarrativeVelocity:   0.03,
	agent.KindMomentum:            0.02,
	agent.KindMeanReversion:       0.02,
	agent.KindCatalyst:            0.04,
	agent.KindTailRisk:            0.04,
}

// mvpCost is the static per-kind cost for the three always-on agents.
const mvpCost = 0.02

// estimatedImpact is a static per-kind impact score the cost-budget
// filter (step 5) ranks candidates by before applying the cutoff, mirroring
// estimatedCost's literal-table shape. Higher admits first. Agents that
// corroborate across independent signal families (news, event catalysts)
// score above single-feed agents, which score above narrower price-action
// signals.
var estimatedImpact = map[agent.Kind]float64{
	agent.KindBreakingNews:        0.9,
	agent.KindEventImpact:         0.85,
	agent.KindCatalyst:            0.8,
	agent.KindTailRisk:            0.75,
	agent.KindPollingIntelligence: 0.7,
	agent.KindMediaSentiment:      0.6,
	agent.KindSocialSentiment:     0.55,
	agent.KindNarrativeVelocity:   0.5,
	agent.KindHistoricalPattern:   0.45,
	agent.KindMomentum:            0.4,
	agent.KindMeanReversion:       0.35,
}

// Availability reports which external feeds are currently reachable,
// per spec §4.2 step 4.
type Availability struct {
	News    bool
	Polling bool
	Social  bool
}

// Select runs the five-step cascade and returns the active agent set
// with its audit trail.
func Select(mbd domain.MarketBriefingDocument, cfg config.AdvancedAgentsConfig, cost config.CostOptimizationConfig, availability Availability) Decision {
	var trail []string

	active := make(map[agent.Kind]bool, len(mvpKinds))
	for _, k := range mvpKinds {
		active[k] = true
	}
	trail = append(trail, fmt.Sprintf("step1: MVP agents always active: %v", mvpKinds))

	candidates := candidatesFor(mbd.EventType)
	trail = append(trail, fmt.Sprintf("step2: market-type candidates for %s: %v", mbd.EventType, candidates))

	enabled := filterConfig(candidates, cfg)
	trail = append(trail, fmt.Sprintf("step3: configuration filter retained: %v", enabled))

	available := filterAvailability(enabled, cfg, mbd, availability)
	trail = append(trail, fmt.Sprintf("step4: data-availability filter retained: %v", available))

	admitted, budgetTrail := filterCost(available, cost)
	trail = append(trail, budgetTrail...)

	for _, k := range admitted {
		active[k] = true
	}

	return Decision{ActiveAgents: sortedKinds(active), AuditTrail: trail}
}

func candidatesFor(eventType domain.EventType) []agent.Kind {
	if candidates, ok := marketTypeCandidates[eventType]; ok {
		return candidates
	}
	// "other -> union of all" per spec §4.2 step 2.
	return union(groupPollingStatistical, groupSentimentNarrative, groupEventIntelligence, groupEventScenario, groupPriceAction)
}

func filterConfig(candidates []agent.Kind, cfg config.AdvancedAgentsConfig) []agent.Kind {
	var kept []agent.Kind
	for _, k := range candidates {
		if groupEnabled(k, cfg) {
			kept = append(kept, k)
		}
	}
	return kept
}

func groupEnabled(k agent.Kind, cfg config.AdvancedAgentsConfig) bool {
	switch k {
	case agent.KindPollingIntelligence, agent.KindHistoricalPattern:
		return cfg.PollingStatistical.Enabled
	case agent.KindMediaSentiment, agent.KindSocialSentiment, agent.KindNarrativeVelocity:
		return cfg.SentimentNarrative.Enabled
	case agent.KindBreakingNews, agent.KindEventImpact:
		return cfg.EventIntelligence.Enabled
	case agent.KindCatalyst, agent.KindTailRisk:
		return cfg.EventScenario.Enabled
	case agent.KindMomentum, agent.KindMeanReversion:
		return cfg.PriceAction.Enabled
	default:
		return true
	}
}

func filterAvailability(candidates []agent.Kind, cfg config.AdvancedAgentsConfig, mbd domain.MarketBriefingDocument, availability Availability) []agent.Kind {
	var kept []agent.Kind
	for _, k := range candidates {
		if k == agent.KindMomentum || k == agent.KindMeanReversion {
			if mbd.Volume24h < cfg.PriceAction.MinVolumeThreshold {
				continue
			}
		}
		switch agent.RequiredFeedFor(k) {
		case agent.FeedNews:
			if !availability.News {
				continue
			}
		case agent.FeedPolling:
			if !availability.Polling {
				continue
			}
		case agent.FeedSocial:
			if !availability.News && !availability.Social {
				continue
			}
		}
		kept = append(kept, k)
	}
	return kept
}

// filterCost greedily admits candidates in descending estimatedImpact
// order, skipping any candidate whose cost would push the running total,
// starting from the MVP agents' fixed cost, over max_cost_per_analysis;
// a cheaper candidate ranked later can still be admitted after a skip.
// Ranking by impact rather than
// by filtered order ensures a tight budget drops the lowest-value agents
// first, not just whichever candidates happened to sort last upstream.
func filterCost(candidates []agent.Kind, cost config.CostOptimizationConfig) ([]agent.Kind, []string) {
	if !cost.SkipLowImpactAgents || cost.MaxCostPerAnalysis <= 0 {
		return candidates, []string{fmt.Sprintf("step5: cost filter disabled, admitted all: %v", candidates)}
	}

	ranked := make([]agent.Kind, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool { return estimatedImpact[ranked[i]] > estimatedImpact[ranked[j]] })

	budget := cost.MaxCostPerAnalysis - mvpCost*float64(len(mvpKinds))
	var admitted []agent.Kind
	var skipped []agent.Kind
	running := 0.0
	for _, k := range ranked {
		c := estimatedCost[k]
		if running+c > budget {
			skipped = append(skipped, k)
			continue
		}
		running += c
		admitted = append(admitted, k)
	}

	trail := []string{fmt.Sprintf("step5: cost filter ranked by impact %v, admitted %v within budget %.4f, skipped %v", ranked, admitted, budget, skipped)}
	return admitted, trail
}

func union(groups ...[]agent.Kind) []agent.Kind {
	seen := make(map[agent.Kind]bool)
	var result []agent.Kind
	for _, group := range groups {
		for _, k := range group {
			if !seen[k] {
				seen[k] = true
				result = append(result, k)
			}
		}
	}
	return result
}

func sortedKinds(set map[agent.Kind]bool) []agent.Kind {
	result := make([]agent.Kind, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
