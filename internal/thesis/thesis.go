// Package thesis builds the bull and bear arguments from a fused signal
// (spec §4.6). It is grounded on the NeuraTrade debate coordinator's
// turn-result-as-argument shape (DebateTurnResult{Decision, Confidence,
// Reasoning, Signals}), adapted here from multi-round analyst/trader/risk
// turns into a single bull/bear pair built directly from the fused signal
// and the agent signals that fed it.
package thesis

import (
	"fmt"

	"github.com/marketintel/engine/internal/domain"
)

// Build constructs the bull and bear theses for a market from its fused
// signal and the individual agent signals that contributed to it. Each
// thesis cites at least one supporting signal, one catalyst, and one
// failure condition per spec §4.6. Build returns an error when there are
// no signals or no catalysts; a thesis with no signal leaning its way
// cites the first signal, and one with no opposing risk factor gets a
// generated failure condition.
func Build(mbd domain.MarketBriefingDocument, fused domain.FusedSignal, signals []domain.AgentSignal) (bull domain.Thesis, bear domain.Thesis, err error) {
	if len(signals) == 0 {
		return domain.Thesis{}, domain.Thesis{}, fmt.Errorf("thesis: no supporting signals available")
	}
	if len(mbd.KeyCatalysts) == 0 {
		return domain.Thesis{}, domain.Thesis{}, fmt.Errorf("thesis: no catalysts available to cite")
	}

	bullProbability := maxFloat(fused.FairProbability, 0.5)
	bearProbability := minFloat(fused.FairProbability, 0.5)

	catalystNames := catalystNames(mbd.KeyCatalysts)

	bull = domain.Thesis{
		Direction:         domain.DirectionYes,
		FairProbability:   bullProbability,
		MarketProbability: mbd.CurrentProbability,
		Edge:              edge(bullProbability, mbd.CurrentProbability),
		CoreArgument:      coreArgument(domain.DirectionYes, signals),
		Catalysts:         catalystNames,
		FailureConditions: failureConditions(domain.DirectionYes, signals),
		SupportingSignals: supportingSignals(domain.DirectionYes, signals),
	}

	bear = domain.Thesis{
		Direction:         domain.DirectionNo,
		FairProbability:   bearProbability,
		MarketProbability: mbd.CurrentProbability,
		Edge:              edge(bearProbability, mbd.CurrentProbability),
		CoreArgument:      coreArgument(domain.DirectionNo, signals),
		Catalysts:         catalystNames,
		FailureConditions: failureConditions(domain.DirectionNo, signals),
		SupportingSignals: supportingSignals(domain.DirectionNo, signals),
	}

	if len(bull.FailureConditions) == 0 {
		bull.FailureConditions = []string{fmt.Sprintf("bear-leaning signals (%d) invalidate the bull case if they strengthen", len(bear.SupportingSignals))}
	}
	if len(bear.FailureConditions) == 0 {
		bear.FailureConditions = []string{fmt.Sprintf("bull-leaning signals (%d) invalidate the bear case if they strengthen", len(bull.SupportingSignals))}
	}
	if len(bull.SupportingSignals) == 0 {
		bull.SupportingSignals = []string{signals[0].AgentName}
	}
	if len(bear.SupportingSignals) == 0 {
		bear.SupportingSignals = []string{signals[0].AgentName}
	}

	return bull, bear, nil
}

func edge(fairProbability, marketProbability float64) float64 {
	diff := fairProbability - marketProbability
	if diff < 0 {
		return -diff
	}
	return diff
}

// coreArgument summarizes the signals leaning toward the given direction,
// citing their key drivers.
func coreArgument(direction domain.Direction, signals []domain.AgentSignal) string {
	var drivers []string
	for _, s := range signals {
		if leans(s, direction) {
			drivers = append(drivers, s.KeyDrivers...)
		}
	}
	if len(drivers) == 0 {
		return fmt.Sprintf("no agent strongly leans %s; argument rests on the fused probability alone", direction)
	}
	return fmt.Sprintf("%s case rests on: %s", direction, joinTop(drivers, 3))
}

// supportingSignals lists the agent names whose direction agrees with the
// thesis direction.
func supportingSignals(direction domain.Direction, signals []domain.AgentSignal) []string {
	var names []string
	for _, s := range signals {
		if leans(s, direction) {
			names = append(names, s.AgentName)
		}
	}
	return names
}

// failureConditions cites the risk factors raised by signals that lean
// the OTHER direction — the conditions under which this thesis is wrong.
func failureConditions(direction domain.Direction, signals []domain.AgentSignal) []string {
	opposite := domain.DirectionNo
	if direction == domain.DirectionNo {
		opposite = domain.DirectionYes
	}
	var conditions []string
	for _, s := range signals {
		if leans(s, opposite) {
			conditions = append(conditions, s.RiskFactors...)
		}
	}
	return conditions
}

func leans(s domain.AgentSignal, direction domain.Direction) bool {
	if s.Direction == direction {
		return true
	}
	if s.Direction != domain.DirectionNeutral {
		return false
	}
	switch direction {
	case domain.DirectionYes:
		return s.FairProbability >= 0.5
	case domain.DirectionNo:
		return s.FairProbability < 0.5
	default:
		return false
	}
}

func catalystNames(catalysts []domain.Catalyst) []string {
	names := make([]string, len(catalysts))
	for i, c := range catalysts {
		names[i] = c.Event
	}
	return names
}

func joinTop(items []string, n int) string {
	if len(items) > n {
		items = items[:n]
	}
	result := ""
	for i, item := range items {
		if i > 0 {
			result += "; "
		}
		result += item
	}
	return result
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
