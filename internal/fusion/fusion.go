// Package fusion aggregates the specialist agents' individual signals
// into one fused probability with conflict and alignment metadata
// (spec §4.5). The weighting shape is grounded on the teacher's
// Orchestrator.calculateDecision — weighted voting by per-agent-type
// weight, renormalized — generalized here from a three-way BUY/SELL/HOLD
// vote to continuous probability fusion.
package fusion

import (
	"fmt"
	"math"

	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/domain"
)

// Fuse computes the fused signal from agent signals that survived the
// fan-out, per spec §4.5. Returns InsufficientData if fewer than
// minRequired signals are present — the caller (internal/engine) is
// expected to have already checked this via spec §4.4's failure policy,
// but Fuse re-checks so it is safe to call directly from tests.
func Fuse(signals []domain.AgentSignal, mbd domain.MarketBriefingDocument, cfg config.SignalFusionConfig, minRequired int) (domain.FusedSignal, error) {
	if len(signals) < minRequired {
		return domain.FusedSignal{}, domain.InsufficientData{Stage: "signal_fusion", Reason: fmt.Sprintf("%d signals present, %d required", len(signals), minRequired)}
	}

	weights := computeWeights(signals, mbd, cfg)
	conflicts := detectConflicts(signals, cfg.ConflictThreshold)
	alignment := signalAlignment(signals)

	fairProbability := 0.0
	for _, s := range signals {
		fairProbability += weights[s.AgentName] * s.FairProbability
	}

	confidence := fusedConfidence(signals, weights, len(conflicts), alignment, cfg.AlignmentBonus)

	return domain.FusedSignal{
		FairProbability:    clamp01(fairProbability),
		Confidence:         clamp01(confidence),
		Weights:            weights,
		ConflictingSignals: conflicts,
		SignalAlignment:    alignment,
	}, nil
}

// computeWeights starts from configured base weights, applies
// event_type/volatility_regime context adjustments, then renormalizes
// over only the agents that actually produced a signal — an agent that
// failed (spec §4.4's failure policy) contributes no weight rather than
// leaving the remaining weights summing below 1.
func computeWeights(signals []domain.AgentSignal, mbd domain.MarketBriefingDocument, cfg config.SignalFusionConfig) map[string]float64 {
	raw := make(map[string]float64, len(signals))
	for _, s := range signals {
		weight := cfg.BaseWeights[s.AgentName]
		if weight == 0 {
			weight = defaultWeight
		}
		weight += contextAdjustment(cfg, string(mbd.EventType), s.AgentName)
		weight += contextAdjustment(cfg, string(mbd.VolatilityRegime), s.AgentName)
		if weight < 0 {
			weight = 0
		}
		raw[s.AgentName] = weight
	}

	total := 0.0
	for _, w := range raw {
		total += w
	}
	if total == 0 {
		return raw
	}

	normalized := make(map[string]float64, len(raw))
	for name, w := range raw {
		normalized[name] = w / total
	}
	return normalized
}

// defaultWeight is used for any agent_name not present in base_weights,
// mirroring the teacher's getDefaultWeight fallback for unknown agent
// types.
const defaultWeight = 0.20

func contextAdjustment(cfg config.SignalFusionConfig, contextKey, agentName string) float64 {
	byContext, ok := cfg.ContextAdjustments[contextKey]
	if !ok {
		return 0
	}
	return byContext[agentName]
}

// detectConflicts records every unordered signal pair whose fair
// probabilities disagree beyond the configured threshold.
func detectConflicts(signals []domain.AgentSignal, threshold float64) []domain.ConflictingPair {
	var conflicts []domain.ConflictingPair
	for i := 0; i < len(signals); i++ {
		for j := i + 1; j < len(signals); j++ {
			disagreement := math.Abs(signals[i].FairProbability - signals[j].FairProbability)
			if disagreement >= threshold {
				conflicts = append(conflicts, domain.ConflictingPair{
					AgentA:       signals[i].AgentName,
					AgentB:       signals[j].AgentName,
					Disagreement: disagreement,
				})
			}
		}
	}
	return conflicts
}

// signalAlignment is 1 - 2*stddev(fair_probabilities), clipped to [0,1].
func signalAlignment(signals []domain.AgentSignal) float64 {
	probs := make([]float64, len(signals))
	for i, s := range signals {
		probs[i] = s.FairProbability
	}
	return clamp01(1 - 2*stddev(probs))
}

// fusedConfidence is the weighted mean of individual confidences,
// attenuated per conflicting pair and boosted by alignment up to
// alignmentBonus.
func fusedConfidence(signals []domain.AgentSignal, weights map[string]float64, conflictCount int, alignment, alignmentBonus float64) float64 {
	weighted := 0.0
	for _, s := range signals {
		weighted += weights[s.AgentName] * s.Confidence
	}

	attenuation := 1.0 / (1.0 + float64(conflictCount)*conflictPenalty)
	boost := alignment * alignmentBonus

	return weighted*attenuation + boost
}

// conflictPenalty shrinks confidence by a fixed fraction per detected
// conflicting pair, with diminishing effect as conflicts accumulate
// (harmonic attenuation rather than linear, so confidence never goes
// negative no matter how many pairs conflict).
const conflictPenalty = 0.15

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))

	return math.Sqrt(variance)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
