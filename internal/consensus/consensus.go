// Package consensus computes the final probability and uncertainty
// envelope from the fused signal, both theses, and the debate record
// (spec §4.8). It is grounded on the teacher's practice of keeping each
// decision concern in its own small function (internal/orchestrator
// separates voting from weighting from thresholding) — disagreement
// index, regime classification, and the debate-weighted blend are new
// domain statistics built in that same plain-function style.
package consensus

import (
	"fmt"
	"math"

	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/debate"
	"github.com/marketintel/engine/internal/domain"
)

const baseBandWidth = 0.05

// moderateConfidenceCutoff is the fixed lower regime boundary from spec
// §4.8 step 5. There is no configuration knob for it — only the
// high-uncertainty boundary is operator-tunable via
// ConsensusConfig.HighDisagreementThreshold, per the Open Question
// decision recorded in DESIGN.md.
const moderateConfidenceCutoff = 0.10

// Compute runs the consensus algorithm. It returns InsufficientData if
// the preconditions in spec §4.8 aren't met, and ConsensusFailed if
// agent disagreement exceeds cfg.FailThreshold.
func Compute(
	mbd domain.MarketBriefingDocument,
	fused domain.FusedSignal,
	bull, bear domain.Thesis,
	record domain.DebateRecord,
	signals []domain.AgentSignal,
	cfg config.ConsensusConfig,
) (domain.Consensus, error) {
	if bull.Direction == "" || bear.Direction == "" {
		return domain.Consensus{}, domain.InsufficientData{Stage: "consensus", Reason: "bull and bear theses are both required"}
	}
	if len(record.Tests) == 0 {
		return domain.Consensus{}, domain.InsufficientData{Stage: "consensus", Reason: "debate record is required"}
	}
	if len(signals) < 2 {
		return domain.Consensus{}, domain.InsufficientData{Stage: "consensus", Reason: "at least 2 agent signals are required"}
	}

	disagreement := disagreementIndex(signals)
	if disagreement > cfg.FailThreshold {
		return domain.Consensus{}, domain.ConsensusFailed{Reason: fmt.Sprintf("disagreement index %.4f exceeds fail threshold %.4f", disagreement, cfg.FailThreshold)}
	}

	probability := blendProbability(fused, bull, bear, record)
	lo, hi := confidenceBand(probability, disagreement, cfg.BandWidthK)
	regime := classifyRegime(disagreement, cfg.HighDisagreementThreshold)
	efficientlyPriced := math.Abs(probability-mbd.CurrentProbability) < cfg.MinEdgeThreshold

	return domain.Consensus{
		ConsensusProbability: probability,
		ConfidenceBandLo:     lo,
		ConfidenceBandHi:     hi,
		DisagreementIndex:    disagreement,
		Regime:               regime,
		ContributingSignals:  signalNames(signals),
		EfficientlyPriced:    efficientlyPriced,
	}, nil
}

func disagreementIndex(signals []domain.AgentSignal) float64 {
	probs := make([]float64, len(signals))
	for i, s := range signals {
		probs[i] = s.FairProbability
	}
	return clamp01(stddev(probs))
}

// blendProbability averages the fused probability with the winning
// thesis's probability, then nudges toward the debate winner by a fixed
// fraction of the spread between the two theses.
func blendProbability(fused domain.FusedSignal, bull, bear domain.Thesis, record domain.DebateRecord) float64 {
	winner := debate.Winner(record)

	winningProbability := bull.FairProbability
	if winner == domain.DirectionNo {
		winningProbability = bear.FairProbability
	}

	blended := 0.5*fused.FairProbability + 0.5*winningProbability

	const nudge = 0.10
	spread := bull.FairProbability - bear.FairProbability
	if winner == domain.DirectionYes {
		blended += nudge * spread
	} else {
		blended -= nudge * spread
	}

	return clamp01(blended)
}

func confidenceBand(probability, disagreement, k float64) (lo, hi float64) {
	half := (baseBandWidth + k*disagreement) / 2
	lo = clamp01(probability - half)
	hi = clamp01(probability + half)
	return lo, hi
}

func classifyRegime(disagreement, highThreshold float64) domain.Regime {
	switch {
	case disagreement < moderateConfidenceCutoff:
		return domain.RegimeHighConfidence
	case disagreement < highThreshold:
		return domain.RegimeModerateConfidence
	default:
		return domain.RegimeHighUncertainty
	}
}

func signalNames(signals []domain.AgentSignal) []string {
	names := make([]string, len(signals))
	for i, s := range signals {
		names[i] = s.AgentName
	}
	return names
}

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
