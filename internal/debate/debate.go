// Package debate runs the scored adversarial cross-examination of the
// bull and bear theses (spec §4.7). It is grounded on the same
// DebateTurnResult-as-argument pattern internal/thesis borrows from the
// NeuraTrade debate coordinator, here generalized to the test-generation
// and scoring half of that coordinator's multi-round loop.
package debate

import (
	"fmt"

	"github.com/marketintel/engine/internal/domain"
)

var testTypes = []domain.TestType{
	domain.TestTypeEvidence,
	domain.TestTypeCausality,
	domain.TestTypeTiming,
	domain.TestTypeLiquidity,
	domain.TestTypeTailRisk,
}

// probeTemplate names the challenge posed by a test type against a
// thesis, grounded on the teacher's adversarial-prompt style in its
// debate-round construction.
var probeTemplate = map[domain.TestType]string{
	domain.TestTypeEvidence:  "does the cited evidence actually support the claimed direction, or is it cherry-picked",
	domain.TestTypeCausality: "does the proposed causal mechanism actually move the resolution, or is it coincidental",
	domain.TestTypeTiming:    "does the catalyst land before expiry with enough lead time to move the market",
	domain.TestTypeLiquidity: "can this thesis be acted on given current book depth and spread",
	domain.TestTypeTailRisk:  "does a low-probability tail event invalidate this thesis entirely",
}

// Run generates 2-10 adversarial tests against each thesis and scores
// them, returning the combined DebateRecord. probe supplies the scored
// outcome for a given test type and thesis — in production this is
// backed by an LLM call; Run itself contains no I/O so it is trivially
// testable with a stub probe.
type Probe func(thesis domain.Thesis, testType domain.TestType) domain.DebateTest

func Run(bull, bear domain.Thesis, probe Probe) domain.DebateRecord {
	bullTests := runTests(bull, probe)
	bearTests := runTests(bear, probe)

	tests := make([]domain.DebateTest, 0, len(bullTests)+len(bearTests))
	tests = append(tests, bullTests...)
	tests = append(tests, bearTests...)

	bullScore := sideScore(bullTests)
	bearScore := sideScore(bearTests)

	record := domain.DebateRecord{
		Tests:     tests,
		BullScore: bullScore,
		BearScore: bearScore,
	}

	if bullScore == bearScore {
		record.KeyDisagreements = append(record.KeyDisagreements, tieBreak(bullTests, bearTests))
	}

	return record
}

// runTests probes a thesis with every test type — five probes, within
// the spec's 2-10 bound.
func runTests(thesis domain.Thesis, probe Probe) []domain.DebateTest {
	tests := make([]domain.DebateTest, 0, len(testTypes))
	for _, tt := range testTypes {
		tests = append(tests, probe(thesis, tt))
	}
	return tests
}

// sideScore is mean(score of surviving tests) - mean(score of refuted
// tests), per spec §4.7. Weakened tests contribute to neither mean.
func sideScore(tests []domain.DebateTest) float64 {
	var survivedSum, refutedSum float64
	var survivedCount, refutedCount int

	for _, t := range tests {
		switch t.Outcome {
		case domain.OutcomeSurvived:
			survivedSum += t.Score
			survivedCount++
		case domain.OutcomeRefuted:
			refutedSum += t.Score
			refutedCount++
		}
	}

	var survivedMean, refutedMean float64
	if survivedCount > 0 {
		survivedMean = survivedSum / float64(survivedCount)
	}
	if refutedCount > 0 {
		refutedMean = refutedSum / float64(refutedCount)
	}

	return survivedMean - refutedMean
}

// tieBreak favors the side whose surviving tests span more distinct
// test types, recording the reasoning as a key disagreement.
func tieBreak(bullTests, bearTests []domain.DebateTest) string {
	bullSpan := distinctSurvivingTypes(bullTests)
	bearSpan := distinctSurvivingTypes(bearTests)

	switch {
	case bullSpan > bearSpan:
		return fmt.Sprintf("scores tied; bull wins tie-break with %d distinct surviving test types vs bear's %d", bullSpan, bearSpan)
	case bearSpan > bullSpan:
		return fmt.Sprintf("scores tied; bear wins tie-break with %d distinct surviving test types vs bull's %d", bearSpan, bullSpan)
	default:
		return fmt.Sprintf("scores and surviving test-type span both tied at %d; no tie-break winner", bullSpan)
	}
}

func distinctSurvivingTypes(tests []domain.DebateTest) int {
	seen := make(map[domain.TestType]bool)
	for _, t := range tests {
		if t.Outcome == domain.OutcomeSurvived {
			seen[t.TestType] = true
		}
	}
	return len(seen)
}

// Winner reports which side the cross-examination favors, for
// internal/consensus's debate-weighted blend. A tie resolves via the
// same distinct-test-type span as Run's KeyDisagreements tie-break;
// when the spans are equal as well, Winner returns YES.
func Winner(record domain.DebateRecord) domain.Direction {
	if record.BullScore > record.BearScore {
		return domain.DirectionYes
	}
	if record.BearScore > record.BullScore {
		return domain.DirectionNo
	}

	var bullTests, bearTests []domain.DebateTest
	for _, t := range record.Tests {
		if t.Side == domain.DirectionYes {
			bullTests = append(bullTests, t)
		} else if t.Side == domain.DirectionNo {
			bearTests = append(bearTests, t)
		}
	}
	if distinctSurvivingTypes(bullTests) >= distinctSurvivingTypes(bearTests) {
		return domain.DirectionYes
	}
	return domain.DirectionNo
}
