package debate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketintel/engine/internal/domain"
)

func allSurviveProbe(thesis domain.Thesis, testType domain.TestType) domain.DebateTest {
	score := 0.5
	if thesis.Direction == domain.DirectionNo {
		score = 0.2
	}
	return domain.DebateTest{
		TestType:  testType,
		Side:      thesis.Direction,
		Claim:     thesis.CoreArgument,
		Challenge: string(testType),
		Outcome:   domain.OutcomeSurvived,
		Score:     score,
	}
}

func TestRun_GeneratesFiveTestsPerSide(t *testing.T) {
	bull := domain.Thesis{Direction: domain.DirectionYes}
	bear := domain.Thesis{Direction: domain.DirectionNo}

	record := Run(bull, bear, allSurviveProbe)
	require.Len(t, record.Tests, 10)
	assert.InDelta(t, 0.5, record.BullScore, 1e-9)
	assert.InDelta(t, 0.2, record.BearScore, 1e-9)
}

func TestRun_TieBreakByDistinctSurvivingTypes(t *testing.T) {
	bull := domain.Thesis{Direction: domain.DirectionYes}
	bear := domain.Thesis{Direction: domain.DirectionNo}

	callCount := 0
	probe := func(thesis domain.Thesis, testType domain.TestType) domain.DebateTest {
		callCount++
		outcome := domain.OutcomeSurvived
		if thesis.Direction == domain.DirectionNo && testType != domain.TestTypeEvidence {
			outcome = domain.OutcomeWeakened
		}
		return domain.DebateTest{TestType: testType, Side: thesis.Direction, Outcome: outcome, Score: 0.3}
	}

	record := Run(bull, bear, probe)
	require.NotEmpty(t, record.KeyDisagreements)
	assert.Equal(t, domain.DirectionYes, Winner(record))
}

func TestSideScore_SurvivedMinusRefuted(t *testing.T) {
	tests := []domain.DebateTest{
		{Outcome: domain.OutcomeSurvived, Score: 0.6},
		{Outcome: domain.OutcomeSurvived, Score: 0.4},
		{Outcome: domain.OutcomeRefuted, Score: -0.2},
	}
	score := sideScore(tests)
	assert.InDelta(t, 0.5-(-0.2), score, 1e-9)
}

func TestWinner_PicksHigherScoringSide(t *testing.T) {
	record := domain.DebateRecord{BullScore: 0.4, BearScore: 0.1}
	assert.Equal(t, domain.DirectionYes, Winner(record))

	record = domain.DebateRecord{BullScore: 0.1, BearScore: 0.4}
	assert.Equal(t, domain.DirectionNo, Winner(record))
}
