package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/marketintel/engine/internal/debate"
	"github.com/marketintel/engine/internal/domain"
	"github.com/marketintel/engine/internal/llmadapter"
)

var debateRequiredFields = []string{"outcome", "score", "claim"}

var debateProbeTimeout = 30 * time.Second

// NewLLMProbe builds the debate.Probe a composition root should pass to
// New, backed by adapter. Exported so cmd-level wiring outside this
// package can construct a real probe instead of reaching for internal
// fields.
func NewLLMProbe(adapter *llmadapter.Adapter) debate.Probe {
	return llmProbe(adapter)
}

// llmProbe builds the debate.Probe the cross-examination stage runs
// against, grounded on riskphilosophy.Agent.Evaluate's adapter-call
// shape: one structured-output request per invocation, decoded into the
// domain type the caller needs rather than handed back raw.
func llmProbe(adapter *llmadapter.Adapter) debate.Probe {
	schema := llmadapter.Schema{RequiredFields: debateRequiredFields}

	return func(thesis domain.Thesis, testType domain.TestType) domain.DebateTest {
		test := domain.DebateTest{TestType: testType, Side: thesis.Direction}

		ctx, cancel := context.WithTimeout(context.Background(), debateProbeTimeout)
		defer cancel()

		systemPrompt := fmt.Sprintf(
			"You are an adversarial debate judge. Attack the given thesis with a %s "+
				"challenge: %s. Respond with a single JSON object and no other text.",
			testType, probeQuestion(testType),
		)
		userPrompt := fmt.Sprintf(
			"Thesis direction: %s\nCore argument: %s\nCatalysts: %v\nFailure conditions: %v\n"+
				"Respond with JSON: {\"claim\": string restating the thesis's exposure to this challenge, "+
				"\"challenge\": string, \"outcome\": one of \"survived\"|\"weakened\"|\"refuted\", "+
				"\"score\": number in [-1,1], positive favors the thesis surviving}",
			thesis.Direction, thesis.CoreArgument, thesis.Catalysts, thesis.FailureConditions,
		)

		result, err := adapter.Invoke(ctx, llmadapter.Request{SystemPrompt: systemPrompt, UserPrompt: userPrompt, Schema: schema})
		if err != nil {
			test.Outcome = domain.OutcomeWeakened
			test.Claim = thesis.CoreArgument
			test.Challenge = fmt.Sprintf("probe failed: %v", err)
			return test
		}

		return decodeDebateTest(test, result.Decoded)
	}
}

func probeQuestion(testType domain.TestType) string {
	switch testType {
	case domain.TestTypeEvidence:
		return "does the cited evidence actually support the claimed direction, or is it cherry-picked"
	case domain.TestTypeCausality:
		return "does the proposed causal mechanism actually move the resolution, or is it coincidental"
	case domain.TestTypeTiming:
		return "does the catalyst land before expiry with enough lead time to move the market"
	case domain.TestTypeLiquidity:
		return "can this thesis be acted on given current book depth and spread"
	case domain.TestTypeTailRisk:
		return "does a low-probability tail event invalidate this thesis entirely"
	default:
		return "is this thesis sound"
	}
}

func decodeDebateTest(test domain.DebateTest, decoded map[string]any) domain.DebateTest {
	if claim, ok := decoded["claim"].(string); ok {
		test.Claim = claim
	}
	if challenge, ok := decoded["challenge"].(string); ok {
		test.Challenge = challenge
	}
	if outcome, ok := decoded["outcome"].(string); ok {
		switch domain.TestOutcome(outcome) {
		case domain.OutcomeSurvived, domain.OutcomeWeakened, domain.OutcomeRefuted:
			test.Outcome = domain.TestOutcome(outcome)
		default:
			test.Outcome = domain.OutcomeWeakened
		}
	} else {
		test.Outcome = domain.OutcomeWeakened
	}
	if score, ok := decoded["score"].(float64); ok {
		test.Score = clampScore(score)
	}
	return test
}

func clampScore(v float64) float64 {
	switch {
	case v < -1:
		return -1
	case v > 1:
		return 1
	default:
		return v
	}
}
