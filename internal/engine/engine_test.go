package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketintel/engine/internal/agent"
	"github.com/marketintel/engine/internal/checkpoint"
	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/debate"
	"github.com/marketintel/engine/internal/domain"
	"github.com/marketintel/engine/internal/externaldata"
	"github.com/marketintel/engine/internal/llmadapter"
	"github.com/marketintel/engine/internal/marketdata"
)

type stubProvider struct {
	response json.RawMessage
}

func (s stubProvider) ID() llmadapter.ProviderID { return llmadapter.ProviderA }

func (s stubProvider) Invoke(context.Context, llmadapter.Request) (json.RawMessage, error) {
	return s.response, nil
}

func testAdapter(response string) *llmadapter.Adapter {
	return llmadapter.NewAdapter([]llmadapter.Provider{stubProvider{response: json.RawMessage(response)}}, llmadapter.AdapterConfig{Timeout: time.Second})
}

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, source externaldata.Source, _ externaldata.Params) (*externaldata.FetchResult, error) {
	if source != externaldata.SourceNews {
		return nil, assertUnreachable{}
	}
	return &externaldata.FetchResult{Items: []externaldata.Item{{"headline": "a development occurred"}}}, nil
}

type assertUnreachable struct{}

func (assertUnreachable) Error() string { return "source unreachable" }

func alwaysSurvivesProbe(thesis domain.Thesis, testType domain.TestType) domain.DebateTest {
	return domain.DebateTest{
		TestType: testType,
		Side:     thesis.Direction,
		Claim:    thesis.CoreArgument,
		Outcome:  domain.OutcomeSurvived,
		Score:    0.4,
	}
}

func testMarket(now time.Time) *marketdata.RawMarket {
	return &marketdata.RawMarket{
		ConditionID: "0xabc",
		MarketID:    "m1",
		Question:    "Will the measure pass?",
		Resolution:  "Resolves YES if the measure passes by expiry.",
		Category:    "policy",
		ExpiryTime:  now.Add(72 * time.Hour),
		YesPrice:    0.58,
		BestBid:     0.56,
		BestAsk:     0.60,
		Volume24h:   30000,
		LiquidityUSD: 150000,
		RecentPrices: []marketdata.PricePoint{
			{Timestamp: now.Add(-2 * time.Hour), Price: 0.57},
			{Timestamp: now.Add(-1 * time.Hour), Price: 0.58},
		},
		Catalysts: []marketdata.CatalystEvent{
			{Event: "committee vote", Timestamp: now.Add(24 * time.Hour)},
		},
	}
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	now := time.Now()
	market := marketdata.NewStubClient(map[string]*marketdata.RawMarket{"0xabc": testMarket(now)})

	registry := agent.NewRegistry(nil, map[agent.Kind]*llmadapter.Adapter{
		agent.KindMarketMicrostructure: testAdapter(`{"direction":"YES","fair_probability":0.62,"confidence":0.7,"key_drivers":["tight spread"]}`),
		agent.KindProbabilityBaseline:  testAdapter(`{"direction":"YES","fair_probability":0.60,"confidence":0.65,"key_drivers":["base rate favors passage"]}`),
		agent.KindRiskAssessment:       testAdapter(`{"direction":"NEUTRAL","fair_probability":0.55,"confidence":0.5,"key_drivers":["resolution risk is modest"],"risk_factors":["late amendment could change scope"]}`),
	})

	cfg := Config{
		Agents:           config.AgentsConfig{MinAgentsRequired: 2},
		AdvancedAgents:   config.AdvancedAgentsConfig{},
		CostOptimization: config.CostOptimizationConfig{},
		SignalFusion:     config.SignalFusionConfig{ConflictThreshold: 0.2, AlignmentBonus: 0.1},
		Consensus: config.ConsensusConfig{
			MinEdgeThreshold:          0.03,
			HighDisagreementThreshold: 0.20,
			FailThreshold:             0.30,
			BandWidthK:                0.2,
		},
	}

	return New(cfg, checkpoint.NewMemoryStore(), market, stubFetcher{}, registry, nil, alwaysSurvivesProbe, nil, nil)
}

func TestEngine_RunProducesRecommendation(t *testing.T) {
	e := testEngine(t)

	state, err := e.Run(context.Background(), "0xabc")
	require.NoError(t, err)

	require.NotNil(t, state.MBD)
	require.Len(t, state.AgentSignals, 3)
	require.NotNil(t, state.FusedSignal)
	require.NotNil(t, state.BullThesis)
	require.NotNil(t, state.BearThesis)
	require.NotNil(t, state.DebateRecord)
	require.NotNil(t, state.Consensus)
	require.NotNil(t, state.Recommendation)
	assert.NotEmpty(t, state.AuditLog)

	var sawRecommendationStage bool
	for _, entry := range state.AuditLog {
		if entry.Stage == "recommendation" {
			sawRecommendationStage = true
		}
	}
	assert.True(t, sawRecommendationStage)
}

func TestEngine_RunTerminatesOnIngestionFailure(t *testing.T) {
	e := testEngine(t)

	state, err := e.Run(context.Background(), "0xmissing")
	require.Error(t, err)
	require.NotNil(t, state.IngestionError)
	assert.Nil(t, state.Recommendation)
}

func TestEngine_CheckspointsEveryNode(t *testing.T) {
	e := testEngine(t)

	state, err := e.Run(context.Background(), "0xabc")
	require.NoError(t, err)

	history, err := e.checkpoints.List(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(history), 8)
}

type countingMarket struct {
	inner marketdata.Client
	calls int
}

func (c *countingMarket) GetMarket(ctx context.Context, conditionID string) (*marketdata.RawMarket, error) {
	c.calls++
	return c.inner.GetMarket(ctx, conditionID)
}

type countingProvider struct {
	response json.RawMessage
	calls    *int
}

func (c countingProvider) ID() llmadapter.ProviderID { return llmadapter.ProviderA }

func (c countingProvider) Invoke(context.Context, llmadapter.Request) (json.RawMessage, error) {
	*c.calls++
	return c.response, nil
}

func countingAdapter(response string, calls *int) *llmadapter.Adapter {
	return llmadapter.NewAdapter([]llmadapter.Provider{countingProvider{response: json.RawMessage(response), calls: calls}}, llmadapter.AdapterConfig{Timeout: time.Second})
}

// TestEngine_RunResumesFromCheckpointWithoutReplayingCompletedNodes covers
// spec scenario 6: restarting Run with the same condition_id after a
// completed analysis must not re-fetch the market or re-invoke any
// specialist, since every node already has a successful audit entry.
func TestEngine_RunResumesFromCheckpointWithoutReplayingCompletedNodes(t *testing.T) {
	now := time.Now()
	market := &countingMarket{inner: marketdata.NewStubClient(map[string]*marketdata.RawMarket{"0xabc": testMarket(now)})}

	var agentCalls int
	registry := agent.NewRegistry(nil, map[agent.Kind]*llmadapter.Adapter{
		agent.KindMarketMicrostructure: countingAdapter(`{"direction":"YES","fair_probability":0.62,"confidence":0.7,"key_drivers":["tight spread"]}`, &agentCalls),
		agent.KindProbabilityBaseline:  countingAdapter(`{"direction":"YES","fair_probability":0.60,"confidence":0.65,"key_drivers":["base rate favors passage"]}`, &agentCalls),
		agent.KindRiskAssessment:       countingAdapter(`{"direction":"NEUTRAL","fair_probability":0.55,"confidence":0.5,"key_drivers":["resolution risk is modest"],"risk_factors":["late amendment could change scope"]}`, &agentCalls),
	})

	cfg := Config{
		Agents:           config.AgentsConfig{MinAgentsRequired: 2},
		AdvancedAgents:   config.AdvancedAgentsConfig{},
		CostOptimization: config.CostOptimizationConfig{},
		SignalFusion:     config.SignalFusionConfig{ConflictThreshold: 0.2, AlignmentBonus: 0.1},
		Consensus: config.ConsensusConfig{
			MinEdgeThreshold:          0.03,
			HighDisagreementThreshold: 0.20,
			FailThreshold:             0.30,
			BandWidthK:                0.2,
		},
	}
	e := New(cfg, checkpoint.NewMemoryStore(), market, stubFetcher{}, registry, nil, alwaysSurvivesProbe, nil, nil)

	first, err := e.Run(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, first.Recommendation)
	assert.Equal(t, 1, market.calls)
	assert.Equal(t, 3, agentCalls)
	firstAuditLen := len(first.AuditLog)

	second, err := e.Run(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, second.Recommendation)

	assert.Equal(t, 1, market.calls, "ingestion must not be re-run on resume")
	assert.Equal(t, 3, agentCalls, "specialists must not be re-invoked on resume")
	assert.Equal(t, firstAuditLen, len(second.AuditLog), "a fully-completed thread gains no new audit entries on resume")
	assert.Equal(t, first.Recommendation.Action, second.Recommendation.Action)
}

var _ debate.Probe = alwaysSurvivesProbe
