package riskphilosophy

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketintel/engine/internal/domain"
	"github.com/marketintel/engine/internal/llmadapter"
)

type stubProvider struct {
	response json.RawMessage
}

func (s stubProvider) ID() llmadapter.ProviderID { return llmadapter.ProviderA }

func (s stubProvider) Invoke(context.Context, llmadapter.Request) (json.RawMessage, error) {
	return s.response, nil
}

func TestAgent_EvaluateDecodesSignal(t *testing.T) {
	provider := stubProvider{response: []byte(`{"zone_widening_bps":25,"liquidity_caution":true,"reasoning":"thin book"}`)}
	adapter := llmadapter.NewAdapter([]llmadapter.Provider{provider}, llmadapter.AdapterConfig{Timeout: time.Second})

	agent := New(PhilosophyConservative, adapter)
	signal, err := agent.Evaluate(context.Background(), domain.MarketBriefingDocument{LiquidityScore: 2}, domain.FusedSignal{FairProbability: 0.6})
	require.NoError(t, err)
	assert.Equal(t, "conservative", signal.Philosophy)
	assert.Equal(t, 25.0, signal.ZoneWideningBps)
	assert.True(t, signal.LiquidityCaution)
}

func TestEvaluateAll_ReturnsThreePhilosophies(t *testing.T) {
	provider := stubProvider{response: []byte(`{"zone_widening_bps":10,"liquidity_caution":false,"reasoning":"ok"}`)}
	adapter := llmadapter.NewAdapter([]llmadapter.Provider{provider}, llmadapter.AdapterConfig{Timeout: time.Second})

	signals, err := EvaluateAll(context.Background(), adapter, domain.MarketBriefingDocument{}, domain.FusedSignal{})
	require.NoError(t, err)
	require.Len(t, signals, 3)
}
