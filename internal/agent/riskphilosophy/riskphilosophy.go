// Package riskphilosophy hosts the aggressive/conservative/neutral
// perspective agents (spec §4.4). They share the same call mechanics as
// internal/agent's specialists but produce a RiskPhilosophySignal, and
// are never merged into fusion or consensus — only into recommendation
// zone widening and liquidity-risk labeling (spec §4.9's Open Question
// partition decision, recorded in DESIGN.md).
package riskphilosophy

import (
	"context"
	"fmt"
	"time"

	"github.com/marketintel/engine/internal/domain"
	"github.com/marketintel/engine/internal/llmadapter"
)

// Philosophy names one of the three perspectives.
type Philosophy string

const (
	PhilosophyAggressive   Philosophy = "aggressive"
	PhilosophyConservative Philosophy = "conservative"
	PhilosophyNeutral      Philosophy = "neutral"
)

var framingTable = map[Philosophy]string{
	PhilosophyAggressive: "an aggressive risk-taking trader who favors wide entry zones and is willing to tolerate thin liquidity for a strong edge",
	PhilosophyConservative: "a conservative risk-averse trader who favors tight, well-inside-the-spread entry zones and avoids thin liquidity",
	PhilosophyNeutral: "a neutral risk-balanced trader who weighs edge and liquidity risk evenly",
}

var requiredFields = []string{"zone_widening_bps", "liquidity_caution", "reasoning"}

// Agent produces exactly one RiskPhilosophySignal.
type Agent struct {
	philosophy Philosophy
	adapter    *llmadapter.Adapter
	schema     llmadapter.Schema
	timeout    time.Duration
}

// New builds a perspective agent.
func New(philosophy Philosophy, adapter *llmadapter.Adapter) *Agent {
	return &Agent{
		philosophy: philosophy,
		adapter:    adapter,
		schema:     llmadapter.Schema{RequiredFields: requiredFields},
		timeout:    30 * time.Second,
	}
}

// Evaluate reads the fused signal and market liquidity and returns how
// much this philosophy would widen the recommendation's zones and
// whether it flags liquidity caution.
func (a *Agent) Evaluate(ctx context.Context, mbd domain.MarketBriefingDocument, fused domain.FusedSignal) (domain.RiskPhilosophySignal, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	systemPrompt := fmt.Sprintf(
		"You are %s. Given a fused probability estimate and market liquidity conditions, "+
			"decide how many basis points to widen the recommendation's entry/target zones by, "+
			"and whether execution risk warrants a liquidity caution flag. "+
			"Respond with a single JSON object and no other text.",
		framingTable[a.philosophy],
	)
	userPrompt := fmt.Sprintf(
		"Fused fair probability: %.4f, confidence: %.4f, signal alignment: %.4f\n"+
			"Market liquidity score: %.2f (0-10), bid-ask spread: %.4f, volatility regime: %s\n"+
			"Respond with JSON: {\"zone_widening_bps\": number >= 0, \"liquidity_caution\": boolean, \"reasoning\": string}",
		fused.FairProbability, fused.Confidence, fused.SignalAlignment,
		mbd.LiquidityScore, mbd.BidAskSpread, mbd.VolatilityRegime,
	)

	result, err := a.adapter.Invoke(ctx, llmadapter.Request{SystemPrompt: systemPrompt, UserPrompt: userPrompt, Schema: a.schema})
	if err != nil {
		return domain.RiskPhilosophySignal{}, fmt.Errorf("riskphilosophy %s: %w", a.philosophy, err)
	}

	return decode(a.philosophy, result.Decoded)
}

func decode(philosophy Philosophy, decoded map[string]any) (domain.RiskPhilosophySignal, error) {
	widening, ok := decoded["zone_widening_bps"].(float64)
	if !ok {
		return domain.RiskPhilosophySignal{}, fmt.Errorf("riskphilosophy %s: zone_widening_bps must be a number", philosophy)
	}
	caution, _ := decoded["liquidity_caution"].(bool)
	reasoning, _ := decoded["reasoning"].(string)

	if widening < 0 {
		widening = 0
	}

	return domain.RiskPhilosophySignal{
		Philosophy:       string(philosophy),
		ZoneWideningBps:  widening,
		LiquidityCaution: caution,
		Reasoning:        reasoning,
	}, nil
}

// EvaluateAll runs all three perspectives sequentially — there are only
// three, and they feed a single downstream zone-widening calculation
// (internal/recommendation), so the extra complexity of a fan-out
// wouldn't earn its keep the way internal/agent's fourteen-way fan-out
// does.
func EvaluateAll(ctx context.Context, adapter *llmadapter.Adapter, mbd domain.MarketBriefingDocument, fused domain.FusedSignal) ([]domain.RiskPhilosophySignal, error) {
	philosophies := []Philosophy{PhilosophyAggressive, PhilosophyConservative, PhilosophyNeutral}
	signals := make([]domain.RiskPhilosophySignal, 0, len(philosophies))

	for _, p := range philosophies {
		agent := New(p, adapter)
		signal, err := agent.Evaluate(ctx, mbd, fused)
		if err != nil {
			return nil, err
		}
		signals = append(signals, signal)
	}
	return signals, nil
}
