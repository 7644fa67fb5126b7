// Package agent hosts the specialist analysts that turn one market
// briefing document into an AgentSignal (spec §4.4). Every specialist
// shares the same identity/metrics/timeout scaffolding the teacher's
// BaseAgent provided for its long-running MCP agents, generalized from
// a ticking Run/Step loop to a single bounded Analyze call per run.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketintel/engine/internal/domain"
	"github.com/marketintel/engine/internal/llmadapter"
	"github.com/marketintel/engine/internal/memory"
)

// defaultStepTimeout bounds one specialist's Analyze call, mirroring the
// teacher's mcpToolCallTimeout constant generalized to the single
// LLM-call-plus-parsing shape every specialist performs.
const defaultStepTimeout = 60 * time.Second

var agentMetricsOnce = map[string]*Metrics{}

// Metrics holds the Prometheus instruments shared by every specialist,
// registered once per agent name the same way the teacher guards
// per-agent metric registration.
type Metrics struct {
	InvocationsTotal prometheus.Counter
	ErrorsTotal      prometheus.Counter
	Duration         prometheus.Histogram
}

func metricsFor(name string) *Metrics {
	if m, ok := agentMetricsOnce[name]; ok {
		return m
	}
	m := &Metrics{
		InvocationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("marketintel_agent_%s_invocations_total", name),
			Help: fmt.Sprintf("Total analyze invocations for agent %s", name),
		}),
		ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("marketintel_agent_%s_errors_total", name),
			Help: fmt.Sprintf("Total analyze errors for agent %s", name),
		}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    fmt.Sprintf("marketintel_agent_%s_duration_seconds", name),
			Help:    fmt.Sprintf("Duration of analyze calls for agent %s", name),
			Buckets: prometheus.DefBuckets,
		}),
	}
	agentMetricsOnce[name] = m
	return m
}

// Input is everything one specialist may read: the briefing document,
// whatever external data made it through the fetch stage, and optional
// recall of prior analyses of the same market.
type Input struct {
	MBD          domain.MarketBriefingDocument
	ExternalData *domain.ExternalDataBundle
	Memory       []memory.Recall
}

// Specialist produces exactly one AgentSignal per analysis run.
type Specialist interface {
	Name() string
	Analyze(ctx context.Context, input Input) (domain.AgentSignal, error)
}

// BaseSpecialist wires the LLM adapter call, timeout, metrics, and
// structured-output schema shared by every prompt-driven specialist.
// Concrete specialists embed it and supply their own prompt builder.
type BaseSpecialist struct {
	name    string
	adapter *llmadapter.Adapter
	schema  llmadapter.Schema
	timeout time.Duration
	metrics *Metrics
	log     zerolog.Logger
}

// PromptBuilder renders the system/user prompt for one specialist given
// its input. Kept separate from BaseSpecialist so each concrete agent
// supplies only its own domain framing.
type PromptBuilder func(input Input) (systemPrompt, userPrompt string)

var requiredSignalFields = []string{"direction", "fair_probability", "confidence", "key_drivers"}

// NewBaseSpecialist builds the shared scaffolding for one named agent.
func NewBaseSpecialist(name string, adapter *llmadapter.Adapter) BaseSpecialist {
	return BaseSpecialist{
		name:    name,
		adapter: adapter,
		schema:  llmadapter.Schema{RequiredFields: requiredSignalFields, Semantic: validateDirectionConsistency},
		timeout: defaultStepTimeout,
		metrics: metricsFor(name),
		log:     log.With().Str("agent", name).Logger(),
	}
}

func (b BaseSpecialist) Name() string { return b.name }

// invoke runs the LLM call, measures it, and decodes the structured
// output into an AgentSignal. It never swallows a ProviderError — the
// caller (internal/agent's fan-out, see RunAll in registry.go) is
// responsible for turning that into an AgentErrorRecord, not a panic or
// a silently-dropped signal.
func (b BaseSpecialist) invoke(ctx context.Context, build PromptBuilder, input Input) (domain.AgentSignal, error) {
	start := time.Now()
	b.metrics.InvocationsTotal.Inc()
	defer func() { b.metrics.Duration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	systemPrompt, userPrompt := build(input)
	result, err := b.adapter.Invoke(ctx, llmadapter.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Schema:       b.schema,
	})
	if err != nil {
		b.metrics.ErrorsTotal.Inc()
		b.log.Warn().Err(err).Msg("specialist analyze failed")
		return domain.AgentSignal{}, fmt.Errorf("agent %s: %w", b.name, err)
	}

	return decodeSignal(b.name, start, result.Decoded)
}

// validateDirectionConsistency rejects a structured output whose
// direction contradicts its fair_probability, enforcing the same
// YES/NO/NEUTRAL invariant domain.DirectionForProbability derives
// everywhere a signal is built. A provider returning, say,
// {"direction":"NO","fair_probability":0.9} produced a coherent-looking
// but internally contradictory answer; missing or malformed fields are
// left to RequiredFields, since this check only runs once those already
// passed.
func validateDirectionConsistency(obj map[string]any) error {
	fairProbability, err := asFloat(obj["fair_probability"])
	if err != nil {
		return nil
	}
	raw, ok := obj["direction"].(string)
	if !ok || raw == "" {
		return nil
	}
	expected := domain.DirectionForProbability(fairProbability)
	if domain.Direction(raw) != expected {
		return fmt.Errorf("direction %q inconsistent with fair_probability %.4f (expected %s)", raw, fairProbability, expected)
	}
	return nil
}

func decodeSignal(name string, timestamp time.Time, decoded map[string]any) (domain.AgentSignal, error) {
	fairProbability, err := asFloat(decoded["fair_probability"])
	if err != nil {
		return domain.AgentSignal{}, fmt.Errorf("agent %s: fair_probability: %w", name, err)
	}
	confidence, err := asFloat(decoded["confidence"])
	if err != nil {
		return domain.AgentSignal{}, fmt.Errorf("agent %s: confidence: %w", name, err)
	}

	direction := domain.DirectionForProbability(fairProbability)
	if raw, ok := decoded["direction"].(string); ok && raw != "" {
		direction = domain.Direction(raw)
	}

	return domain.AgentSignal{
		AgentName:       name,
		Timestamp:       timestamp,
		Confidence:      clamp01(confidence),
		Direction:       direction,
		FairProbability: clamp01(fairProbability),
		KeyDrivers:      asStringSlice(decoded["key_drivers"]),
		RiskFactors:     asStringSlice(decoded["risk_factors"]),
		Metadata:        decoded,
	}, nil
}

func asFloat(v any) (float64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("expected number, got %T", v)
	}
	return f, nil
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
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
