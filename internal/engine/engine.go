// Package engine wires every analysis stage into the single
// checkpointed run spec §2/§5 describes: ingestion, selection, external
// data fetch, the specialist fan-out, fusion, thesis construction,
// cross-examination, consensus, and recommendation. It is grounded on
// internal/orchestrator.Orchestrator's service-loop shape (contextual
// zerolog logger, Prometheus metrics, graceful context cancellation),
// generalized from a repeating ticker loop to one linear run per
// condition_id, checkpointing GraphState after every node the same way
// the teacher published a decision after every tick.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketintel/engine/internal/agent"
	"github.com/marketintel/engine/internal/agent/riskphilosophy"
	"github.com/marketintel/engine/internal/bus"
	"github.com/marketintel/engine/internal/checkpoint"
	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/consensus"
	"github.com/marketintel/engine/internal/debate"
	"github.com/marketintel/engine/internal/domain"
	"github.com/marketintel/engine/internal/externaldata"
	"github.com/marketintel/engine/internal/fusion"
	"github.com/marketintel/engine/internal/ingestion"
	"github.com/marketintel/engine/internal/llmadapter"
	"github.com/marketintel/engine/internal/marketdata"
	"github.com/marketintel/engine/internal/memory"
	"github.com/marketintel/engine/internal/metrics"
	"github.com/marketintel/engine/internal/recommendation"
	"github.com/marketintel/engine/internal/selection"
	"github.com/marketintel/engine/internal/thesis"
)

// MemoryRecaller is the narrow slice of memory.Store an Engine needs.
// Kept as an interface, rather than taking *memory.Store directly, so
// tests can substitute a stub instead of standing up Postgres.
type MemoryRecaller interface {
	RecallForCondition(ctx context.Context, conditionID string, limit int) ([]memory.Recall, error)
}

// recallLimit bounds how many prior runs of the same market are surfaced
// to specialists as optional_memory_context.
const recallLimit = 3

// Config collects every tunable the engine's nodes consume, assembled
// from config.Config's top-level sections so Engine itself never reads
// a config file.
type Config struct {
	Agents           config.AgentsConfig
	AdvancedAgents   config.AdvancedAgentsConfig
	CostOptimization config.CostOptimizationConfig
	SignalFusion     config.SignalFusionConfig
	Consensus        config.ConsensusConfig
}

// Engine holds every collaborator one analysis run reads or writes.
// Nothing here is a package-level global — a caller (cmd/analyze)
// constructs one Engine per process and calls Run per condition_id.
type Engine struct {
	cfg Config

	checkpoints checkpoint.Store
	market      marketdata.Client
	external    externaldata.Fetcher
	registry    *agent.Registry
	riskAdapter *llmadapter.Adapter
	probe       debate.Probe
	recall      MemoryRecaller
	publisher   *bus.Publisher

	log zerolog.Logger
}

// New builds an Engine from its collaborators. riskAdapter may be nil to
// skip the risk-philosophy stage entirely; recall may be nil — a run
// without memory simply skips the optional recall step; publisher may be
// nil — Publish is a no-op on a nil *bus.Publisher, so a run without NATS
// configured proceeds identically, just without the external event feed.
func New(cfg Config, checkpoints checkpoint.Store, market marketdata.Client, external externaldata.Fetcher, registry *agent.Registry, riskAdapter *llmadapter.Adapter, probe debate.Probe, recall MemoryRecaller, publisher *bus.Publisher) *Engine {
	return &Engine{
		cfg:         cfg,
		checkpoints: checkpoints,
		market:      market,
		external:    external,
		registry:    registry,
		riskAdapter: riskAdapter,
		probe:       probe,
		recall:      recall,
		publisher:   publisher,
		log:         log.With().Str("component", "engine").Logger(),
	}
}

// Run executes one full analysis of conditionID and returns the final
// GraphState. The thread is identified by conditionID itself (spec §2:
// "a request is identified by a thread_id equal to the market's
// condition identifier"), so calling Run again for a conditionID that
// already has checkpoints resumes that thread instead of starting a
// fresh one: every node whose prior result was persisted successfully
// is skipped and its output reconstructed from the decoded GraphState
// rather than recomputed, making resumption idempotent. A terminal
// error (ingestion failure, insufficient data, consensus failure) is
// returned and recorded as a failed audit entry; an ingestion failure
// is also stored in IngestionError and a consensus failure in
// ConsensusError. An insufficient-data error has no GraphState field.
func (e *Engine) Run(ctx context.Context, conditionID string) (*domain.GraphState, error) {
	threadID := conditionID
	now := time.Now()

	state, resumed := e.loadOrInit(ctx, threadID, conditionID, now)
	done := completedNodes(state)

	elog := e.log.With().Str("condition_id", conditionID).Str("run_id", threadID).Logger()
	if resumed {
		elog.Info().Int("nodes_already_done", len(done)).Msg("resuming analysis run from checkpoint")
	} else {
		metrics.AnalysesStarted.Inc()
		elog.Info().Msg("analysis run started")
	}

	mbd, err := e.runIngestion(ctx, threadID, state, conditionID, now, done)
	if err != nil {
		metrics.AnalysesCompleted.WithLabelValues("ingestion_failed").Inc()
		return state, err
	}

	memoryRecall := e.runRecall(ctx, conditionID)

	bundle, availability := e.runExternalFetch(ctx, threadID, state, mbd, done)

	activeKinds := e.runSelection(ctx, threadID, state, mbd, availability, done)

	signals := e.runAgentFanout(ctx, threadID, state, mbd, bundle, memoryRecall, activeKinds, done)

	fused, err := e.runFusion(ctx, threadID, state, signals, mbd, done)
	if err != nil {
		metrics.AnalysesCompleted.WithLabelValues("insufficient_data").Inc()
		return state, err
	}

	bull, bear, err := e.runThesis(ctx, threadID, state, mbd, fused, signals, done)
	if err != nil {
		metrics.AnalysesCompleted.WithLabelValues("insufficient_data").Inc()
		return state, err
	}

	record := e.runDebate(ctx, threadID, state, bull, bear, done)

	cons, err := e.runConsensus(ctx, threadID, state, mbd, fused, bull, bear, record, signals, done)
	if err != nil {
		outcome := "insufficient_data"
		var failed domain.ConsensusFailed
		if errors.As(err, &failed) {
			outcome = "consensus_failed"
		}
		metrics.AnalysesCompleted.WithLabelValues(outcome).Inc()
		return state, err
	}

	riskSignals := e.runRiskPhilosophy(ctx, threadID, state, mbd, fused, done)

	e.runRecommendation(ctx, threadID, state, mbd, cons, bull, bear, record, riskSignals, done)

	metrics.AnalysesCompleted.WithLabelValues("completed").Inc()
	elog.Info().Msg("analysis run completed")
	return state, nil
}

// loadOrInit looks up the latest checkpoint for threadID and decodes it
// into a GraphState to resume from; if none exists, or the lookup/decode
// fails, it starts a fresh thread instead. The bool return reports
// whether an existing checkpoint was actually resumed.
func (e *Engine) loadOrInit(ctx context.Context, threadID, conditionID string, now time.Time) (*domain.GraphState, bool) {
	snapshot, err := e.checkpoints.Get(ctx, threadID)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNotFound) {
			e.log.Warn().Err(err).Str("condition_id", conditionID).Msg("checkpoint lookup failed, starting a fresh run")
		}
		return domain.NewGraphState(conditionID, now), false
	}

	state, err := snapshot.DecodeState()
	if err != nil {
		e.log.Warn().Err(err).Str("condition_id", conditionID).Msg("checkpoint decode failed, starting a fresh run")
		return domain.NewGraphState(conditionID, now), false
	}
	return state, true
}

// completedNodes reports which node names have at least one successful
// audit entry in state's history. A node that previously failed is not
// considered done — Run retries it rather than replaying the failure.
func completedNodes(state *domain.GraphState) map[string]bool {
	done := make(map[string]bool, len(state.AuditLog))
	for _, entry := range state.AuditLog {
		if entry.Success {
			done[entry.Stage] = true
		}
	}
	return done
}

func (e *Engine) runRecall(ctx context.Context, conditionID string) []memory.Recall {
	if e.recall == nil {
		return nil
	}
	recalls, err := e.recall.RecallForCondition(ctx, conditionID, recallLimit)
	if err != nil {
		e.log.Warn().Err(err).Str("condition_id", conditionID).Msg("memory recall failed, continuing without it")
		return nil
	}
	return recalls
}

func (e *Engine) runIngestion(ctx context.Context, threadID string, state *domain.GraphState, conditionID string, now time.Time, done map[string]bool) (domain.MarketBriefingDocument, error) {
	const node = "ingestion"
	if done[node] && state.MBD != nil {
		return *state.MBD, nil
	}
	start := time.Now()

	mbd, err := ingestion.Ingest(ctx, e.market, conditionID, now)
	if err != nil {
		var failed domain.IngestionFailed
		update := domain.StateUpdate{}
		if errors.As(err, &failed) {
			update.IngestionError = &failed
		} else {
			wrapped := domain.IngestionFailed{ConditionID: conditionID, Reason: err.Error()}
			update.IngestionError = &wrapped
		}
		e.checkpointNode(ctx, threadID, state, node, update, false, start, map[string]any{"error": err.Error()})
		return domain.MarketBriefingDocument{}, err
	}

	update := domain.StateUpdate{MBD: &mbd}
	e.checkpointNode(ctx, threadID, state, node, update, true, start, map[string]any{"event_type": string(mbd.EventType)})
	return mbd, nil
}

func (e *Engine) runExternalFetch(ctx context.Context, threadID string, state *domain.GraphState, mbd domain.MarketBriefingDocument, done map[string]bool) (*domain.ExternalDataBundle, selection.Availability) {
	const node = "external_data_fetch"
	if done[node] && state.ExternalData != nil {
		bundle := state.ExternalData
		return bundle, selection.Availability{News: bundle.News != nil, Polling: bundle.Polling != nil, Social: bundle.Social != nil}
	}
	start := time.Now()

	params := externaldata.Params{"question": mbd.Question}
	bundle := &domain.ExternalDataBundle{}
	availability := selection.Availability{}

	if snap, ok := e.fetchSource(ctx, externaldata.SourceNews, params); ok {
		bundle.News = snap
		availability.News = true
	}
	if snap, ok := e.fetchSource(ctx, externaldata.SourcePolling, params); ok {
		bundle.Polling = snap
		availability.Polling = true
	}
	if snap, ok := e.fetchSource(ctx, externaldata.SourceSocial, params); ok {
		bundle.Social = snap
		availability.Social = true
	}

	update := domain.StateUpdate{ExternalData: bundle}
	e.checkpointNode(ctx, threadID, state, node, update, true, start, map[string]any{
		"news_available": availability.News, "polling_available": availability.Polling, "social_available": availability.Social,
	})
	return bundle, availability
}

func (e *Engine) fetchSource(ctx context.Context, source externaldata.Source, params externaldata.Params) (*domain.DataSnapshot, bool) {
	result, err := e.external.Fetch(ctx, source, params)
	if err != nil {
		e.log.Warn().Err(err).Str("source", string(source)).Msg("external data fetch unreachable")
		return nil, false
	}
	return &domain.DataSnapshot{
		Items:            result.Items,
		Stale:            result.Stale,
		FreshnessSeconds: result.FreshnessSeconds,
		FetchedAt:        result.FetchedAt,
	}, true
}

func (e *Engine) runSelection(ctx context.Context, threadID string, state *domain.GraphState, mbd domain.MarketBriefingDocument, availability selection.Availability, done map[string]bool) []agent.Kind {
	const node = "selection"
	if done[node] && state.ActiveAgents != nil {
		kinds := make([]agent.Kind, len(state.ActiveAgents))
		for i, name := range state.ActiveAgents {
			kinds[i] = agent.Kind(name)
		}
		return kinds
	}
	start := time.Now()

	decision := selection.Select(mbd, e.cfg.AdvancedAgents, e.cfg.CostOptimization, availability)
	metrics.ActiveAgents.Set(float64(len(decision.ActiveAgents)))

	names := make([]string, 0, len(decision.ActiveAgents))
	for _, k := range decision.ActiveAgents {
		names = append(names, string(k))
	}

	update := domain.StateUpdate{ActiveAgents: names}
	e.checkpointNode(ctx, threadID, state, node, update, true, start, map[string]any{"audit_trail": decision.AuditTrail})
	return decision.ActiveAgents
}

func (e *Engine) runAgentFanout(ctx context.Context, threadID string, state *domain.GraphState, mbd domain.MarketBriefingDocument, bundle *domain.ExternalDataBundle, recall []memory.Recall, activeKinds []agent.Kind, done map[string]bool) []domain.AgentSignal {
	const node = "agent_fanout"
	if done[node] {
		return state.AgentSignals
	}
	start := time.Now()

	input := agent.Input{MBD: mbd, ExternalData: bundle, Memory: recall}
	results := e.registry.RunAll(ctx, activeKinds, input)

	var signals []domain.AgentSignal
	var errs []domain.AgentErrorRecord
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, domain.AgentErrorRecord{Type: "execution_failed", AgentName: string(r.Kind), Error: r.Err.Error(), Timestamp: time.Now()})
			metrics.RecordAgentError(string(r.Kind), "execution_failed")
			continue
		}
		signals = append(signals, r.Signal)
		metrics.RecordAgentSignal(string(r.Kind), string(r.Signal.Direction), r.Signal.Confidence)
	}

	update := domain.StateUpdate{AgentSignals: signals, AgentErrors: errs}
	e.checkpointNode(ctx, threadID, state, node, update, true, start, map[string]any{"succeeded": len(signals), "failed": len(errs)})
	return signals
}

func (e *Engine) runFusion(ctx context.Context, threadID string, state *domain.GraphState, signals []domain.AgentSignal, mbd domain.MarketBriefingDocument, done map[string]bool) (domain.FusedSignal, error) {
	const node = "signal_fusion"
	if done[node] && state.FusedSignal != nil {
		return *state.FusedSignal, nil
	}
	start := time.Now()

	fused, err := fusion.Fuse(signals, mbd, e.cfg.SignalFusion, e.cfg.Agents.MinAgentsRequired)
	if err != nil {
		e.checkpointNode(ctx, threadID, state, node, domain.StateUpdate{}, false, start, map[string]any{"error": err.Error()})
		return domain.FusedSignal{}, err
	}

	update := domain.StateUpdate{FusedSignal: &fused}
	e.checkpointNode(ctx, threadID, state, node, update, true, start, map[string]any{"fair_probability": fused.FairProbability})
	return fused, nil
}

func (e *Engine) runThesis(ctx context.Context, threadID string, state *domain.GraphState, mbd domain.MarketBriefingDocument, fused domain.FusedSignal, signals []domain.AgentSignal, done map[string]bool) (domain.Thesis, domain.Thesis, error) {
	const node = "thesis_construction"
	if done[node] && state.BullThesis != nil && state.BearThesis != nil {
		return *state.BullThesis, *state.BearThesis, nil
	}
	start := time.Now()

	bull, bear, err := thesis.Build(mbd, fused, signals)
	if err != nil {
		e.checkpointNode(ctx, threadID, state, node, domain.StateUpdate{}, false, start, map[string]any{"error": err.Error()})
		return domain.Thesis{}, domain.Thesis{}, err
	}

	update := domain.StateUpdate{BullThesis: &bull, BearThesis: &bear}
	e.checkpointNode(ctx, threadID, state, node, update, true, start, nil)
	return bull, bear, nil
}

func (e *Engine) runDebate(ctx context.Context, threadID string, state *domain.GraphState, bull, bear domain.Thesis, done map[string]bool) domain.DebateRecord {
	const node = "cross_examination"
	if done[node] && state.DebateRecord != nil {
		return *state.DebateRecord
	}
	start := time.Now()

	record := debate.Run(bull, bear, e.probe)

	update := domain.StateUpdate{DebateRecord: &record}
	e.checkpointNode(ctx, threadID, state, node, update, true, start, map[string]any{"bull_score": record.BullScore, "bear_score": record.BearScore})
	return record
}

func (e *Engine) runConsensus(ctx context.Context, threadID string, state *domain.GraphState, mbd domain.MarketBriefingDocument, fused domain.FusedSignal, bull, bear domain.Thesis, record domain.DebateRecord, signals []domain.AgentSignal, done map[string]bool) (domain.Consensus, error) {
	const node = "consensus"
	if done[node] && state.Consensus != nil {
		return *state.Consensus, nil
	}
	start := time.Now()

	cons, err := consensus.Compute(mbd, fused, bull, bear, record, signals, e.cfg.Consensus)
	if err != nil {
		update := domain.StateUpdate{}
		var failed domain.ConsensusFailed
		if errors.As(err, &failed) {
			update.ConsensusError = &failed
		}
		e.checkpointNode(ctx, threadID, state, node, update, false, start, map[string]any{"error": err.Error()})
		return domain.Consensus{}, err
	}

	update := domain.StateUpdate{Consensus: &cons}
	e.checkpointNode(ctx, threadID, state, node, update, true, start, map[string]any{"regime": string(cons.Regime)})
	return cons, nil
}

// runRiskPhilosophy is non-terminal: a missing adapter or an LLM failure
// here never aborts the run, since recommendation's zone widening
// degrades gracefully to its unweighted defaults without these signals.
func (e *Engine) runRiskPhilosophy(ctx context.Context, threadID string, state *domain.GraphState, mbd domain.MarketBriefingDocument, fused domain.FusedSignal, done map[string]bool) []domain.RiskPhilosophySignal {
	const node = "risk_philosophy"
	if done[node] {
		return state.RiskPhilosophySignals
	}
	start := time.Now()

	if e.riskAdapter == nil {
		e.checkpointNode(ctx, threadID, state, node, domain.StateUpdate{}, true, start, map[string]any{"skipped": true})
		return nil
	}

	signals, err := riskphilosophy.EvaluateAll(ctx, e.riskAdapter, mbd, fused)
	if err != nil {
		e.checkpointNode(ctx, threadID, state, node, domain.StateUpdate{}, false, start, map[string]any{"error": err.Error()})
		return nil
	}

	update := domain.StateUpdate{RiskPhilosophySignals: signals}
	e.checkpointNode(ctx, threadID, state, node, update, true, start, nil)
	return signals
}

func (e *Engine) runRecommendation(ctx context.Context, threadID string, state *domain.GraphState, mbd domain.MarketBriefingDocument, cons domain.Consensus, bull, bear domain.Thesis, record domain.DebateRecord, riskSignals []domain.RiskPhilosophySignal, done map[string]bool) {
	const node = "recommendation"
	if done[node] {
		return
	}
	start := time.Now()

	rec := recommendation.Build(mbd, cons, bull, bear, record, riskSignals, e.cfg.Consensus)

	update := domain.StateUpdate{Recommendation: &rec}
	e.checkpointNode(ctx, threadID, state, node, update, true, start, map[string]any{"action": string(rec.Action)})
}

// checkpointNode merges a node's StateUpdate, appends its AuditEntry,
// writes a checkpoint snapshot, and records Prometheus metrics. A
// checkpoint write failure is logged but never aborts the run — the
// in-memory GraphState remains authoritative for the rest of this call,
// the same way the teacher's Run loop logs-and-continues on a tick
// error rather than crashing the service.
func (e *Engine) checkpointNode(ctx context.Context, threadID string, state *domain.GraphState, node string, update domain.StateUpdate, success bool, start time.Time, data map[string]any) {
	durationMs := float64(time.Since(start).Milliseconds())

	update.AuditEntries = []domain.AuditEntry{{Stage: node, Timestamp: time.Now(), Success: success, Data: data}}
	state.Merge(update)

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	metrics.RecordNodeRun(node, outcome, durationMs)
	metrics.RecordAuditLog(node, success, durationMs)

	if err := e.publisher.PublishNodeCompletion(ctx, threadID, state.ConditionID, node, success); err != nil {
		e.log.Warn().Err(err).Str("node", node).Msg("failed to publish node completion event")
	}

	snapshot, err := checkpoint.EncodeState(threadID, node, state, time.Now())
	if err != nil {
		e.log.Error().Err(err).Str("node", node).Msg("failed to encode checkpoint snapshot")
		return
	}
	if err := e.checkpoints.Put(ctx, snapshot); err != nil {
		e.log.Error().Err(err).Str("node", node).Msg("failed to persist checkpoint")
	}
}
