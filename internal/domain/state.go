package domain

import (
	"time"

	"github.com/google/uuid"
)

// GraphState is the single accumulator threaded through every node of one
// analysis run. It is a monotone bag: scalar fields use last-non-null-wins,
// list-valued fields use append-with-key-dedup. The graph exclusively owns
// this object for the lifetime of a thread; checkpoints are serialized
// snapshots co-owned by the durable store (internal/checkpoint).
type GraphState struct {
	RunID       uuid.UUID `json:"run_id"`
	ConditionID string    `json:"condition_id"`
	StartedAt   time.Time `json:"started_at"`

	MBD             *MarketBriefingDocument `json:"mbd,omitempty"`
	IngestionError  *IngestionFailed        `json:"ingestion_error,omitempty"`

	ActiveAgents []string `json:"active_agents,omitempty"`

	ExternalData *ExternalDataBundle `json:"external_data,omitempty"`

	AgentSignals []AgentSignal      `json:"agent_signals,omitempty"`
	AgentErrors  []AgentErrorRecord `json:"agent_errors,omitempty"`

	FusedSignal *FusedSignal `json:"fused_signal,omitempty"`

	BullThesis *Thesis `json:"bull_thesis,omitempty"`
	BearThesis *Thesis `json:"bear_thesis,omitempty"`

	DebateRecord *DebateRecord `json:"debate_record,omitempty"`

	Consensus      *Consensus        `json:"consensus,omitempty"`
	ConsensusError *ConsensusFailed  `json:"consensus_error,omitempty"`

	RiskPhilosophySignals []RiskPhilosophySignal  `json:"risk_philosophy_signals,omitempty"`
	AgentPerformance      []AgentPerformanceRecord `json:"agent_performance,omitempty"`

	Recommendation *TradeRecommendation `json:"recommendation,omitempty"`

	AuditLog []AuditEntry `json:"audit_log,omitempty"`
}

// ExternalDataBundle is the normalized output of the external data fetch
// stage: snapshots per source, each tagged with its freshness tier.
type ExternalDataBundle struct {
	News    *DataSnapshot `json:"news,omitempty"`
	Polling *DataSnapshot `json:"polling,omitempty"`
	Social  *DataSnapshot `json:"social,omitempty"`
}

// DataSnapshot is one source's fetched payload plus provenance.
type DataSnapshot struct {
	Items           []map[string]any `json:"items"`
	Stale           bool              `json:"stale"`
	FreshnessSeconds int64            `json:"freshness_seconds"`
	FetchedAt       time.Time         `json:"fetched_at"`
}

// StateUpdate is the partial, mergeable result a node function returns.
// Nil fields mean "this node did not touch this part of state". List
// fields use append-with-dedup semantics in Merge; everything else is
// last-non-null-wins.
type StateUpdate struct {
	MBD            *MarketBriefingDocument
	IngestionError *IngestionFailed

	ActiveAgents []string

	ExternalData *ExternalDataBundle

	AgentSignals []AgentSignal
	AgentErrors  []AgentErrorRecord

	FusedSignal *FusedSignal

	BullThesis *Thesis
	BearThesis *Thesis

	DebateRecord *DebateRecord

	Consensus      *Consensus
	ConsensusError *ConsensusFailed

	RiskPhilosophySignals []RiskPhilosophySignal
	AgentPerformance      []AgentPerformanceRecord

	Recommendation *TradeRecommendation

	AuditEntries []AuditEntry
}

// Merge applies a partial update to the state in place, honoring the
// reducers declared in spec §9: scalars are last-non-null-wins, the
// agent_signals/agent_errors/audit_log lists append with dedup keyed by
// agent_name (audit_log is keyed by stage+timestamp, which is unique per
// invocation by construction).
func (s *GraphState) Merge(u StateUpdate) {
	if u.MBD != nil {
		s.MBD = u.MBD
	}
	if u.IngestionError != nil {
		s.IngestionError = u.IngestionError
	}
	if u.ActiveAgents != nil {
		s.ActiveAgents = u.ActiveAgents
	}
	if u.ExternalData != nil {
		s.ExternalData = u.ExternalData
	}
	if u.FusedSignal != nil {
		s.FusedSignal = u.FusedSignal
	}
	if u.BullThesis != nil {
		s.BullThesis = u.BullThesis
	}
	if u.BearThesis != nil {
		s.BearThesis = u.BearThesis
	}
	if u.DebateRecord != nil {
		s.DebateRecord = u.DebateRecord
	}
	if u.Consensus != nil {
		s.Consensus = u.Consensus
	}
	if u.ConsensusError != nil {
		s.ConsensusError = u.ConsensusError
	}
	if u.Recommendation != nil {
		s.Recommendation = u.Recommendation
	}
	if u.RiskPhilosophySignals != nil {
		s.RiskPhilosophySignals = u.RiskPhilosophySignals
	}
	if u.AgentPerformance != nil {
		s.AgentPerformance = u.AgentPerformance
	}

	s.AgentSignals = appendSignalsDedup(s.AgentSignals, u.AgentSignals)
	s.AgentErrors = appendErrorsDedup(s.AgentErrors, u.AgentErrors)
	s.AuditLog = append(s.AuditLog, u.AuditEntries...)
}

// appendSignalsDedup merges new agent signals into the existing set,
// keyed by agent_name. A later write for the same agent replaces the
// earlier one rather than duplicating it — this is the "commute" append
// semantics required by spec §5, not last-writer-wins across the whole
// list (other agents' entries are untouched).
func appendSignalsDedup(existing []AgentSignal, incoming []AgentSignal) []AgentSignal {
	if len(incoming) == 0 {
		return existing
	}
	byName := make(map[string]int, len(existing))
	result := make([]AgentSignal, len(existing))
	copy(result, existing)
	for i, s := range result {
		byName[s.AgentName] = i
	}
	for _, s := range incoming {
		if idx, ok := byName[s.AgentName]; ok {
			result[idx] = s
			continue
		}
		byName[s.AgentName] = len(result)
		result = append(result, s)
	}
	return result
}

func appendErrorsDedup(existing []AgentErrorRecord, incoming []AgentErrorRecord) []AgentErrorRecord {
	if len(incoming) == 0 {
		return existing
	}
	byName := make(map[string]int, len(existing))
	result := make([]AgentErrorRecord, len(existing))
	copy(result, existing)
	for i, e := range result {
		byName[e.AgentName] = i
	}
	for _, e := range incoming {
		if idx, ok := byName[e.AgentName]; ok {
			result[idx] = e
			continue
		}
		byName[e.AgentName] = len(result)
		result = append(result, e)
	}
	return result
}

// NewGraphState starts a fresh analysis thread keyed by condition_id.
func NewGraphState(conditionID string, startedAt time.Time) *GraphState {
	return &GraphState{
		RunID:       uuid.New(),
		ConditionID: conditionID,
		StartedAt:   startedAt,
	}
}
