// Package metrics exposes Prometheus instrumentation for the analysis engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine/node metrics
var (
	NodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketintel_node_duration_ms",
		Help:    "Graph node execution duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"node"})

	NodeInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_node_invocations_total",
		Help: "Total node invocations by node and outcome",
	}, []string{"node", "outcome"})

	AnalysesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketintel_analyses_started_total",
		Help: "Total analysis runs started",
	})

	AnalysesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_analyses_completed_total",
		Help: "Total analysis runs completed by terminal outcome",
	}, []string{"outcome"})
)

// Agent metrics
var (
	ActiveAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketintel_active_agents",
		Help: "Number of agents selected for the current analysis",
	})

	AgentSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_agent_signals_total",
		Help: "Total agent signals produced by agent and direction",
	}, []string{"agent_name", "direction"})

	AgentSignalConfidence = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "marketintel_agent_signal_confidence",
		Help: "Most recent agent signal confidence (0.0 to 1.0)",
	}, []string{"agent_name"})

	AgentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_agent_errors_total",
		Help: "Total per-agent execution failures by kind",
	}, []string{"agent_name", "kind"})

	AgentProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketintel_agent_processing_duration_ms",
		Help:    "Agent analyze() duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"agent_name"})
)

// LLM provider metrics
var (
	LLMInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_llm_invocations_total",
		Help: "Total LLM adapter invocations by provider and outcome",
	}, []string{"provider", "outcome"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketintel_llm_request_duration_ms",
		Help:    "LLM adapter request duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 20000},
	}, []string{"provider"})

	LLMRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_llm_retries_total",
		Help: "Total LLM request retries by provider",
	}, []string{"provider"})
)

// External data metrics
var (
	ExternalDataFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_external_data_fetches_total",
		Help: "Total external data fetches by source and result",
	}, []string{"source", "result"})

	ExternalDataCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_external_data_cache_total",
		Help: "Cache reads by source and tier (fresh, stale, miss)",
	}, []string{"source", "tier"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "marketintel_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	RateLimiterRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_rate_limiter_rejections_total",
		Help: "Total requests rejected because the source's daily quota was exhausted",
	}, []string{"endpoint"})
)

// Consensus/recommendation metrics
var (
	ConsensusDisagreement = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketintel_consensus_disagreement_index",
		Help:    "Distribution of disagreement_index across completed analyses",
		Buckets: []float64{0.05, 0.10, 0.15, 0.20, 0.25, 0.30, 0.40, 0.50},
	})

	ConsensusRegime = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_consensus_regime_total",
		Help: "Total analyses by consensus regime",
	}, []string{"regime"})

	RecommendationAction = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_recommendation_action_total",
		Help: "Total recommendations by action",
	}, []string{"action"})
)

// Checkpoint/audit metrics
var (
	CheckpointWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_checkpoint_writes_total",
		Help: "Total checkpoint writes by node and outcome",
	}, []string{"node", "outcome"})

	CheckpointWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketintel_checkpoint_write_latency_ms",
		Help:    "Checkpoint write latency in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	AuditLogOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_audit_log_operations_total",
		Help: "Total audit log operations by event type and status",
	}, []string{"event_type", "status"})

	AuditLogDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketintel_audit_log_duration_ms",
		Help:    "Audit log write duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	})
)

// HTTP instrumentation (reused by the read-only introspection API and the metrics server)
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketintel_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method", "path", "status_code"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status_code"})
)

// RecordAPIRequest records an HTTP request's duration and count.
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// RecordNodeRun records a graph node's duration and terminal outcome.
func RecordNodeRun(node, outcome string, durationMs float64) {
	NodeDuration.WithLabelValues(node).Observe(durationMs)
	NodeInvocations.WithLabelValues(node, outcome).Inc()
}

// RecordAgentSignal records a produced agent signal.
func RecordAgentSignal(agentName, direction string, confidence float64) {
	AgentSignals.WithLabelValues(agentName, direction).Inc()
	AgentSignalConfidence.WithLabelValues(agentName).Set(confidence)
}

// RecordAgentError records a per-agent execution failure.
func RecordAgentError(agentName, kind string) {
	AgentErrors.WithLabelValues(agentName, kind).Inc()
}

// RecordCircuitBreakerState records the current numeric state of a breaker.
func RecordCircuitBreakerState(service string, state int) {
	CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordAuditLog records one audit log write attempt.
func RecordAuditLog(eventType string, success bool, durationMs float64) {
	status := "error"
	if success {
		status = "ok"
	}
	AuditLogOperations.WithLabelValues(eventType, status).Inc()
	AuditLogDuration.Observe(durationMs)
}
