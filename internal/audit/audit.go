// Package audit persists a durable, queryable record of engine activity
// separate from the per-run audit_log carried in GraphState: this is the
// operational trail (node completions, agent failures, config changes,
// API access) rather than the analytical one.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/marketintel/engine/internal/metrics"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventTypeRunStarted   EventType = "RUN_STARTED"
	EventTypeRunCompleted EventType = "RUN_COMPLETED"
	EventTypeRunFailed    EventType = "RUN_FAILED"

	EventTypeNodeCompleted EventType = "NODE_COMPLETED"
	EventTypeNodeFailed    EventType = "NODE_FAILED"

	EventTypeAgentStarted EventType = "AGENT_STARTED"
	EventTypeAgentFailed  EventType = "AGENT_FAILED"

	EventTypeConsensusFailed EventType = "CONSENSUS_FAILED"

	EventTypeConfigUpdated EventType = "CONFIG_UPDATED"
	EventTypeConfigViewed  EventType = "CONFIG_VIEWED"

	EventTypeRateLimitExceeded  EventType = "RATE_LIMIT_EXCEEDED"
	EventTypeUnauthorizedAccess EventType = "UNAUTHORIZED_ACCESS"
	EventTypeInvalidInput       EventType = "INVALID_INPUT"

	EventTypeDataExport EventType = "DATA_EXPORT"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Event represents a single audit log event.
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	Severity  Severity               `json:"severity"`
	ThreadID  string                 `json:"thread_id,omitempty"`
	Resource  string                 `json:"resource,omitempty"`
	Action    string                 `json:"action"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error_message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
}

// Logger handles audit logging operations.
type Logger struct {
	db      *pgxpool.Pool
	enabled bool
}

// NewLogger creates a new audit logger. A nil pool disables persistence;
// events still go to the structured logger.
func NewLogger(db *pgxpool.Pool, enabled bool) *Logger {
	return &Logger{db: db, enabled: enabled}
}

// Log records an audit event when the logger is enabled: to the
// structured logger, and to Postgres when a pool is configured. A
// disabled logger records nothing.
func (l *Logger) Log(ctx context.Context, event *Event) error {
	if !l.enabled {
		return nil
	}

	start := time.Now()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logEvent := log.With().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.EventType)).
		Str("severity", string(event.Severity)).
		Str("thread_id", event.ThreadID).
		Str("resource", event.Resource).
		Str("action", event.Action).
		Bool("success", event.Success).
		Logger()

	if event.ErrorMsg != "" {
		logEvent = logEvent.With().Str("error", event.ErrorMsg).Logger()
	}
	if event.Duration > 0 {
		logEvent = logEvent.With().Int64("duration_ms", event.Duration).Logger()
	}

	switch event.Severity {
	case SeverityCritical, SeverityError:
		logEvent.Error().Msg("audit event")
	case SeverityWarning:
		logEvent.Warn().Msg("audit event")
	default:
		logEvent.Info().Msg("audit event")
	}

	if l.db != nil {
		if err := l.persistEvent(ctx, event); err != nil {
			durationMs := float64(time.Since(start).Milliseconds())
			metrics.RecordAuditLog(string(event.EventType), false, durationMs)
			return err
		}
	}

	durationMs := float64(time.Since(start).Milliseconds())
	metrics.RecordAuditLog(string(event.EventType), true, durationMs)
	return nil
}

func (l *Logger) persistEvent(ctx context.Context, event *Event) error {
	const query = `
		INSERT INTO audit_logs (
			id, timestamp, event_type, severity, thread_id,
			resource, action, success, error_message, metadata, duration_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	var metadataJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal audit event metadata")
			metadataJSON = []byte("{}")
		}
	}

	_, err = l.db.Exec(ctx, query,
		event.ID,
		event.Timestamp,
		event.EventType,
		event.Severity,
		event.ThreadID,
		event.Resource,
		event.Action,
		event.Success,
		event.ErrorMsg,
		metadataJSON,
		event.Duration,
	)
	if err != nil {
		log.Error().Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.EventType)).
			Msg("failed to persist audit event")
		return err
	}
	return nil
}

// Query retrieves audit events based on filters.
func (l *Logger) Query(ctx context.Context, filters *QueryFilters) ([]Event, error) {
	if l.db == nil {
		return nil, nil
	}

	query := `
		SELECT
			id, timestamp, event_type, severity, thread_id,
			resource, action, success, error_message, metadata, duration_ms
		FROM audit_logs
		WHERE 1=1
	`
	args := []interface{}{}
	argPos := 1

	if filters.EventType != "" {
		query += addArg("event_type", &argPos)
		args = append(args, filters.EventType)
	}
	if filters.ThreadID != "" {
		query += addArg("thread_id", &argPos)
		args = append(args, filters.ThreadID)
	}
	if !filters.StartTime.IsZero() {
		query += addArgOp("timestamp", ">=", &argPos)
		args = append(args, filters.StartTime)
	}
	if !filters.EndTime.IsZero() {
		query += addArgOp("timestamp", "<=", &argPos)
		args = append(args, filters.EndTime)
	}
	if filters.Success != nil {
		query += addArg("success", &argPos)
		args = append(args, *filters.Success)
	}

	query += ` ORDER BY timestamp DESC`
	if filters.Limit > 0 {
		query += addArgOp("", "LIMIT", &argPos)
		args = append(args, filters.Limit)
	}

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var event Event
		var metadataJSON []byte
		if err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Severity,
			&event.ThreadID, &event.Resource, &event.Action, &event.Success,
			&event.ErrorMsg, &metadataJSON, &event.Duration,
		); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				log.Warn().Err(err).Msg("failed to unmarshal audit event metadata")
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func addArg(col string, pos *int) string {
	clause := " AND " + col + " = $" + itoa(*pos)
	*pos++
	return clause
}

func addArgOp(col, op string, pos *int) string {
	var clause string
	if op == "LIMIT" {
		clause = " LIMIT $" + itoa(*pos)
	} else {
		clause = " AND " + col + " " + op + " $" + itoa(*pos)
	}
	*pos++
	return clause
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return itoa(n/10) + string(rune('0'+n%10))
}

// QueryFilters defines filters for querying audit events.
type QueryFilters struct {
	EventType EventType
	ThreadID  string
	StartTime time.Time
	EndTime   time.Time
	Success   *bool
	Limit     int
}

// LogNodeCompletion logs a graph node's success or failure.
func (l *Logger) LogNodeCompletion(ctx context.Context, threadID, nodeName string, durationMs int64, success bool, errMsg string) error {
	eventType := EventTypeNodeCompleted
	severity := SeverityInfo
	if !success {
		eventType = EventTypeNodeFailed
		severity = SeverityError
	}
	return l.Log(ctx, &Event{
		EventType: eventType,
		Severity:  severity,
		ThreadID:  threadID,
		Resource:  nodeName,
		Action:    "node executed",
		Success:   success,
		ErrorMsg:  errMsg,
		Duration:  durationMs,
	})
}

// LogAgentFailure logs a non-terminal per-agent failure.
func (l *Logger) LogAgentFailure(ctx context.Context, threadID, agentName, errMsg string) error {
	return l.Log(ctx, &Event{
		EventType: EventTypeAgentFailed,
		Severity:  SeverityWarning,
		ThreadID:  threadID,
		Resource:  agentName,
		Action:    "agent execution failed",
		Success:   false,
		ErrorMsg:  errMsg,
	})
}

// LogConsensusFailed logs a CONSENSUS_FAILED terminal outcome.
func (l *Logger) LogConsensusFailed(ctx context.Context, threadID, reason string) error {
	return l.Log(ctx, &Event{
		EventType: EventTypeConsensusFailed,
		Severity:  SeverityWarning,
		ThreadID:  threadID,
		Action:    "consensus failed",
		Success:   false,
		ErrorMsg:  reason,
	})
}

// LogConfigChange logs a configuration change.
func (l *Logger) LogConfigChange(ctx context.Context, configKey string, oldValue, newValue interface{}, success bool, errorMsg string) error {
	metadata := map[string]interface{}{
		"config_key": configKey,
		"old_value":  oldValue,
		"new_value":  newValue,
	}
	severity := SeverityInfo
	if !success {
		severity = SeverityError
	}
	return l.Log(ctx, &Event{
		EventType: EventTypeConfigUpdated,
		Severity:  severity,
		Resource:  configKey,
		Action:    "configuration updated",
		Success:   success,
		ErrorMsg:  errorMsg,
		Metadata:  metadata,
	})
}
