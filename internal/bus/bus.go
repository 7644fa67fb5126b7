// Package bus publishes node-completion and audit events onto NATS for
// the out-of-scope scheduler/CLI collaborators (spec §6) to subscribe
// to. It is grounded on internal/orchestrator.MessageBus's publish side,
// trimmed to the one-way notification shape the engine actually needs:
// no request-reply, no per-agent subscriptions, since nothing in this
// repo consumes these events back.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// EventType names the kind of lifecycle event being published.
type EventType string

const (
	EventRunStarted    EventType = "run.started"
	EventRunCompleted  EventType = "run.completed"
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"
)

// Event is the payload published for every engine lifecycle event.
type Event struct {
	ID          uuid.UUID              `json:"id"`
	Type        EventType              `json:"type"`
	ConditionID string                 `json:"condition_id"`
	ThreadID    string                 `json:"thread_id"`
	Node        string                 `json:"node,omitempty"`
	Success     bool                   `json:"success"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Config configures the publisher's NATS connection and subject
// namespace.
type Config struct {
	NATSURL string
	Prefix  string // subject prefix, default "analysis."
}

// DefaultConfig returns sane defaults for a local NATS instance.
func DefaultConfig() Config {
	return Config{NATSURL: "nats://localhost:4222", Prefix: "analysis."}
}

// Publisher publishes engine lifecycle events onto NATS. A nil
// *Publisher is valid and Publish becomes a no-op, so wiring a bus is
// optional for callers that don't run a NATS instance.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// NewPublisher connects to NATS and returns a Publisher. Reconnection is
// handled by the underlying client with infinite retries, matching the
// teacher's message bus.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "analysis."
	}

	nc, err := nats.Connect(
		cfg.NATSURL,
		nats.Name("marketintel-engine"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("bus: NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("bus: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect to NATS: %w", err)
	}

	log.Info().Str("nats_url", cfg.NATSURL).Str("prefix", cfg.Prefix).Msg("bus publisher initialized")

	return &Publisher{nc: nc, prefix: cfg.Prefix}, nil
}

// Publish sends an event to "{prefix}{type}". A nil Publisher or an
// event with a zero ID/Timestamp is handled gracefully: the former is a
// no-op, the latter gets ID/Timestamp filled in before marshaling.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if p == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("bus: marshal event: %w", err)
	}

	subject := p.prefix + string(event.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("bus: publish: %w", err)
	}

	log.Debug().
		Str("event_id", event.ID.String()).
		Str("subject", subject).
		Str("condition_id", event.ConditionID).
		Str("node", event.Node).
		Bool("success", event.Success).
		Msg("bus: published event")

	return nil
}

// PublishNodeCompletion is a convenience wrapper the engine calls after
// every node finishes, mirroring audit.Logger.LogNodeCompletion's shape
// but onto the wire instead of into Postgres.
func (p *Publisher) PublishNodeCompletion(ctx context.Context, threadID, conditionID, node string, success bool) error {
	eventType := EventNodeCompleted
	if !success {
		eventType = EventNodeFailed
	}
	return p.Publish(ctx, Event{
		Type:        eventType,
		ConditionID: conditionID,
		ThreadID:    threadID,
		Node:        node,
		Success:     success,
	})
}

// Close drains and closes the NATS connection. A nil Publisher is a
// no-op.
func (p *Publisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	p.nc.Close()
	log.Info().Msg("bus publisher closed")
	return nil
}
