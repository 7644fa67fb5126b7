// Package checkpoint implements the durable checkpoint store the engine
// writes to after every node: put(thread_id, node, snapshot),
// get(thread_id) -> latest snapshot, list(thread_id) (spec §6).
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketintel/engine/internal/domain"
)

// SchemaVersion is bumped whenever Snapshot's encoding changes in a way
// that isn't purely additive. Readers must stay backward-compatible with
// older versions (spec §6: "schema evolution must be backward-readable").
const SchemaVersion = 1

// Snapshot is one self-describing, versioned record of graph state after
// a single node ran.
type Snapshot struct {
	ThreadID      string          `json:"thread_id"`
	NodeName      string          `json:"node_name"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion int             `json:"schema_version"`
	StateBytes    json.RawMessage `json:"state_bytes"`
}

// DecodeState unmarshals the snapshot's state bytes into a GraphState.
// Older schema versions decode into the same struct; new optional fields
// default to their zero value, which is always a valid "not yet known"
// state per the monotone-bag reducer rules.
func (s Snapshot) DecodeState() (*domain.GraphState, error) {
	var state domain.GraphState
	if err := json.Unmarshal(s.StateBytes, &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint state: %w", err)
	}
	return &state, nil
}

// EncodeState builds a Snapshot from the current state.
func EncodeState(threadID, nodeName string, state *domain.GraphState, at time.Time) (Snapshot, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode checkpoint state: %w", err)
	}
	return Snapshot{
		ThreadID:      threadID,
		NodeName:      nodeName,
		Timestamp:     at,
		SchemaVersion: SchemaVersion,
		StateBytes:    raw,
	}, nil
}

// Store is the checkpoint store protocol the engine consumes. Writes to
// different thread_ids are independent; within a thread_id, the caller
// is responsible for serializing writes per node (the engine does this
// by construction — nodes run sequentially between checkpoints).
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	Get(ctx context.Context, threadID string) (*Snapshot, error)
	List(ctx context.Context, threadID string) ([]Snapshot, error)
}

// ErrNotFound is returned by Get when a thread has no checkpoints yet.
var ErrNotFound = fmt.Errorf("checkpoint: no snapshot found")
