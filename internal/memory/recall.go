// Package memory provides specialist agents optional recall of prior
// analyses of the same market, adapted from the teacher's
// SemanticMemory: the pgvector similarity-search shape is kept (an
// embedding column, cosine-distance ordering, a connection pool), but
// generalized from arbitrary trading "knowledge" to one narrow record
// type — a past run's consensus outcome for a condition_id — since the
// engine's optional_memory_context is scoped to "has this market been
// analyzed before, and what did we conclude" (spec §4.4/§5), not a
// general lessons-learned store.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"

	"github.com/marketintel/engine/internal/domain"
)

// pgxIface is the subset of *pgxpool.Pool this store needs, narrowed so
// tests can substitute pgxmock's pool mock without a live database —
// the same pattern internal/checkpoint/postgres.go uses.
type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Recall is one prior analysis of a market, retrievable by a future run
// of the same or a similar market as lightweight context.
type Recall struct {
	ID                   uuid.UUID `json:"id"`
	ConditionID          string    `json:"condition_id"`
	Question             string    `json:"question"`
	Embedding            []float32 `json:"embedding"`
	ConsensusProbability float64   `json:"consensus_probability"`
	Regime               string    `json:"regime"`
	Action               string    `json:"action"`
	CoreThesis           string    `json:"core_thesis"`
	CreatedAt            time.Time `json:"created_at"`
}

// Store persists and retrieves Recall records. 1536-dim embeddings
// match the teacher's semantic memory column, sized for a standard
// OpenAI-family embedding model.
type Store struct {
	pool pgxIface
}

// NewStore wraps an existing pool. The caller owns pool lifecycle.
func NewStore(pool pgxIface) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the recall table if it does not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS analysis_recall (
			id                     UUID PRIMARY KEY,
			condition_id           TEXT NOT NULL,
			question               TEXT NOT NULL,
			embedding              VECTOR(1536),
			consensus_probability DOUBLE PRECISION NOT NULL,
			regime                 TEXT NOT NULL,
			action                 TEXT NOT NULL,
			core_thesis            TEXT NOT NULL,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_analysis_recall_condition_id
			ON analysis_recall (condition_id, created_at DESC);
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure recall schema: %w", err)
	}
	return nil
}

// RecordFromRun persists the terminal outcome of one analysis so future
// runs of the same or a similar market can recall it.
func (s *Store) RecordFromRun(ctx context.Context, conditionID, question string, embedding []float32, consensus domain.Consensus, rec domain.TradeRecommendation) error {
	var vec pgvector.Vector
	if embedding != nil {
		vec = pgvector.NewVector(embedding)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO analysis_recall
			(id, condition_id, question, embedding, consensus_probability, regime, action, core_thesis)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.New(), conditionID, question, vec, consensus.ConsensusProbability, string(consensus.Regime), string(rec.Action), rec.Explanation.CoreThesis)
	if err != nil {
		return fmt.Errorf("record analysis recall: %w", err)
	}

	log.Debug().Str("condition_id", conditionID).Msg("recorded analysis recall")
	return nil
}

// RecallForCondition returns the most recent prior analyses of the
// exact same market, newest first. This is the cheap, embedding-free
// path every specialist uses by default.
func (s *Store) RecallForCondition(ctx context.Context, conditionID string, limit int) ([]Recall, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, condition_id, question, consensus_probability, regime, action, core_thesis, created_at
		FROM analysis_recall
		WHERE condition_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, conditionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recall by condition: %w", err)
	}
	defer rows.Close()

	var out []Recall
	for rows.Next() {
		var r Recall
		if err := rows.Scan(&r.ID, &r.ConditionID, &r.Question, &r.ConsensusProbability, &r.Regime, &r.Action, &r.CoreThesis, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recall row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FindSimilar returns prior analyses of other markets whose question
// embedding is closest to the given one, for cross-market pattern
// recall (e.g. "how did similarly-worded election markets resolve").
// Mirrors the teacher's FindSimilar cosine-distance query shape.
func (s *Store) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]Recall, error) {
	if len(embedding) != 1536 {
		return nil, fmt.Errorf("embedding must be 1536 dimensions, got %d", len(embedding))
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx, `
		SELECT id, condition_id, question, consensus_probability, regime, action, core_thesis, created_at
		FROM analysis_recall
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("find similar recall: %w", err)
	}
	defer rows.Close()

	var out []Recall
	for rows.Next() {
		var r Recall
		if err := rows.Scan(&r.ID, &r.ConditionID, &r.Question, &r.ConsensusProbability, &r.Regime, &r.Action, &r.CoreThesis, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recall row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
