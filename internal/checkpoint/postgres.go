package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// pgxIface is the subset of *pgxpool.Pool this store needs, narrowed so
// tests can substitute pgxmock's pool mock without a live database.
type pgxIface interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the durable checkpoint store. Each Put is an
// append-only insert; Get/List read back rows for a thread ordered by
// recency. This mirrors the teacher's orchestrator-state pattern of
// locking the current row with SELECT ... FOR UPDATE inside a
// transaction before deciding whether a write may proceed — generalized
// here from "one current row per orchestrator" to "one append-only
// history per thread_id", since checkpoints are a log, not a mutable
// singleton: every node's snapshot is kept, not just the latest.
type PostgresStore struct {
	pool pgxIface
}

// NewPostgresStore wraps an existing pool. The caller owns pool
// lifecycle (creation and Close).
func NewPostgresStore(pool pgxIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the checkpoints table if it does not already
// exist. Called once at startup; safe to call repeatedly.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id               BIGSERIAL PRIMARY KEY,
			thread_id        TEXT NOT NULL,
			node_name        TEXT NOT NULL,
			schema_version   INT NOT NULL,
			state_bytes      JSONB NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_thread_id_created_at
			ON checkpoints (thread_id, created_at DESC);
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure checkpoint schema: %w", err)
	}
	return nil
}

// Put locks the thread's most recent row (if any) with SELECT ... FOR
// UPDATE to serialize concurrent writers for the same thread_id, then
// appends the new snapshot. Checkpoints across different thread_ids
// never contend with each other.
func (s *PostgresStore) Put(ctx context.Context, snapshot Snapshot) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Warn().Err(rbErr).Msg("checkpoint tx rollback failed")
		}
	}()

	var lockedID int64
	lockErr := tx.QueryRow(ctx, `
		SELECT id FROM checkpoints
		WHERE thread_id = $1
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, snapshot.ThreadID).Scan(&lockedID)
	if lockErr != nil && !errors.Is(lockErr, pgx.ErrNoRows) {
		return fmt.Errorf("lock latest checkpoint row: %w", lockErr)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO checkpoints (thread_id, node_name, schema_version, state_bytes)
		VALUES ($1, $2, $3, $4)
	`, snapshot.ThreadID, snapshot.NodeName, snapshot.SchemaVersion, []byte(snapshot.StateBytes)); err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit checkpoint tx: %w", err)
	}
	return nil
}

// Get returns the latest snapshot for a thread, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, threadID string) (*Snapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT thread_id, node_name, schema_version, state_bytes, created_at
		FROM checkpoints
		WHERE thread_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, threadID)

	var snap Snapshot
	var raw []byte
	if err := row.Scan(&snap.ThreadID, &snap.NodeName, &snap.SchemaVersion, &raw, &snap.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get latest checkpoint: %w", err)
	}
	snap.StateBytes = json.RawMessage(raw)
	return &snap, nil
}

// List returns every snapshot recorded for a thread, oldest first.
func (s *PostgresStore) List(ctx context.Context, threadID string) ([]Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT thread_id, node_name, schema_version, state_bytes, created_at
		FROM checkpoints
		WHERE thread_id = $1
		ORDER BY created_at ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var raw []byte
		if err := rows.Scan(&snap.ThreadID, &snap.NodeName, &snap.SchemaVersion, &raw, &snap.Timestamp); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		snap.StateBytes = json.RawMessage(raw)
		out = append(out, snap)
	}
	return out, rows.Err()
}
