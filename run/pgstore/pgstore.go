// Package pgstore implements a PostgreSQL-backed run.Store using pgx's
// connection pool, so run metadata survives process restarts.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentrt/runtime/run"
)

// Store is a run.Store backed by a single table:
//
//	CREATE TABLE IF NOT EXISTS agent_runs (
//	    run_id     TEXT PRIMARY KEY,
//	    agent_id   TEXT NOT NULL,
//	    session_id TEXT NOT NULL DEFAULT '',
//	    turn_id    TEXT NOT NULL DEFAULT '',
//	    status     TEXT NOT NULL,
//	    phase      TEXT NOT NULL,
//	    started_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL,
//	    labels     JSONB NOT NULL DEFAULT '{}',
//	    metadata   JSONB NOT NULL DEFAULT '{}'
//	);
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pgx pool. Callers own the pool's lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the backing table if it does not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS agent_runs (
    run_id     TEXT PRIMARY KEY,
    agent_id   TEXT NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    turn_id    TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL,
    phase      TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    labels     JSONB NOT NULL DEFAULT '{}',
    metadata   JSONB NOT NULL DEFAULT '{}'
)`)
	if err != nil {
		return fmt.Errorf("pgstore: ensuring schema: %w", err)
	}
	return nil
}

// Upsert writes record, overwriting any existing row for the same RunID
// except its started_at column, which keeps the first value written.
func (s *Store) Upsert(ctx context.Context, record run.Record) error {
	labels, err := json.Marshal(record.Labels)
	if err != nil {
		return fmt.Errorf("pgstore: marshaling labels: %w", err)
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("pgstore: marshaling metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO agent_runs (run_id, agent_id, session_id, turn_id, status, phase, started_at, updated_at, labels, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id) DO UPDATE SET
    agent_id = EXCLUDED.agent_id,
    session_id = EXCLUDED.session_id,
    turn_id = EXCLUDED.turn_id,
    status = EXCLUDED.status,
    phase = EXCLUDED.phase,
    updated_at = EXCLUDED.updated_at,
    labels = EXCLUDED.labels,
    metadata = EXCLUDED.metadata`,
		record.RunID, record.AgentID, record.SessionID, record.TurnID,
		string(record.Status), string(record.Phase), record.StartedAt, record.UpdatedAt,
		labels, metadata,
	)
	if err != nil {
		return fmt.Errorf("pgstore: upserting run %q: %w", record.RunID, err)
	}
	return nil
}

// Load reads the row for runID, returning run.ErrNotFound if absent.
func (s *Store) Load(ctx context.Context, runID string) (run.Record, error) {
	row := s.pool.QueryRow(ctx, `
SELECT run_id, agent_id, session_id, turn_id, status, phase, started_at, updated_at, labels, metadata
FROM agent_runs WHERE run_id = $1`, runID)

	var (
		rec                  run.Record
		status, phase        string
		startedAt, updatedAt time.Time
		labels, metadata     []byte
	)
	err := row.Scan(&rec.RunID, &rec.AgentID, &rec.SessionID, &rec.TurnID, &status, &phase, &startedAt, &updatedAt, &labels, &metadata)
	if err != nil {
		if err == pgx.ErrNoRows {
			return run.Record{}, run.ErrNotFound
		}
		return run.Record{}, fmt.Errorf("pgstore: loading run %q: %w", runID, err)
	}

	rec.Status = run.Status(status)
	rec.Phase = run.Phase(phase)
	rec.StartedAt = startedAt
	rec.UpdatedAt = updatedAt
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &rec.Labels); err != nil {
			return run.Record{}, fmt.Errorf("pgstore: unmarshaling labels for %q: %w", runID, err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return run.Record{}, fmt.Errorf("pgstore: unmarshaling metadata for %q: %w", runID, err)
		}
	}
	return rec, nil
}
