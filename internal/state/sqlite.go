package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NSvoltage/secureflow/pkg/types"
)

// SQLiteStore persists execution state in a single-file database.
// WAL mode keeps reads concurrent with the single writer. Transitions are
// append-only: one row per (execution id, version).
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS execution_transitions (
	execution_id TEXT NOT NULL,
	version      INTEGER NOT NULL,
	status       TEXT NOT NULL,
	state_json   TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (execution_id, version)
);

CREATE INDEX IF NOT EXISTS idx_transitions_status
	ON execution_transitions (status);

CREATE TABLE IF NOT EXISTS execution_leases (
	execution_id TEXT PRIMARY KEY,
	holder       TEXT NOT NULL,
	expires_at   TIMESTAMP NOT NULL
);
`

// NewSQLiteStore opens (or creates) the state database at path. Pass
// ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configuring state database: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating state database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, state *types.ExecutionState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var latest sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM execution_transitions WHERE execution_id = ?`,
		state.ID).Scan(&latest)
	if err != nil {
		return fmt.Errorf("reading latest version: %w", err)
	}

	if state.Version != int(latest.Int64) {
		return &StateConflictError{ExecutionID: state.ID, StaleVersion: state.Version}
	}
	state.Version = int(latest.Int64) + 1
	state.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding execution state: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO execution_transitions (execution_id, version, status, state_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		state.ID, state.Version, string(state.Status), string(payload), state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("appending transition: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Load(ctx context.Context, executionID string) (*types.ExecutionState, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM execution_transitions
		 WHERE execution_id = ? ORDER BY version DESC LIMIT 1`,
		executionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading execution state: %w", err)
	}
	return decodeState(payload)
}

func (s *SQLiteStore) History(ctx context.Context, executionID string) ([]*types.ExecutionState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state_json FROM execution_transitions
		 WHERE execution_id = ? ORDER BY version ASC`,
		executionID)
	if err != nil {
		return nil, fmt.Errorf("loading execution history: %w", err)
	}
	defer rows.Close()

	var out []*types.ExecutionState
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		state, err := decodeState(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*types.ExecutionState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.state_json
		 FROM execution_transitions t
		 JOIN (
			SELECT execution_id, MAX(version) AS version
			FROM execution_transitions GROUP BY execution_id
		 ) latest
		 ON t.execution_id = latest.execution_id AND t.version = latest.version`)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	var out []*types.ExecutionState
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		state, err := decodeState(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AcquireLease(ctx context.Context, executionID, holder string, ttl time.Duration) (*types.Lease, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning lease transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	var currentHolder string
	var expires time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT holder, expires_at FROM execution_leases WHERE execution_id = ?`,
		executionID).Scan(&currentHolder, &expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No lease on record.
	case err != nil:
		return nil, fmt.Errorf("reading lease: %w", err)
	default:
		if now.Before(expires) && currentHolder != holder {
			return nil, &StateConflictError{ExecutionID: executionID, Holder: currentHolder}
		}
	}

	lease := &types.Lease{
		ExecutionID: executionID,
		Holder:      holder,
		Expires:     now.Add(ttl),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO execution_leases (execution_id, holder, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (execution_id) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at`,
		lease.ExecutionID, lease.Holder, lease.Expires)
	if err != nil {
		return nil, fmt.Errorf("writing lease: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing lease: %w", err)
	}
	return lease, nil
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, executionID, holder string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM execution_leases WHERE execution_id = ? AND holder = ?`,
		executionID, holder)
	if err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeState(payload string) (*types.ExecutionState, error) {
	var state types.ExecutionState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("decoding execution state: %w", err)
	}
	return &state, nil
}
