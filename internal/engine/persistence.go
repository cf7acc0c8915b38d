package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ExecutionRecord is the persisted shape of a terminal execution. History is
// a log of what ran, not resumable state.
type ExecutionRecord struct {
	ID         string
	WorkflowID string
	Status     string
	StartedAt  time.Time
	EndedAt    *time.Time
	FinalState map[string]interface{}
	Error      *ExecutionError
	EventCount int
}

// RecordFromExecution converts an execution into its history record.
func RecordFromExecution(exec *Execution) *ExecutionRecord {
	view := exec.View()
	return &ExecutionRecord{
		ID:         view.ID,
		WorkflowID: view.WorkflowID,
		Status:     string(view.Status),
		StartedAt:  view.StartedAt,
		EndedAt:    view.EndedAt,
		FinalState: view.FinalState,
		Error:      view.Error,
		EventCount: len(view.Events),
	}
}

// ExecutionRepository persists execution records.
type ExecutionRepository interface {
	Save(ctx context.Context, record *ExecutionRecord) error
	Get(ctx context.Context, id string) (*ExecutionRecord, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*ExecutionRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// InMemoryRepository keeps records in process memory.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*ExecutionRecord
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]*ExecutionRecord)}
}

// Save stores a record.
func (r *InMemoryRepository) Save(ctx context.Context, record *ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = record
	return nil
}

// Get returns a record by execution id.
func (r *InMemoryRepository) Get(ctx context.Context, id string) (*ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return record, nil
}

// ListByWorkflow returns the most recent records for a workflow.
func (r *InMemoryRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ExecutionRecord
	for _, record := range r.records {
		if workflowID == "" || record.WorkflowID == workflowID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteOlderThan drops records that ended before the cutoff.
func (r *InMemoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, record := range r.records {
		if record.EndedAt != nil && record.EndedAt.Before(cutoff) {
			delete(r.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// PostgresRepository persists records in Postgres. The embedding is expected
// to import lib/pq for the driver.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates the repository and its table if missing.
func NewPostgresRepository(db *sql.DB) (*PostgresRepository, error) {
	repo := &PostgresRepository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *PostgresRepository) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS executions (
			id          TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status      TEXT NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL,
			ended_at    TIMESTAMPTZ,
			final_state JSONB,
			error       JSONB,
			event_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_executions_workflow
			ON executions (workflow_id, started_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate executions table: %w", err)
	}
	return nil
}

// Save stores or replaces a record.
func (r *PostgresRepository) Save(ctx context.Context, record *ExecutionRecord) error {
	finalState, err := json.Marshal(record.FinalState)
	if err != nil {
		return fmt.Errorf("failed to serialize final state: %w", err)
	}
	var errJSON []byte
	if record.Error != nil {
		errJSON, err = json.Marshal(record.Error)
		if err != nil {
			return fmt.Errorf("failed to serialize error: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, status, started_at, ended_at, final_state, error, event_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at,
			final_state = EXCLUDED.final_state,
			error = EXCLUDED.error,
			event_count = EXCLUDED.event_count
	`, record.ID, record.WorkflowID, record.Status, record.StartedAt, record.EndedAt,
		finalState, nullableBytes(errJSON), record.EventCount)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", record.ID, err)
	}
	return nil
}

// Get returns a record by execution id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*ExecutionRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, status, started_at, ended_at, final_state, error, event_count
		FROM executions WHERE id = $1
	`, id)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return record, err
}

// ListByWorkflow returns the most recent records for a workflow.
func (r *PostgresRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, status, started_at, ended_at, final_state, error, event_count
		FROM executions
		WHERE ($1 = '' OR workflow_id = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []*ExecutionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// DeleteOlderThan drops records that ended before the cutoff.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM executions WHERE ended_at IS NOT NULL AND ended_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune executions: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*ExecutionRecord, error) {
	var record ExecutionRecord
	var endedAt sql.NullTime
	var finalState, errJSON []byte

	if err := row.Scan(&record.ID, &record.WorkflowID, &record.Status, &record.StartedAt,
		&endedAt, &finalState, &errJSON, &record.EventCount); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		record.EndedAt = &endedAt.Time
	}
	if len(finalState) > 0 {
		if err := json.Unmarshal(finalState, &record.FinalState); err != nil {
			return nil, fmt.Errorf("failed to decode final state for %s: %w", record.ID, err)
		}
	}
	if len(errJSON) > 0 {
		record.Error = &ExecutionError{}
		if err := json.Unmarshal(errJSON, record.Error); err != nil {
			return nil, fmt.Errorf("failed to decode error for %s: %w", record.ID, err)
		}
	}
	return &record, nil
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
