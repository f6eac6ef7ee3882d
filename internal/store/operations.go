package store

import (
	"context"
	"database/sql"
	"time"
)

// OperationRun is the journal entry for one orchestrated operation. It is
// written outside the operation's transaction so aborted runs stay visible.
type OperationRun struct {
	ID           int64          `json:"id"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   sql.NullTime   `json:"-"`
	Operation    string         `json:"operation"`
	EntityID     sql.NullString `json:"-"`
	Success      bool           `json:"success"`
	ErrorMessage sql.NullString `json:"-"`
}

// StartOperationRun creates a new run record and returns it.
func (s *Store) StartOperationRun(ctx context.Context, operation, entityID string) (*OperationRun, error) {
	run := &OperationRun{
		StartedAt: time.Now().UTC(),
		Operation: operation,
	}
	if entityID != "" {
		run.EntityID = sql.NullString{String: entityID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO operation_runs (started_at, operation, entity_id, success)
		VALUES (?, ?, ?, FALSE)
	`, toMillis(run.StartedAt), run.Operation, run.EntityID)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteOperationRun records the outcome of run. opErr == nil marks success.
func (s *Store) CompleteOperationRun(ctx context.Context, run *OperationRun, opErr error) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	run.Success = opErr == nil
	if opErr != nil {
		run.ErrorMessage = sql.NullString{String: opErr.Error(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE operation_runs SET
			finished_at = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, toMillis(run.FinishedAt.Time), run.Success, run.ErrorMessage, run.ID)
	return err
}

// OperationHealthSummary counts runs per operation.
type OperationHealthSummary struct {
	Operation   string `json:"operation"`
	TotalRuns   int    `json:"totalRuns"`
	SuccessRuns int    `json:"successRuns"`
	FailedRuns  int    `json:"failedRuns"`
}

// GetOperationHealth summarises runs started within the last window.
func (s *Store) GetOperationHealth(ctx context.Context, window time.Duration) ([]OperationHealthSummary, error) {
	since := time.Now().Add(-window)
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			operation,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs
		FROM operation_runs
		WHERE started_at >= ?
		GROUP BY operation
		ORDER BY operation
	`, toMillis(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]OperationHealthSummary, 0)
	for rows.Next() {
		var h OperationHealthSummary
		if err := rows.Scan(&h.Operation, &h.TotalRuns, &h.SuccessRuns, &h.FailedRuns); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// GetRecentOperationErrors returns the most recent failed runs.
func (s *Store) GetRecentOperationErrors(ctx context.Context, limit int) ([]OperationRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, operation, entity_id, success, error_message
		FROM operation_runs
		WHERE success = FALSE AND finished_at IS NOT NULL
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []OperationRun
	for rows.Next() {
		var (
			r          OperationRun
			startedAt  int64
			finishedAt sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &startedAt, &finishedAt, &r.Operation, &r.EntityID,
			&r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		r.StartedAt = fromMillis(startedAt)
		if finishedAt.Valid {
			r.FinishedAt = sql.NullTime{Time: fromMillis(finishedAt.Int64), Valid: true}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
