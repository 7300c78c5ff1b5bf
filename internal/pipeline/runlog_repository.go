package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/dragon/internal/contracts"
)

// RunLogRepository persists run logs (data.run_logs)
type RunLogRepository struct {
	pool *pgxpool.Pool
}

// NewRunLogRepository creates a new run log repository
func NewRunLogRepository(pool *pgxpool.Pool) *RunLogRepository {
	return &RunLogRepository{pool: pool}
}

// Start opens a run log row in the running state and returns its id
func (r *RunLogRepository) Start(ctx context.Context, startedAt time.Time) (int64, error) {
	query := `
		INSERT INTO data.run_logs (started_at, status)
		VALUES ($1, $2)
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query, startedAt, contracts.RunRunning).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run log: %w", err)
	}
	return id, nil
}

// Complete closes a run log with its terminal status and counters
func (r *RunLogRepository) Complete(ctx context.Context, id int64, status contracts.RunStatus, message string, tickers, candidates, alerts int, completedAt time.Time) error {
	query := `
		UPDATE data.run_logs
		SET status = $2, message = $3, tickers_processed = $4,
		    candidates_found = $5, alerts_triggered = $6, completed_at = $7
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, status, message, tickers, candidates, alerts, completedAt)
	if err != nil {
		return fmt.Errorf("complete run log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

// ListRecent returns the most recent run logs, newest first
func (r *RunLogRepository) ListRecent(ctx context.Context, limit int) ([]contracts.RunLog, error) {
	query := `
		SELECT id, started_at, completed_at, status, COALESCE(message, ''),
		       tickers_processed, candidates_found, alerts_triggered
		FROM data.run_logs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query run logs: %w", err)
	}
	defer rows.Close()

	var logs []contracts.RunLog
	for rows.Next() {
		var l contracts.RunLog
		if err := rows.Scan(&l.ID, &l.StartedAt, &l.CompletedAt, &l.Status, &l.Message,
			&l.TickersProcessed, &l.CandidatesFound, &l.AlertsTriggered); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// DeleteBefore prunes run logs started before the cutoff. 유지보수 잡 전용.
func (r *RunLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM data.run_logs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete run logs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
