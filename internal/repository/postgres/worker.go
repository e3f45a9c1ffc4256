package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// WorkerRepo tracks dispatch worker liveness for the operator dashboard.
type WorkerRepo struct{ db *sql.DB }

// NewWorkerRepo creates a Postgres-backed worker registry.
func NewWorkerRepo(db *sql.DB) *WorkerRepo { return &WorkerRepo{db: db} }

// Heartbeat upserts the worker's liveness row with its counters.
func (r *WorkerRepo) Heartbeat(ctx context.Context, workerID string, processed, failed int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dispatch_workers (worker_id, last_seen_at, processed, failed)
		VALUES ($1, NOW(), $2, $3)
		ON CONFLICT (worker_id) DO UPDATE
			SET last_seen_at = NOW(), processed = $2, failed = $3
	`, workerID, processed, failed)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// WorkerStatus is one row of the worker registry.
type WorkerStatus struct {
	WorkerID   string    `json:"worker_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Processed  int64     `json:"processed"`
	Failed     int64     `json:"failed"`
}

// ListLive returns workers seen within the staleness window.
func (r *WorkerRepo) ListLive(ctx context.Context, staleAfter time.Duration) ([]WorkerStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT worker_id, last_seen_at, processed, failed
		FROM dispatch_workers
		WHERE last_seen_at > NOW() - $1 * INTERVAL '1 second'
		ORDER BY worker_id
	`, int64(staleAfter/time.Second))
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []WorkerStatus
	for rows.Next() {
		var w WorkerStatus
		if err := rows.Scan(&w.WorkerID, &w.LastSeenAt, &w.Processed, &w.Failed); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Prune deletes rows for workers not seen within the window.
func (r *WorkerRepo) Prune(ctx context.Context, staleAfter time.Duration) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM dispatch_workers
		WHERE last_seen_at <= NOW() - $1 * INTERVAL '1 second'
	`, int64(staleAfter/time.Second))
	if err != nil {
		return 0, fmt.Errorf("prune workers: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
