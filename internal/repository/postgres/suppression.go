// Package postgres implements the persistence contracts against PostgreSQL
// using database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, orgID, identity string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppressions WHERE organization_id = $1 AND identity = $2)`,
		orgID, identity,
	).Scan(&exists)
	return exists, err
}

func (r *SuppressionRepo) Suppress(ctx context.Context, s *domain.SuppressionEntry) error {
	// Existing entries win: the first recorded reason is the audit trail.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (id, organization_id, identity, channel, reason, source, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (organization_id, identity) DO NOTHING
	`, s.ID, s.OrganizationID, s.Identity, s.Channel, s.Reason, s.Source)
	if err != nil {
		return fmt.Errorf("suppress: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, orgID, identity string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppressions WHERE organization_id = $1 AND identity = $2`,
		orgID, identity,
	)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context, orgID string, f suppression.ListFilter) ([]domain.SuppressionEntry, int, error) {
	where := `WHERE organization_id = $1`
	args := []interface{}{orgID}
	if f.Reason != "" {
		args = append(args, f.Reason)
		where += fmt.Sprintf(` AND reason = $%d`, len(args))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		where += fmt.Sprintf(` AND source = $%d`, len(args))
	}
	if f.Channel != "" {
		args = append(args, f.Channel)
		where += fmt.Sprintf(` AND channel = $%d`, len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(` AND identity LIKE $%d`, len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppressions `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, organization_id, identity, channel, reason, source, added_at
		FROM suppressions %s
		ORDER BY added_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.SuppressionEntry
	for rows.Next() {
		var s domain.SuppressionEntry
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.Identity, &s.Channel, &s.Reason, &s.Source, &s.AddedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *SuppressionRepo) Count(ctx context.Context, orgID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppressions WHERE organization_id = $1`, orgID,
	).Scan(&n)
	return n, err
}
