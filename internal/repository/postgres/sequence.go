package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/service/enrollment"
)

// SequenceRepo persists sequence definitions and their steps. Step delays
// are stored as whole seconds.
type SequenceRepo struct{ db *sql.DB }

// NewSequenceRepo creates a Postgres-backed sequence repository.
func NewSequenceRepo(db *sql.DB) *SequenceRepo { return &SequenceRepo{db: db} }

func (r *SequenceRepo) Create(ctx context.Context, s *domain.SequenceDefinition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sequences (id, organization_id, name, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, s.ID, s.OrganizationID, s.Name, s.Status)
	if err != nil {
		return fmt.Errorf("insert sequence: %w", err)
	}
	if err := insertSteps(ctx, tx, s); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SequenceRepo) GetByID(ctx context.Context, orgID, id string) (*domain.SequenceDefinition, error) {
	var s domain.SequenceDefinition
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, status, created_at, activated_at
		FROM sequences WHERE organization_id = $1 AND id = $2
	`, orgID, id).Scan(&s.ID, &s.OrganizationID, &s.Name, &s.Status, &s.CreatedAt, &s.ActivatedAt)
	if err == sql.ErrNoRows {
		return nil, enrollment.ErrSequenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sequence: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT step_order, channel, delay_seconds, template_ref, is_breakup_step
		FROM sequence_steps WHERE sequence_id = $1
		ORDER BY step_order ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var step domain.SequenceStep
		var delaySeconds int64
		if err := rows.Scan(&step.Order, &step.Channel, &delaySeconds, &step.TemplateRef, &step.IsBreakupStep); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.DelayFromPrevious = time.Duration(delaySeconds) * time.Second
		s.Steps = append(s.Steps, step)
	}
	return &s, rows.Err()
}

func (r *SequenceRepo) List(ctx context.Context, orgID string) ([]domain.SequenceDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, name, status, created_at, activated_at
		FROM sequences WHERE organization_id = $1
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	defer rows.Close()

	var out []domain.SequenceDefinition
	for rows.Next() {
		var s domain.SequenceDefinition
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.Name, &s.Status, &s.CreatedAt, &s.ActivatedAt); err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReplaceSteps rewrites a draft's step list. The service layer guards the
// draft-only rule; this method just executes.
func (r *SequenceRepo) ReplaceSteps(ctx context.Context, s *domain.SequenceDefinition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sequence_steps WHERE sequence_id = $1`, s.ID); err != nil {
		return fmt.Errorf("clear steps: %w", err)
	}
	if err := insertSteps(ctx, tx, s); err != nil {
		return err
	}
	return tx.Commit()
}

// SetStatus updates the definition's lifecycle status, stamping
// activated_at on the draft -> active transition.
func (r *SequenceRepo) SetStatus(ctx context.Context, orgID, id string, status domain.SequenceStatus) error {
	query := `UPDATE sequences SET status = $3 WHERE organization_id = $1 AND id = $2`
	if status == domain.SequenceActive {
		query = `UPDATE sequences SET status = $3, activated_at = NOW() WHERE organization_id = $1 AND id = $2`
	}
	res, err := r.db.ExecContext(ctx, query, orgID, id, status)
	if err != nil {
		return fmt.Errorf("set sequence status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return enrollment.ErrSequenceNotFound
	}
	return nil
}

func insertSteps(ctx context.Context, tx *sql.Tx, s *domain.SequenceDefinition) error {
	for _, step := range s.Steps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sequence_steps (sequence_id, step_order, channel, delay_seconds, template_ref, is_breakup_step)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, s.ID, step.Order, step.Channel, int64(step.DelayFromPrevious/time.Second), step.TemplateRef, step.IsBreakupStep)
		if err != nil {
			return fmt.Errorf("insert step %d: %w", step.Order, err)
		}
	}
	return nil
}
