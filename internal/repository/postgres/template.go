package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/leadpulse/outreach/internal/content"
)

// TemplateRepo persists message templates, keyed by (org, ref).
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

func (r *TemplateRepo) GetByRef(ctx context.Context, orgID, ref string) (*content.Template, error) {
	var t content.Template
	err := r.db.QueryRowContext(ctx, `
		SELECT ref, organization_id, channel, subject, body
		FROM templates WHERE organization_id = $1 AND ref = $2
	`, orgID, ref).Scan(&t.Ref, &t.OrganizationID, &t.Channel, &t.Subject, &t.Body)
	if err == sql.ErrNoRows {
		return nil, content.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

func (r *TemplateRepo) Upsert(ctx context.Context, t *content.Template) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO templates (organization_id, ref, channel, subject, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization_id, ref) DO UPDATE
			SET channel = $3, subject = $4, body = $5
	`, t.OrganizationID, t.Ref, t.Channel, t.Subject, t.Body)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}
