package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/leadpulse/outreach/internal/domain"
)

// ErrProspectNotFound is returned when a prospect id does not exist in the
// organization.
var ErrProspectNotFound = errors.New("prospect not found")

// ProspectRepo persists prospects and their contact identities.
type ProspectRepo struct{ db *sql.DB }

// NewProspectRepo creates a Postgres-backed prospect repository.
func NewProspectRepo(db *sql.DB) *ProspectRepo { return &ProspectRepo{db: db} }

func (r *ProspectRepo) Create(ctx context.Context, p *domain.Prospect) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO prospects (id, organization_id, first_name, last_name, company, title,
			company_size, stage, score, category, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`, p.ID, p.OrganizationID, p.FirstName, p.LastName, p.Company, p.Title,
		p.CompanySize, p.Stage, p.Score, p.Category, pq.Array(p.Tags))
	if err != nil {
		return fmt.Errorf("insert prospect: %w", err)
	}

	for _, ident := range p.Identities {
		if err := upsertIdentity(ctx, tx, p.ID, ident); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ProspectRepo) GetByID(ctx context.Context, orgID, id string) (*domain.Prospect, error) {
	var p domain.Prospect
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, first_name, last_name, company, title,
			company_size, stage, score, category, tags, created_at, updated_at
		FROM prospects WHERE organization_id = $1 AND id = $2
	`, orgID, id).Scan(&p.ID, &p.OrganizationID, &p.FirstName, &p.LastName, &p.Company, &p.Title,
		&p.CompanySize, &p.Stage, &p.Score, &p.Category, pq.Array(&p.Tags), &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrProspectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prospect: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT channel, value, verified, available
		FROM contact_identities WHERE prospect_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get identities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ident domain.ContactIdentity
		if err := rows.Scan(&ident.Channel, &ident.Value, &ident.Verified, &ident.Available); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		p.Identities = append(p.Identities, ident)
	}
	return &p, rows.Err()
}

// Get is an alias satisfying the scoring and ingest store contracts.
func (r *ProspectRepo) Get(ctx context.Context, orgID, id string) (*domain.Prospect, error) {
	return r.GetByID(ctx, orgID, id)
}

func (r *ProspectRepo) Update(ctx context.Context, p *domain.Prospect) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE prospects SET first_name = $3, last_name = $4, company = $5, title = $6,
			company_size = $7, tags = $8, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2
	`, p.OrganizationID, p.ID, p.FirstName, p.LastName, p.Company, p.Title,
		p.CompanySize, pq.Array(p.Tags))
	if err != nil {
		return fmt.Errorf("update prospect: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProspectNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM contact_identities WHERE prospect_id = $1`, p.ID); err != nil {
		return fmt.Errorf("clear identities: %w", err)
	}
	for _, ident := range p.Identities {
		if err := upsertIdentity(ctx, tx, p.ID, ident); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateStage writes only the pipeline stage.
func (r *ProspectRepo) UpdateStage(ctx context.Context, orgID, id string, stage domain.Stage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE prospects SET stage = $3, updated_at = NOW() WHERE organization_id = $1 AND id = $2`,
		orgID, id, stage)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProspectNotFound
	}
	return nil
}

// UpdateScore writes only the score and category.
func (r *ProspectRepo) UpdateScore(ctx context.Context, orgID, id string, score int, category domain.ScoreCategory) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE prospects SET score = $3, category = $4, updated_at = NOW() WHERE organization_id = $1 AND id = $2`,
		orgID, id, score, category)
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProspectNotFound
	}
	return nil
}

// Delete removes a prospect and its identities. Callers must halt the
// prospect's enrollments first; interactions are kept with a dangling
// prospect id for aggregate analytics.
func (r *ProspectRepo) Delete(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM prospects WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete prospect: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProspectNotFound
	}
	return nil
}

func upsertIdentity(ctx context.Context, tx *sql.Tx, prospectID string, ident domain.ContactIdentity) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO contact_identities (prospect_id, channel, value, verified, available)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (prospect_id, channel) DO UPDATE
			SET value = $3, verified = $4, available = $5
	`, prospectID, ident.Channel, ident.Value, ident.Verified, ident.Available)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}
