package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leadpulse/outreach/internal/domain"
)

// ErrOrganizationNotFound is returned for unknown organization ids.
var ErrOrganizationNotFound = errors.New("organization not found")

// Organization is the tenant record; the plan gates channel entitlements.
type Organization struct {
	ID   string      `json:"id" db:"id"`
	Name string      `json:"name" db:"name"`
	Plan domain.Plan `json:"plan" db:"plan"`
}

// OrganizationRepo persists tenants.
type OrganizationRepo struct{ db *sql.DB }

// NewOrganizationRepo creates a Postgres-backed organization repository.
func NewOrganizationRepo(db *sql.DB) *OrganizationRepo { return &OrganizationRepo{db: db} }

func (r *OrganizationRepo) GetByID(ctx context.Context, id string) (*Organization, error) {
	var o Organization
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, plan FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.Plan)
	if err == sql.ErrNoRows {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &o, nil
}

// Plan returns just the organization's plan, the dispatch hot path.
func (r *OrganizationRepo) Plan(ctx context.Context, orgID string) (domain.Plan, error) {
	var plan domain.Plan
	err := r.db.QueryRowContext(ctx,
		`SELECT plan FROM organizations WHERE id = $1`, orgID,
	).Scan(&plan)
	if err == sql.ErrNoRows {
		return "", ErrOrganizationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}
