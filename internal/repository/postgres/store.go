package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/leadpulse/outreach/internal/domain"
)

// Store bundles the per-table repositories behind one *sql.DB so callers
// wire a single dependency instead of seven.
type Store struct {
	Suppressions  *SuppressionRepo
	Prospects     *ProspectRepo
	Sequences     *SequenceRepo
	Enrollments   *EnrollmentRepo
	Interactions  *InteractionRepo
	Organizations *OrganizationRepo
	Templates     *TemplateRepo
	Workers       *WorkerRepo
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		Suppressions:  NewSuppressionRepo(db),
		Prospects:     NewProspectRepo(db),
		Sequences:     NewSequenceRepo(db),
		Enrollments:   NewEnrollmentRepo(db),
		Interactions:  NewInteractionRepo(db),
		Organizations: NewOrganizationRepo(db),
		Templates:     NewTemplateRepo(db),
		Workers:       NewWorkerRepo(db),
	}
}

// DispatchStore adapts the repositories to the flat surface the dispatch
// pool works against.
type DispatchStore struct {
	s *Store
}

func NewDispatchStore(s *Store) *DispatchStore {
	return &DispatchStore{s: s}
}

func (d *DispatchStore) ClaimDue(ctx context.Context, workerID string, limit int, leaseTTL time.Duration) ([]domain.Enrollment, error) {
	return d.s.Enrollments.ClaimDue(ctx, workerID, limit, leaseTTL)
}

func (d *DispatchStore) ReleaseLease(ctx context.Context, enrollmentID, workerID string) error {
	return d.s.Enrollments.ReleaseLease(ctx, enrollmentID, workerID)
}

func (d *DispatchStore) Prospect(ctx context.Context, orgID, id string) (*domain.Prospect, error) {
	return d.s.Prospects.GetByID(ctx, orgID, id)
}

func (d *DispatchStore) Sequence(ctx context.Context, orgID, id string) (*domain.SequenceDefinition, error) {
	return d.s.Sequences.GetByID(ctx, orgID, id)
}

func (d *DispatchStore) Plan(ctx context.Context, orgID string) (domain.Plan, error) {
	return d.s.Organizations.Plan(ctx, orgID)
}

func (d *DispatchStore) UpdateProspectStage(ctx context.Context, orgID, prospectID string, stage domain.Stage) error {
	return d.s.Prospects.UpdateStage(ctx, orgID, prospectID, stage)
}

func (d *DispatchStore) RecordInteraction(ctx context.Context, ix *domain.Interaction) error {
	return d.s.Interactions.RecordInteraction(ctx, ix)
}

func (d *DispatchStore) SentStep(ctx context.Context, orgID, enrollmentID string, stepIndex int) (*domain.Interaction, error) {
	return d.s.Interactions.SentStep(ctx, orgID, enrollmentID, stepIndex)
}

func (d *DispatchStore) Heartbeat(ctx context.Context, workerID string, processed, failed int64) error {
	return d.s.Workers.Heartbeat(ctx, workerID, processed, failed)
}
