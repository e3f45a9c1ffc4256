package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/leadpulse/outreach/internal/dispatch"
	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/ingest"
)

// Unique constraints backing the two idempotency guarantees.
const (
	constraintStepSent      = "ux_interactions_step_sent"
	constraintProviderEvent = "ux_interactions_provider_event"
)

// InteractionRepo persists the append-only interaction log.
type InteractionRepo struct{ db *sql.DB }

// NewInteractionRepo creates a Postgres-backed interaction repository.
func NewInteractionRepo(db *sql.DB) *InteractionRepo { return &InteractionRepo{db: db} }

// Insert appends one interaction. A unique partial index on
// (enrollment_id, step_index) for type='sent' enforces at-most-once
// delivery accounting; a unique index on provider_event_id enforces
// webhook idempotency. Violations map onto the callers' sentinels.
func (r *InteractionRepo) Insert(ctx context.Context, ix *domain.Interaction) error {
	payload, err := json.Marshal(ix.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO interactions (id, organization_id, prospect_id, enrollment_id, step_index,
			channel, direction, type, occurred_at, payload, provider_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, ix.ID, ix.OrganizationID, ix.ProspectID, ix.EnrollmentID, ix.StepIndex,
		ix.Channel, ix.Direction, ix.Type, ix.OccurredAt, payload, ix.ProviderEventID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case constraintStepSent:
				return dispatch.ErrDuplicateSend
			case constraintProviderEvent:
				return ingest.ErrDuplicateEvent
			}
		}
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// RecordInteraction satisfies the dispatch store contract.
func (r *InteractionRepo) RecordInteraction(ctx context.Context, ix *domain.Interaction) error {
	return r.Insert(ctx, ix)
}

// InsertIdempotent satisfies the ingest store contract.
func (r *InteractionRepo) InsertIdempotent(ctx context.Context, ix *domain.Interaction) error {
	return r.Insert(ctx, ix)
}

// SentStep returns the sent record for (enrollment, step), or nil when the
// step has never been delivered. Dispatch workers consult it before the
// provider call so a lease reclaim adopts an earlier delivery.
func (r *InteractionRepo) SentStep(ctx context.Context, orgID, enrollmentID string, stepIndex int) (*domain.Interaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, prospect_id, enrollment_id, step_index,
			channel, direction, type, occurred_at, payload, provider_event_id
		FROM interactions
		WHERE organization_id = $1 AND enrollment_id = $2 AND step_index = $3 AND type = 'sent'
	`, orgID, enrollmentID, stepIndex)
	ix, err := scanInteraction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup sent step: %w", err)
	}
	return ix, nil
}

// ListByProspect returns a prospect's full history, oldest first, the
// order the scoring engine consumes it in.
func (r *InteractionRepo) ListByProspect(ctx context.Context, orgID, prospectID string) ([]domain.Interaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, prospect_id, enrollment_id, step_index,
			channel, direction, type, occurred_at, payload, provider_event_id
		FROM interactions
		WHERE organization_id = $1 AND prospect_id = $2
		ORDER BY occurred_at ASC
	`, orgID, prospectID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Interaction
	for rows.Next() {
		ix, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, *ix)
	}
	return out, rows.Err()
}

// ListByEnrollment returns an enrollment's interactions, oldest first.
func (r *InteractionRepo) ListByEnrollment(ctx context.Context, orgID, enrollmentID string) ([]domain.Interaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, prospect_id, enrollment_id, step_index,
			channel, direction, type, occurred_at, payload, provider_event_id
		FROM interactions
		WHERE organization_id = $1 AND enrollment_id = $2
		ORDER BY occurred_at ASC
	`, orgID, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Interaction
	for rows.Next() {
		ix, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, *ix)
	}
	return out, rows.Err()
}

func scanInteraction(row rowScanner) (*domain.Interaction, error) {
	var ix domain.Interaction
	var enrollmentID, providerEventID sql.NullString
	var stepIndex sql.NullInt64
	var payload []byte

	err := row.Scan(&ix.ID, &ix.OrganizationID, &ix.ProspectID, &enrollmentID, &stepIndex,
		&ix.Channel, &ix.Direction, &ix.Type, &ix.OccurredAt, &payload, &providerEventID)
	if err != nil {
		return nil, err
	}

	if enrollmentID.Valid {
		ix.EnrollmentID = &enrollmentID.String
	}
	if stepIndex.Valid {
		idx := int(stepIndex.Int64)
		ix.StepIndex = &idx
	}
	if providerEventID.Valid {
		ix.ProviderEventID = &providerEventID.String
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &ix.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return &ix, nil
}
