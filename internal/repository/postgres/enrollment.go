package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/service/enrollment"
)

const enrollmentColumns = `id, organization_id, prospect_id, sequence_id, status, stop_reason,
	current_step, steps_sent, next_action_at, enrolled_at, paused_at, completed_at,
	leased_by, lease_expires_at`

// EnrollmentRepo implements enrollment.Repository plus the dispatch pool's
// claim query.
type EnrollmentRepo struct{ db *sql.DB }

// NewEnrollmentRepo creates a Postgres-backed enrollment repository.
func NewEnrollmentRepo(db *sql.DB) *EnrollmentRepo { return &EnrollmentRepo{db: db} }

func (r *EnrollmentRepo) Create(ctx context.Context, e *domain.Enrollment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, organization_id, prospect_id, sequence_id, status,
			current_step, steps_sent, next_action_at, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.OrganizationID, e.ProspectID, e.SequenceID, e.Status,
		e.CurrentStep, e.StepsSent, e.NextActionAt, e.EnrolledAt)
	if err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (r *EnrollmentRepo) GetByID(ctx context.Context, orgID, id string) (*domain.Enrollment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE organization_id = $1 AND id = $2`,
		orgID, id)
	e, err := scanEnrollment(row)
	if err == sql.ErrNoRows {
		return nil, enrollment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

func (r *EnrollmentRepo) Update(ctx context.Context, e *domain.Enrollment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollments SET status = $3, stop_reason = $4, current_step = $5, steps_sent = $6,
			next_action_at = $7, paused_at = $8, completed_at = $9, leased_by = $10, lease_expires_at = $11
		WHERE organization_id = $1 AND id = $2
	`, e.OrganizationID, e.ID, e.Status, e.StopReason, e.CurrentStep, e.StepsSent,
		e.NextActionAt, e.PausedAt, e.CompletedAt, e.LeasedBy, e.LeaseExpiresAt)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return enrollment.ErrNotFound
	}
	return nil
}

// UpdateClaimed is the worker's advance/skip write. The status and lease
// predicates make it a compare-and-swap: a cascade stop or operator action
// that landed while the send was in flight leaves zero rows matching, and
// the stale copy is dropped instead of resurrecting the enrollment.
func (r *EnrollmentRepo) UpdateClaimed(ctx context.Context, e *domain.Enrollment, workerID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollments SET status = $3, stop_reason = $4, current_step = $5, steps_sent = $6,
			next_action_at = $7, paused_at = $8, completed_at = $9, leased_by = $10, lease_expires_at = $11
		WHERE organization_id = $1 AND id = $2 AND status = 'active' AND leased_by = $12
	`, e.OrganizationID, e.ID, e.Status, e.StopReason, e.CurrentStep, e.StepsSent,
		e.NextActionAt, e.PausedAt, e.CompletedAt, e.LeasedBy, e.LeaseExpiresAt, workerID)
	if err != nil {
		return fmt.Errorf("update claimed enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return enrollment.ErrClaimLost
	}
	return nil
}

func (r *EnrollmentRepo) ListOpenForProspect(ctx context.Context, orgID, prospectID string) ([]domain.Enrollment, error) {
	return r.list(ctx, `
		SELECT `+enrollmentColumns+` FROM enrollments
		WHERE organization_id = $1 AND prospect_id = $2 AND status IN ('active', 'paused')
		ORDER BY enrolled_at DESC
	`, orgID, prospectID)
}

func (r *EnrollmentRepo) ListForProspect(ctx context.Context, orgID, prospectID string) ([]domain.Enrollment, error) {
	return r.list(ctx, `
		SELECT `+enrollmentColumns+` FROM enrollments
		WHERE organization_id = $1 AND prospect_id = $2
		ORDER BY enrolled_at DESC
	`, orgID, prospectID)
}

func (r *EnrollmentRepo) HasOpenEnrollment(ctx context.Context, orgID, prospectID, sequenceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM enrollments
			WHERE organization_id = $1 AND prospect_id = $2 AND sequence_id = $3
			AND status IN ('active', 'paused'))
	`, orgID, prospectID, sequenceID).Scan(&exists)
	return exists, err
}

// ClaimDue leases up to limit due enrollments for workerID in one atomic
// statement. SKIP LOCKED keeps racing workers from blocking on each
// other's rows; the lease deadline keeps a crashed worker's claim from
// wedging the enrollment forever.
func (r *EnrollmentRepo) ClaimDue(ctx context.Context, workerID string, limit int, leaseTTL time.Duration) ([]domain.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE enrollments SET leased_by = $1, lease_expires_at = NOW() + $2 * INTERVAL '1 second'
		WHERE id IN (
			SELECT id FROM enrollments
			WHERE status = 'active'
				AND next_action_at <= NOW()
				AND (lease_expires_at IS NULL OR lease_expires_at <= NOW())
			ORDER BY next_action_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+enrollmentColumns,
		workerID, int64(leaseTTL/time.Second), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed enrollment: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ReleaseLease clears the lease if workerID still holds it.
func (r *EnrollmentRepo) ReleaseLease(ctx context.Context, enrollmentID, workerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE enrollments SET leased_by = NULL, lease_expires_at = NULL
		WHERE id = $1 AND leased_by = $2
	`, enrollmentID, workerID)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// StopAllOpenForProspect is the bulk path behind GDPR deletes: every open
// enrollment for the prospect is stopped in one statement.
func (r *EnrollmentRepo) StopAllOpenForProspect(ctx context.Context, orgID, prospectID string, reason domain.StopReason) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollments SET status = 'stopped', stop_reason = $3, next_action_at = NULL,
			completed_at = NOW(), leased_by = NULL, lease_expires_at = NULL
		WHERE organization_id = $1 AND prospect_id = $2 AND status IN ('active', 'paused')
	`, orgID, prospectID, reason)
	if err != nil {
		return 0, fmt.Errorf("stop enrollments: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *EnrollmentRepo) list(ctx context.Context, query string, args ...interface{}) ([]domain.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEnrollment(row rowScanner) (*domain.Enrollment, error) {
	var e domain.Enrollment
	var stopReason sql.NullString
	var leasedBy sql.NullString
	var nextActionAt, pausedAt, completedAt, leaseExpiresAt sql.NullTime

	err := row.Scan(&e.ID, &e.OrganizationID, &e.ProspectID, &e.SequenceID, &e.Status, &stopReason,
		&e.CurrentStep, &e.StepsSent, &nextActionAt, &e.EnrolledAt, &pausedAt, &completedAt,
		&leasedBy, &leaseExpiresAt)
	if err != nil {
		return nil, err
	}

	if stopReason.Valid {
		r := domain.StopReason(stopReason.String)
		e.StopReason = &r
	}
	if leasedBy.Valid {
		e.LeasedBy = &leasedBy.String
	}
	if nextActionAt.Valid {
		e.NextActionAt = &nextActionAt.Time
	}
	if pausedAt.Valid {
		e.PausedAt = &pausedAt.Time
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	if leaseExpiresAt.Valid {
		e.LeaseExpiresAt = &leaseExpiresAt.Time
	}
	return &e, nil
}
