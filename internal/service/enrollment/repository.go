package enrollment

import (
	"context"

	"github.com/leadpulse/outreach/internal/domain"
)

// Repository defines the data access contract for enrollments.
type Repository interface {
	// Create persists a new enrollment.
	Create(ctx context.Context, e *domain.Enrollment) error

	// GetByID returns an enrollment scoped to the organization.
	// Returns ErrNotFound if it doesn't exist.
	GetByID(ctx context.Context, orgID, id string) (*domain.Enrollment, error)

	// Update persists enrollment state changes.
	Update(ctx context.Context, e *domain.Enrollment) error

	// UpdateClaimed persists a worker-driven transition only while the
	// enrollment is still active and workerID still holds its lease. It
	// returns ErrClaimLost when a stop, pause or competing lease landed
	// first; the caller must discard its copy instead of writing.
	UpdateClaimed(ctx context.Context, e *domain.Enrollment, workerID string) error

	// ListOpenForProspect returns the prospect's active and paused
	// enrollments across all sequences.
	ListOpenForProspect(ctx context.Context, orgID, prospectID string) ([]domain.Enrollment, error)

	// ListForProspect returns every enrollment for the prospect,
	// terminal rows included.
	ListForProspect(ctx context.Context, orgID, prospectID string) ([]domain.Enrollment, error)

	// HasOpenEnrollment reports whether the prospect already has an active
	// or paused enrollment in the given sequence.
	HasOpenEnrollment(ctx context.Context, orgID, prospectID, sequenceID string) (bool, error)
}

// SequenceStore is the slice of the sequence repository the scheduler needs.
type SequenceStore interface {
	// GetByID returns the sequence definition with its steps loaded.
	GetByID(ctx context.Context, orgID, id string) (*domain.SequenceDefinition, error)
}

// ProspectStore is the slice of the prospect repository the scheduler needs.
type ProspectStore interface {
	GetByID(ctx context.Context, orgID, id string) (*domain.Prospect, error)
}

// SuppressionChecker guards enrollment against never-contact identities.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, orgID, identity string) (bool, error)
}
