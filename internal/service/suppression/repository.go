package suppression

import (
	"context"

	"github.com/leadpulse/outreach/internal/domain"
)

// Repository defines the data access contract for the suppression registry.
type Repository interface {
	// IsSuppressed returns true if the identity is on the org's registry.
	IsSuppressed(ctx context.Context, orgID, identity string) (bool, error)

	// Suppress adds an identity to the registry. If it already exists,
	// the existing record is preserved (idempotent).
	Suppress(ctx context.Context, e *domain.SuppressionEntry) error

	// Remove deletes an entry (explicit re-consent flow only).
	// Returns ErrNotFound if it doesn't exist.
	Remove(ctx context.Context, orgID, identity string) error

	// List returns entries matching the filter.
	List(ctx context.Context, orgID string, filter ListFilter) ([]domain.SuppressionEntry, int, error)

	// Count returns the total number of suppressed identities for an org.
	Count(ctx context.Context, orgID string) (int, error)
}

// ListFilter controls pagination and filtering for registry listings.
type ListFilter struct {
	Reason  string
	Source  string
	Channel string
	Search  string
	Limit   int
	Offset  int
}
