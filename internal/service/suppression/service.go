package suppression

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/leadpulse/outreach/internal/domain"
)

// Service implements suppression business logic. It is safe for concurrent
// use. The registry is append-mostly: concurrent readers never block.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Normalize canonicalizes an identity for storage and lookup.
func Normalize(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// IsSuppressed checks whether an identity is blocked from outreach.
func (s *Service) IsSuppressed(ctx context.Context, orgID, identity string) (bool, error) {
	return s.repo.IsSuppressed(ctx, orgID, Normalize(identity))
}

// Suppress adds an identity to the registry. Idempotent — if the identity
// is already suppressed, the existing record is preserved.
func (s *Service) Suppress(ctx context.Context, orgID, identity string, channel domain.Channel, reason domain.SuppressionReason, source domain.SuppressionSource) error {
	identity = Normalize(identity)
	if identity == "" {
		return fmt.Errorf("identity is required")
	}

	entry := &domain.SuppressionEntry{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Identity:       identity,
		Channel:        channel,
		Reason:         reason,
		Source:         source,
	}
	return s.repo.Suppress(ctx, entry)
}

// Remove deletes an entry. Only the explicit re-consent flow calls this.
func (s *Service) Remove(ctx context.Context, orgID, identity string) error {
	identity = Normalize(identity)
	if identity == "" {
		return fmt.Errorf("identity is required")
	}
	return s.repo.Remove(ctx, orgID, identity)
}

// List returns entries matching the given filter.
func (s *Service) List(ctx context.Context, orgID string, filter ListFilter) ([]domain.SuppressionEntry, int, error) {
	return s.repo.List(ctx, orgID, filter)
}

// Count returns the total number of suppressed identities for an organization.
func (s *Service) Count(ctx context.Context, orgID string) (int, error) {
	return s.repo.Count(ctx, orgID)
}

// Stats returns aggregate counts grouped by reason and source.
type Stats struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
	BySource map[string]int `json:"by_source"`
}

// GetStats computes registry statistics for the operator dashboard.
func (s *Service) GetStats(ctx context.Context, orgID string) (*Stats, error) {
	entries, total, err := s.repo.List(ctx, orgID, ListFilter{Limit: 0})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:    total,
		ByReason: make(map[string]int),
		BySource: make(map[string]int),
	}
	for _, e := range entries {
		stats.ByReason[string(e.Reason)]++
		stats.BySource[string(e.Source)]++
	}
	return stats, nil
}
