package scoring

import (
	"context"
	"fmt"

	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/pkg/logger"
)

// ProspectStore is the subset of prospect persistence the scorer needs.
type ProspectStore interface {
	Get(ctx context.Context, orgID, id string) (*domain.Prospect, error)
	UpdateScore(ctx context.Context, orgID, id string, score int, category domain.ScoreCategory) error
}

// InteractionStore provides read access to a prospect's interaction history.
type InteractionStore interface {
	ListByProspect(ctx context.Context, orgID, prospectID string) ([]domain.Interaction, error)
}

// Service recomputes and persists prospect scores. It runs asynchronously
// off the interaction consumer, never inside the dispatch path.
type Service struct {
	engine       *Engine
	prospects    ProspectStore
	interactions InteractionStore
}

// NewService creates a scoring service.
func NewService(engine *Engine, prospects ProspectStore, interactions InteractionStore) *Service {
	return &Service{engine: engine, prospects: prospects, interactions: interactions}
}

// Recompute derives a fresh breakdown for the prospect from its current
// fields and full interaction history, persists the total and category, and
// returns the breakdown.
func (s *Service) Recompute(ctx context.Context, orgID, prospectID string) (domain.ScoreBreakdown, error) {
	p, err := s.prospects.Get(ctx, orgID, prospectID)
	if err != nil {
		return domain.ScoreBreakdown{}, fmt.Errorf("load prospect: %w", err)
	}

	history, err := s.interactions.ListByProspect(ctx, orgID, prospectID)
	if err != nil {
		return domain.ScoreBreakdown{}, fmt.Errorf("load interactions: %w", err)
	}

	breakdown := s.engine.Compute(p, history)
	total := breakdown.Total()
	category := breakdown.Category()

	if err := s.prospects.UpdateScore(ctx, orgID, prospectID, total, category); err != nil {
		return breakdown, fmt.Errorf("persist score: %w", err)
	}

	logger.Debug("score recomputed", "prospect_id", prospectID, "score", total, "category", category)
	return breakdown, nil
}

// Breakdown computes the current dimension breakdown without persisting
// anything. Read path for the prospect state view.
func (s *Service) Breakdown(ctx context.Context, orgID, prospectID string) (domain.ScoreBreakdown, error) {
	p, err := s.prospects.Get(ctx, orgID, prospectID)
	if err != nil {
		return domain.ScoreBreakdown{}, fmt.Errorf("load prospect: %w", err)
	}
	history, err := s.interactions.ListByProspect(ctx, orgID, prospectID)
	if err != nil {
		return domain.ScoreBreakdown{}, fmt.Errorf("load interactions: %w", err)
	}
	return s.engine.Compute(p, history), nil
}
