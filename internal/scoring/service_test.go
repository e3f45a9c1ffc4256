package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadpulse/outreach/internal/domain"
)

type fakeProspects struct {
	prospect *domain.Prospect
	score    int
	category domain.ScoreCategory
}

func (f *fakeProspects) Get(_ context.Context, _, _ string) (*domain.Prospect, error) {
	return f.prospect, nil
}

func (f *fakeProspects) UpdateScore(_ context.Context, _, _ string, score int, category domain.ScoreCategory) error {
	f.score = score
	f.category = category
	return nil
}

type fakeInteractions struct {
	history []domain.Interaction
}

func (f *fakeInteractions) ListByProspect(_ context.Context, _, _ string) ([]domain.Interaction, error) {
	return f.history, nil
}

func TestRecompute_PersistsScoreAndCategory(t *testing.T) {
	prospects := &fakeProspects{prospect: &domain.Prospect{
		ID: "p-1", OrganizationID: "org-1",
		FirstName: "Jane", LastName: "Doe", Company: "Acme", Title: "VP",
		CompanySize: 300,
	}}
	interactions := &fakeInteractions{history: []domain.Interaction{
		{Type: domain.InteractionReplied, Direction: domain.DirectionIn, OccurredAt: testNow.Add(-time.Hour)},
	}}

	svc := NewService(fixedEngine(), prospects, interactions)
	b, err := svc.Recompute(context.Background(), "org-1", "p-1")
	require.NoError(t, err)

	assert.Equal(t, b.Total(), prospects.score)
	assert.Equal(t, b.Category(), prospects.category)
	assert.GreaterOrEqual(t, prospects.score, 0)
	assert.LessOrEqual(t, prospects.score, 100)
}
