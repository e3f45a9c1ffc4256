package suppression

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/leadpulse/outreach/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu    sync.RWMutex
	store map[string]*domain.SuppressionEntry // keyed by "orgID:identity"
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]*domain.SuppressionEntry)}
}

func (m *mockRepo) key(orgID, identity string) string {
	return orgID + ":" + strings.ToLower(identity)
}

func (m *mockRepo) IsSuppressed(_ context.Context, orgID, identity string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.store[m.key(orgID, identity)]
	return ok, nil
}

func (m *mockRepo) Suppress(_ context.Context, e *domain.SuppressionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(e.OrganizationID, e.Identity)
	if _, exists := m.store[k]; exists {
		return nil
	}
	m.store[k] = e
	return nil
}

func (m *mockRepo) Remove(_ context.Context, orgID, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(orgID, identity)
	if _, ok := m.store[k]; !ok {
		return fmt.Errorf("not found")
	}
	delete(m.store, k)
	return nil
}

func (m *mockRepo) List(_ context.Context, orgID string, f ListFilter) ([]domain.SuppressionEntry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.SuppressionEntry
	for _, e := range m.store {
		if e.OrganizationID != orgID {
			continue
		}
		if f.Reason != "" && string(e.Reason) != f.Reason {
			continue
		}
		result = append(result, *e)
	}
	return result, len(result), nil
}

func (m *mockRepo) Count(_ context.Context, orgID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.store {
		if e.OrganizationID == orgID {
			count++
		}
	}
	return count, nil
}

const testOrgID = "org-001"

func TestSuppress_AddsIdentityToRegistry(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	err := svc.Suppress(ctx, testOrgID, "BOUNCE@example.com",
		domain.ChannelEmail, domain.ReasonHardBounce, domain.SourceDispatch)
	if err != nil {
		t.Fatalf("Suppress: %v", err)
	}

	ok, err := svc.IsSuppressed(ctx, testOrgID, "bounce@example.com")
	if err != nil {
		t.Fatalf("IsSuppressed: %v", err)
	}
	if !ok {
		t.Error("expected identity to be suppressed after Suppress()")
	}
}

func TestSuppress_Idempotent(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := svc.Suppress(ctx, testOrgID, "+15550001111",
			domain.ChannelSMS, domain.ReasonOptOut, domain.SourceWebhook)
		if err != nil {
			t.Fatalf("Suppress #%d: %v", i, err)
		}
	}

	count, _ := svc.Count(ctx, testOrgID)
	if count != 1 {
		t.Errorf("expected 1 suppression, got %d", count)
	}
}

func TestSuppress_EmptyIdentity_Fails(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	err := svc.Suppress(ctx, testOrgID, "  ",
		domain.ChannelEmail, domain.ReasonHardBounce, domain.SourceDispatch)
	if err == nil {
		t.Error("expected error for empty identity")
	}
}

func TestRemove_ReConsentFlow(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_ = svc.Suppress(ctx, testOrgID, "optin@example.com",
		domain.ChannelEmail, domain.ReasonManual, domain.SourceManual)

	if err := svc.Remove(ctx, testOrgID, "optin@example.com"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	ok, _ := svc.IsSuppressed(ctx, testOrgID, "optin@example.com")
	if ok {
		t.Error("expected identity to no longer be suppressed after Remove()")
	}
}

func TestRemove_NotFound_ReturnsError(t *testing.T) {
	svc := NewService(newMockRepo())

	if err := svc.Remove(context.Background(), testOrgID, "ghost@example.com"); err == nil {
		t.Error("expected error when removing non-existent suppression")
	}
}

func TestIsSuppressed_ScopedToOrganization(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_ = svc.Suppress(ctx, testOrgID, "shared@example.com",
		domain.ChannelEmail, domain.ReasonOptOut, domain.SourceWebhook)

	ok, _ := svc.IsSuppressed(ctx, "other-org", "shared@example.com")
	if ok {
		t.Error("suppression must not leak across organizations")
	}
}

func TestGetStats_AggregatesByReasonAndSource(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_ = svc.Suppress(ctx, testOrgID, "a@example.com",
		domain.ChannelEmail, domain.ReasonHardBounce, domain.SourceDispatch)
	_ = svc.Suppress(ctx, testOrgID, "b@example.com",
		domain.ChannelEmail, domain.ReasonOptOut, domain.SourceWebhook)
	_ = svc.Suppress(ctx, testOrgID, "+15550002222",
		domain.ChannelSMS, domain.ReasonHardBounce, domain.SourceWebhook)

	stats, err := svc.GetStats(ctx, testOrgID)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("expected total=3, got %d", stats.Total)
	}
	if stats.ByReason["hard_bounce"] != 2 {
		t.Errorf("expected 2 hard bounces, got %d", stats.ByReason["hard_bounce"])
	}
	if stats.BySource["provider_webhook"] != 2 {
		t.Errorf("expected 2 webhook-sourced, got %d", stats.BySource["provider_webhook"])
	}
}
