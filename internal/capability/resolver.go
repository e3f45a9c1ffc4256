// Package capability decides which channels are usable for a given prospect
// under a given plan. It is the single source of truth consulted by the
// enrollment scheduler, the dispatch pool, and any API that previews what
// will happen — channel availability logic lives here and nowhere else.
package capability

import (
	"context"

	"github.com/leadpulse/outreach/internal/domain"
)

// SuppressionChecker is the subset of the suppression registry the resolver
// needs. Satisfied by *suppression.Service.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, orgID, identity string) (bool, error)
}

// Resolver computes the capability set for a prospect.
type Resolver struct {
	suppression SuppressionChecker
}

// NewResolver creates a resolver backed by the given suppression checker.
func NewResolver(suppression SuppressionChecker) *Resolver {
	return &Resolver{suppression: suppression}
}

// CanUse reports whether a single channel is usable for the prospect:
// the plan must include it, the prospect must have a usable identity for it,
// and the identity must not be suppressed.
func (r *Resolver) CanUse(ctx context.Context, plan domain.Plan, p *domain.Prospect, c domain.Channel) (bool, error) {
	if !plan.Includes(c) {
		return false, nil
	}

	ident := p.Identity(c)
	if ident == nil || !usable(ident) {
		return false, nil
	}

	suppressed, err := r.suppression.IsSuppressed(ctx, p.OrganizationID, ident.Value)
	if err != nil {
		return false, err
	}
	return !suppressed, nil
}

// AvailableChannels returns the subset of channels usable for the prospect.
func (r *Resolver) AvailableChannels(ctx context.Context, plan domain.Plan, p *domain.Prospect) ([]domain.Channel, error) {
	var out []domain.Channel
	for _, c := range domain.AllChannels {
		ok, err := r.CanUse(ctx, plan, p, c)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// usable reports whether a contact identity can be dispatched to. Phone
// channels additionally require verification: an unverified number is a
// compliance hazard, not a deliverability one.
func usable(ident *domain.ContactIdentity) bool {
	if ident.Value == "" || !ident.Available {
		return false
	}
	switch ident.Channel {
	case domain.ChannelSMS, domain.ChannelVoiceDrop:
		return ident.Verified
	}
	return true
}
