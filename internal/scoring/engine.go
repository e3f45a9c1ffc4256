// Package scoring computes prospect priority scores from five weighted
// signal dimensions. Every dimension is a total function over the prospect
// and its interaction history, clamped to [0,20] before summation, so a
// recompute can never produce a score outside [0,100].
package scoring

import (
	"time"

	"github.com/leadpulse/outreach/internal/domain"
)

// Engine derives score breakdowns. The clock is injectable for tests.
type Engine struct {
	now func() time.Time
}

// NewEngine creates a scoring engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineAt creates a scoring engine with a fixed clock.
func NewEngineAt(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Compute derives a fresh breakdown from the prospect and its full
// interaction history. It never patches a previous score: partial updates
// drift, full recomputes cannot.
func (e *Engine) Compute(p *domain.Prospect, history []domain.Interaction) domain.ScoreBreakdown {
	now := e.now().UTC()
	return domain.ScoreBreakdown{
		ProfileCompleteness: clamp(profileCompleteness(p)),
		CompanyFit:          clamp(companyFit(p)),
		Engagement:          clamp(engagement(history, now)),
		BuyingSignals:       clamp(buyingSignals(history, now)),
		Recency:             clamp(recency(history, now)),
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 20 {
		return 20
	}
	return v
}

// profileCompleteness rewards filled identity and firmographic fields.
func profileCompleteness(p *domain.Prospect) int {
	score := 0
	if p.FirstName != "" {
		score += 3
	}
	if p.LastName != "" {
		score += 3
	}
	if p.Company != "" {
		score += 4
	}
	if p.Title != "" {
		score += 4
	}
	for _, ident := range p.Identities {
		if ident.Value != "" && ident.Verified {
			score += 3
		}
	}
	return score
}

// companyFit scores how closely the prospect's company size matches the
// mid-market sweet spot.
func companyFit(p *domain.Prospect) int {
	switch size := p.CompanySize; {
	case size <= 0:
		return 0
	case size < 10:
		return 6
	case size < 50:
		return 12
	case size <= 1000:
		return 20
	case size <= 5000:
		return 14
	default:
		return 8
	}
}

// engagement weighs opens, clicks, and replies, with older events counting
// less. Events older than 90 days are ignored entirely.
func engagement(history []domain.Interaction, now time.Time) int {
	score := 0
	for _, ix := range history {
		age := now.Sub(ix.OccurredAt)
		if age > 90*24*time.Hour {
			continue
		}
		var w int
		switch ix.Type {
		case domain.InteractionOpened:
			w = 2
		case domain.InteractionClicked:
			w = 4
		case domain.InteractionReplied:
			w = 8
		default:
			continue
		}
		if age > 30*24*time.Hour {
			w /= 2
		}
		score += w
	}
	return score
}

// buyingSignals weighs high-intent events: clicks on recent outreach,
// replies, and conversion events.
func buyingSignals(history []domain.Interaction, now time.Time) int {
	score := 0
	for _, ix := range history {
		switch ix.Type {
		case domain.InteractionConverted:
			score += 20
		case domain.InteractionReplied:
			score += 6
		case domain.InteractionClicked:
			if now.Sub(ix.OccurredAt) <= 14*24*time.Hour {
				score += 4
			}
		}
	}
	return score
}

// recency is a monotonically decreasing function of time since the last
// inbound or outbound interaction.
func recency(history []domain.Interaction, now time.Time) int {
	var last time.Time
	for _, ix := range history {
		if ix.Direction != domain.DirectionIn && ix.Direction != domain.DirectionOut {
			continue
		}
		if ix.OccurredAt.After(last) {
			last = ix.OccurredAt
		}
	}
	if last.IsZero() {
		return 0
	}
	switch age := now.Sub(last); {
	case age < 24*time.Hour:
		return 20
	case age < 3*24*time.Hour:
		return 16
	case age < 7*24*time.Hour:
		return 12
	case age < 14*24*time.Hour:
		return 8
	case age < 30*24*time.Hour:
		return 4
	default:
		return 0
	}
}
