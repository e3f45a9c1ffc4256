package domain

import "time"

// Stage is the coarse-grained pipeline position of a prospect, independent
// of any single sequence.
type Stage string

const (
	StageNew        Stage = "new"
	StageEnriched   Stage = "enriched"
	StageQualified  Stage = "qualified"
	StageInSequence Stage = "in_sequence"
	StageReplied    Stage = "replied"
	StageConverted  Stage = "converted"
	StageOptedOut   Stage = "opted_out"
)

// ScoreCategory buckets a 0-100 priority score.
type ScoreCategory string

const (
	CategoryHot  ScoreCategory = "hot"
	CategoryWarm ScoreCategory = "warm"
	CategoryCold ScoreCategory = "cold"
	CategoryIce  ScoreCategory = "ice"
)

// CategoryForScore maps a score to its category using the documented
// thresholds: hot >=80, warm >=50, cold >=20, else ice.
func CategoryForScore(score int) ScoreCategory {
	switch {
	case score >= 80:
		return CategoryHot
	case score >= 50:
		return CategoryWarm
	case score >= 20:
		return CategoryCold
	default:
		return CategoryIce
	}
}

// ContactIdentity is one way to reach a prospect on one channel: an email
// address, a phone number, a chat handle, a mailing address.
type ContactIdentity struct {
	Channel   Channel `json:"channel" db:"channel"`
	Value     string  `json:"value" db:"value"`
	Verified  bool    `json:"verified" db:"verified"`
	Available bool    `json:"available" db:"available"`
}

// Prospect represents a single person being worked by an organization.
type Prospect struct {
	ID             string            `json:"id" db:"id"`
	OrganizationID string            `json:"organization_id" db:"organization_id"`
	FirstName      string            `json:"first_name" db:"first_name"`
	LastName       string            `json:"last_name" db:"last_name"`
	Company        string            `json:"company" db:"company"`
	Title          string            `json:"title" db:"title"`
	CompanySize    int               `json:"company_size" db:"company_size"`
	Identities     []ContactIdentity `json:"identities" db:"-"`
	Stage          Stage             `json:"stage" db:"stage"`
	Score          int               `json:"score" db:"score"`
	Category       ScoreCategory     `json:"category" db:"category"`
	Tags           []string          `json:"tags" db:"tags"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// Identity returns the prospect's identity for the given channel, or nil.
func (p *Prospect) Identity(c Channel) *ContactIdentity {
	for i := range p.Identities {
		if p.Identities[i].Channel == c {
			return &p.Identities[i]
		}
	}
	return nil
}

// ScoreBreakdown holds the five weighted dimensions behind a prospect's
// priority score. Each dimension is clamped to [0,20] by the scoring engine,
// so Total is always within [0,100].
type ScoreBreakdown struct {
	ProfileCompleteness int `json:"profile_completeness"`
	CompanyFit          int `json:"company_fit"`
	Engagement          int `json:"engagement"`
	BuyingSignals       int `json:"buying_signals"`
	Recency             int `json:"recency"`
}

// Total sums the dimensions.
func (b ScoreBreakdown) Total() int {
	return b.ProfileCompleteness + b.CompanyFit + b.Engagement + b.BuyingSignals + b.Recency
}

// Category maps the total to its bucket.
func (b ScoreBreakdown) Category() ScoreCategory {
	return CategoryForScore(b.Total())
}
