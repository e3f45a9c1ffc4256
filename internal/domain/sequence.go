package domain

import "time"

// SequenceStatus enumerates the lifecycle states of a sequence definition.
type SequenceStatus string

const (
	SequenceDraft    SequenceStatus = "draft"
	SequenceActive   SequenceStatus = "active"
	SequenceArchived SequenceStatus = "archived"
)

// SequenceStep is one ordered touch inside a sequence: which channel, how
// long after the previous step, and which content template to render.
type SequenceStep struct {
	Order             int           `json:"order" db:"step_order"`
	Channel           Channel       `json:"channel" db:"channel"`
	DelayFromPrevious time.Duration `json:"delay_from_previous" db:"delay_from_previous"`
	TemplateRef       string        `json:"template_ref" db:"template_ref"`
	IsBreakupStep     bool          `json:"is_breakup_step" db:"is_breakup_step"`
}

// SequenceDefinition is an ordered list of steps. Once activated the step
// list is frozen: in-flight enrollments were scheduled against it, and a
// change would desynchronize them. A new version must be a new definition.
type SequenceDefinition struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	Name           string         `json:"name" db:"name"`
	Status         SequenceStatus `json:"status" db:"status"`
	Steps          []SequenceStep `json:"steps" db:"-"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	ActivatedAt    *time.Time     `json:"activated_at" db:"activated_at"`
}

// Step returns the step at index i, or nil when i is out of range.
func (d *SequenceDefinition) Step(i int) *SequenceStep {
	if i < 0 || i >= len(d.Steps) {
		return nil
	}
	return &d.Steps[i]
}
