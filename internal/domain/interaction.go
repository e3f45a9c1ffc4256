package domain

import "time"

// Direction distinguishes who initiated an interaction.
type Direction string

const (
	DirectionOut    Direction = "out"    // we sent something
	DirectionIn     Direction = "in"     // the prospect responded
	DirectionTrack  Direction = "track"  // passive tracking signal (open, click)
	DirectionSystem Direction = "system" // engine-generated audit record
)

// InteractionType enumerates the canonical event types recorded on the
// interaction log.
type InteractionType string

const (
	InteractionSent      InteractionType = "sent"
	InteractionDelivered InteractionType = "delivered"
	InteractionOpened    InteractionType = "opened"
	InteractionClicked   InteractionType = "clicked"
	InteractionReplied   InteractionType = "replied"
	InteractionBounced   InteractionType = "bounced"
	InteractionOptedOut  InteractionType = "opted_out"
	InteractionConverted InteractionType = "converted"
	InteractionError     InteractionType = "error"
	InteractionSystem    InteractionType = "system"
)

// Interaction is one immutable record on the append-only interaction log.
// It is the sole source of truth consumed by the scoring engine and the
// pipeline state machine. Records are never mutated after creation.
type Interaction struct {
	ID             string            `json:"id" db:"id"`
	OrganizationID string            `json:"organization_id" db:"organization_id"`
	ProspectID     string            `json:"prospect_id" db:"prospect_id"`
	EnrollmentID   *string           `json:"enrollment_id,omitempty" db:"enrollment_id"`
	StepIndex      *int              `json:"step_index,omitempty" db:"step_index"`
	Channel        Channel           `json:"channel" db:"channel"`
	Direction      Direction         `json:"direction" db:"direction"`
	Type           InteractionType   `json:"type" db:"type"`
	OccurredAt     time.Time         `json:"occurred_at" db:"occurred_at"`
	Payload        map[string]string `json:"payload,omitempty" db:"payload"`

	// ProviderEventID is the provider-supplied event id when the record came
	// from a webhook. Ingestion is idempotent on this key.
	ProviderEventID *string `json:"provider_event_id,omitempty" db:"provider_event_id"`
}
