// Package ingest is the single entry point for inbound events: provider
// webhooks and send confirmations arrive here, get normalized into
// canonical interactions, deduplicated on the provider's event id, and
// queued for the consumer that drives scoring, pipeline transitions and
// cascade stops.
package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadpulse/outreach/internal/domain"
)

// WebhookEvent is the wire shape accepted from providers. EventID is the
// provider's own id for the event; ingestion is idempotent on it.
type WebhookEvent struct {
	EventID        string            `json:"event_id"`
	OrganizationID string            `json:"organization_id"`
	ProspectID     string            `json:"prospect_id"`
	EnrollmentID   string            `json:"enrollment_id,omitempty"`
	StepIndex      *int              `json:"step_index,omitempty"`
	Channel        string            `json:"channel"`
	Event          string            `json:"event"`
	OccurredAt     time.Time         `json:"occurred_at"`
	Payload        map[string]string `json:"payload,omitempty"`
}

// ErrUnknownEvent indicates the provider event name has no canonical type.
var ErrUnknownEvent = errors.New("unknown event type")

// eventTypes maps the names providers use onto canonical types. Providers
// disagree on tense, so both forms are accepted.
var eventTypes = map[string]domain.InteractionType{
	"delivered":    domain.InteractionDelivered,
	"delivery":     domain.InteractionDelivered,
	"open":         domain.InteractionOpened,
	"opened":       domain.InteractionOpened,
	"click":        domain.InteractionClicked,
	"clicked":      domain.InteractionClicked,
	"reply":        domain.InteractionReplied,
	"replied":      domain.InteractionReplied,
	"bounce":       domain.InteractionBounced,
	"bounced":      domain.InteractionBounced,
	"hard_bounce":  domain.InteractionBounced,
	"complaint":    domain.InteractionOptedOut,
	"unsubscribe":  domain.InteractionOptedOut,
	"unsubscribed": domain.InteractionOptedOut,
	"opt_out":      domain.InteractionOptedOut,
	"opted_out":    domain.InteractionOptedOut,
	"conversion":   domain.InteractionConverted,
	"converted":    domain.InteractionConverted,
}

// directions maps each canonical type to who initiated it.
var directions = map[domain.InteractionType]domain.Direction{
	domain.InteractionDelivered: domain.DirectionTrack,
	domain.InteractionOpened:    domain.DirectionTrack,
	domain.InteractionClicked:   domain.DirectionTrack,
	domain.InteractionBounced:   domain.DirectionTrack,
	domain.InteractionReplied:   domain.DirectionIn,
	domain.InteractionOptedOut:  domain.DirectionIn,
	domain.InteractionConverted: domain.DirectionIn,
}

// Normalize converts a webhook event into a canonical interaction.
func Normalize(ev *WebhookEvent) (*domain.Interaction, error) {
	if ev.EventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}
	if ev.ProspectID == "" {
		return nil, fmt.Errorf("prospect_id is required")
	}

	typ, ok := eventTypes[strings.ToLower(strings.TrimSpace(ev.Event))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Event)
	}

	channel := domain.Channel(strings.ToLower(ev.Channel))
	if channel != "" && !channel.Valid() {
		return nil, fmt.Errorf("unknown channel %q", ev.Channel)
	}

	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	eventID := ev.EventID
	ix := &domain.Interaction{
		ID:              uuid.New().String(),
		OrganizationID:  ev.OrganizationID,
		ProspectID:      ev.ProspectID,
		Channel:         channel,
		Direction:       directions[typ],
		Type:            typ,
		OccurredAt:      occurredAt,
		Payload:         ev.Payload,
		ProviderEventID: &eventID,
	}
	if ev.EnrollmentID != "" {
		id := ev.EnrollmentID
		ix.EnrollmentID = &id
	}
	ix.StepIndex = ev.StepIndex
	return ix, nil
}
