package ingest

import (
	"context"
	"errors"

	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/pkg/logger"
)

// ErrDuplicateEvent is returned by InteractionStore.InsertIdempotent when
// the provider event id was already recorded.
var ErrDuplicateEvent = errors.New("provider event already ingested")

// InteractionStore appends interactions with provider-event deduplication.
type InteractionStore interface {
	// InsertIdempotent appends the interaction. When another record
	// already carries the same provider event id it returns
	// ErrDuplicateEvent and writes nothing.
	InsertIdempotent(ctx context.Context, ix *domain.Interaction) error
}

// Queue hands normalized interactions to the asynchronous consumer.
type Queue interface {
	Enqueue(ctx context.Context, ix *domain.Interaction) error
}

// Service is the ingestion front door.
type Service struct {
	store InteractionStore
	queue Queue
}

// NewService creates the ingestion service.
func NewService(store InteractionStore, queue Queue) *Service {
	return &Service{store: store, queue: queue}
}

// Ingest normalizes, deduplicates and queues one inbound event. The
// returned bool is false when the event was a duplicate; duplicates are
// not an error, the provider is simply retrying its webhook.
func (s *Service) Ingest(ctx context.Context, ev *WebhookEvent) (*domain.Interaction, bool, error) {
	ix, err := Normalize(ev)
	if err != nil {
		return nil, false, err
	}

	if err := s.store.InsertIdempotent(ctx, ix); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			duplicatesTotal.Inc()
			logger.Debug("duplicate provider event ignored",
				"provider_event_id", ev.EventID, "prospect_id", ev.ProspectID)
			return nil, false, nil
		}
		return nil, false, err
	}

	if err := s.queue.Enqueue(ctx, ix); err != nil {
		// The record is durable; the consumer will be fed again on the
		// next event for this prospect, so log and keep the webhook 2xx.
		logger.Error("enqueue interaction failed",
			"interaction_id", ix.ID, "error", err.Error())
	}

	ingestedTotal.WithLabelValues(string(ix.Type)).Inc()
	logger.Info("interaction ingested",
		"interaction_id", ix.ID,
		"prospect_id", ix.ProspectID,
		"type", string(ix.Type))
	return ix, true, nil
}
