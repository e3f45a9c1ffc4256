package ingest

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadpulse/outreach/internal/config"
	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/pipeline"
	"github.com/leadpulse/outreach/internal/pkg/distlock"
	"github.com/leadpulse/outreach/internal/pkg/logger"
)

// Scorer recomputes a prospect's score after an interaction.
type Scorer interface {
	Recompute(ctx context.Context, orgID, prospectID string) (domain.ScoreBreakdown, error)
}

// ProspectStore is the slice of prospect persistence the consumer needs.
type ProspectStore interface {
	Get(ctx context.Context, orgID, id string) (*domain.Prospect, error)
	UpdateStage(ctx context.Context, orgID, id string, stage domain.Stage) error
}

// Stopper cascades enrollment stops.
type Stopper interface {
	StopAllForProspect(ctx context.Context, orgID, prospectID string, reason domain.StopReason) (int, error)
}

// Suppressor registers never-contact identities.
type Suppressor interface {
	Suppress(ctx context.Context, orgID, identity string, channel domain.Channel, reason domain.SuppressionReason, source domain.SuppressionSource) error
}

// Consumer drains the interaction queue and applies every downstream
// reaction: cascade stops, suppression, pipeline transitions and score
// recomputes. Reactions for one prospect are serialized under a
// distributed per-prospect lock so concurrent consumers cannot interleave.
type Consumer struct {
	cfg         config.IngestConfig
	queue       *RedisQueue
	redisClient *redis.Client
	db          *sql.DB
	scorer      Scorer
	prospects   ProspectStore
	enrollments Stopper
	suppression Suppressor

	// requeueDelay paces contended interactions back onto the queue so a
	// held per-prospect lock does not turn the loop into a hot spin.
	requeueDelay time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// NewConsumer wires an interaction consumer.
func NewConsumer(cfg config.IngestConfig, queue *RedisQueue, redisClient *redis.Client, db *sql.DB, scorer Scorer, prospects ProspectStore, enrollments Stopper, suppression Suppressor) *Consumer {
	return &Consumer{
		cfg:         cfg,
		queue:       queue,
		redisClient: redisClient,
		db:          db,
		scorer:      scorer,
		prospects:   prospects,
		enrollments: enrollments,
		suppression: suppression,

		requeueDelay: 250 * time.Millisecond,
		done:         make(chan struct{}),
	}
}

// Start launches the consume loop.
func (c *Consumer) Start(ctx context.Context) {
	logger.Info("interaction consumer started", "queue", c.cfg.QueueKey)
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop signals the loop to exit and waits for the in-flight interaction.
func (c *Consumer) Stop() {
	close(c.done)
	c.wg.Wait()
}

func (c *Consumer) loop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		ix, err := c.queue.Dequeue(ctx, c.cfg.BlockTimeout())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", "error", err.Error())
			time.Sleep(time.Second)
			continue
		}
		if ix == nil {
			continue
		}

		if err := c.Process(ctx, ix); err != nil {
			logger.Error("process interaction failed",
				"interaction_id", ix.ID, "error", err.Error())
		}
	}
}

// Process applies one interaction's downstream effects under the
// per-prospect lock. When the lock is contended the interaction is pushed
// back on the queue rather than dropped.
func (c *Consumer) Process(ctx context.Context, ix *domain.Interaction) error {
	lock := distlock.NewLock(c.redisClient, c.db, "ingest:prospect:"+ix.ProspectID, c.cfg.LockTTL())
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		processedTotal.WithLabelValues("requeued").Inc()
		// Another consumer owns this prospect right now. Pause before the
		// requeue so a lock held past one dequeue round (crashed holder,
		// TTL not yet lapsed) cannot spin the loop hot.
		timer := time.NewTimer(c.requeueDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		case <-c.done:
		}
		return c.queue.Enqueue(ctx, ix)
	}
	defer lock.Release(ctx)

	if err := c.applyStopConditions(ctx, ix); err != nil {
		processedTotal.WithLabelValues("error").Inc()
		return err
	}
	if err := c.applyPipeline(ctx, ix); err != nil {
		processedTotal.WithLabelValues("error").Inc()
		return err
	}

	// Scoring always runs last so it sees the post-transition prospect.
	if _, err := c.scorer.Recompute(ctx, ix.OrganizationID, ix.ProspectID); err != nil {
		logger.Error("score recompute failed",
			"prospect_id", ix.ProspectID, "error", err.Error())
	}
	processedTotal.WithLabelValues("ok").Inc()
	return nil
}

// applyStopConditions cascades enrollment stops and registers suppressions
// for reply, opt-out and hard-bounce signals.
func (c *Consumer) applyStopConditions(ctx context.Context, ix *domain.Interaction) error {
	switch ix.Type {
	case domain.InteractionReplied:
		_, err := c.enrollments.StopAllForProspect(ctx, ix.OrganizationID, ix.ProspectID, domain.StopReplied)
		return err

	case domain.InteractionOptedOut:
		if identity := c.identityFor(ctx, ix); identity != "" {
			if err := c.suppression.Suppress(ctx, ix.OrganizationID, identity, ix.Channel, domain.ReasonOptOut, domain.SourceWebhook); err != nil {
				return err
			}
		}
		_, err := c.enrollments.StopAllForProspect(ctx, ix.OrganizationID, ix.ProspectID, domain.StopOptedOut)
		return err

	case domain.InteractionBounced:
		// Soft bounces are delivery noise; only bounces the provider
		// classifies as permanent suppress and stop.
		if ix.Payload["bounce_type"] != "hard" && ix.Payload["bounce_type"] != "permanent" {
			return nil
		}
		if identity := c.identityFor(ctx, ix); identity != "" {
			if err := c.suppression.Suppress(ctx, ix.OrganizationID, identity, ix.Channel, domain.ReasonHardBounce, domain.SourceWebhook); err != nil {
				return err
			}
		}
		_, err := c.enrollments.StopAllForProspect(ctx, ix.OrganizationID, ix.ProspectID, domain.StopBounced)
		return err
	}
	return nil
}

func (c *Consumer) applyPipeline(ctx context.Context, ix *domain.Interaction) error {
	target, ok := pipeline.StageForInteraction(*ix)
	if !ok {
		return nil
	}
	p, err := c.prospects.Get(ctx, ix.OrganizationID, ix.ProspectID)
	if err != nil {
		return err
	}
	next, changed := pipeline.Apply(p.Stage, target)
	if !changed {
		return nil
	}
	if err := c.prospects.UpdateStage(ctx, ix.OrganizationID, ix.ProspectID, next); err != nil {
		return err
	}
	logger.Info("prospect stage changed",
		"prospect_id", ix.ProspectID, "from", string(p.Stage), "to", string(next))
	return nil
}

// identityFor resolves the contact identity an inbound event refers to:
// the payload's identity when the provider included one, otherwise the
// prospect's identity on the event's channel.
func (c *Consumer) identityFor(ctx context.Context, ix *domain.Interaction) string {
	if v := ix.Payload["identity"]; v != "" {
		return v
	}
	if ix.Channel == "" {
		return ""
	}
	p, err := c.prospects.Get(ctx, ix.OrganizationID, ix.ProspectID)
	if err != nil {
		return ""
	}
	if ident := p.Identity(ix.Channel); ident != nil {
		return ident.Value
	}
	return ""
}
