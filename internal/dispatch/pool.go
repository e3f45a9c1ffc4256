// Package dispatch runs the worker pool that turns due enrollments into
// provider sends. Workers share nothing but the database: each claims a
// batch of due enrollments under a lease, walks every claimed row through
// suppression check, capability check, content rendering and the provider
// call, then records the outcome on the interaction log.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/leadpulse/outreach/internal/config"
	"github.com/leadpulse/outreach/internal/content"
	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/pipeline"
	"github.com/leadpulse/outreach/internal/pkg/logger"
	"github.com/leadpulse/outreach/internal/provider"
	"github.com/leadpulse/outreach/internal/service/enrollment"
)

// ErrDuplicateSend is returned by Store.RecordInteraction when a sent
// record for the same (enrollment, step) already exists. It means another
// worker won the race; the loser must not advance the enrollment.
var ErrDuplicateSend = errors.New("step already sent")

// Store is the persistence surface the pool needs.
type Store interface {
	// ClaimDue atomically leases up to limit due enrollments for workerID.
	// A row is due when status=active, nextActionAt <= now, and no live
	// lease is held. Claimed rows are returned with the lease fields set.
	ClaimDue(ctx context.Context, workerID string, limit int, leaseTTL time.Duration) ([]domain.Enrollment, error)

	// ReleaseLease clears the lease if workerID still holds it.
	ReleaseLease(ctx context.Context, enrollmentID, workerID string) error

	Prospect(ctx context.Context, orgID, id string) (*domain.Prospect, error)
	Sequence(ctx context.Context, orgID, id string) (*domain.SequenceDefinition, error)
	Plan(ctx context.Context, orgID string) (domain.Plan, error)
	UpdateProspectStage(ctx context.Context, orgID, prospectID string, stage domain.Stage) error

	// RecordInteraction appends to the interaction log. For type=sent it
	// enforces at-most-once per (enrollment, step) and returns
	// ErrDuplicateSend on a second insert.
	RecordInteraction(ctx context.Context, ix *domain.Interaction) error

	// SentStep returns the sent interaction already recorded for the step,
	// or nil when the step has never been delivered. Workers consult it
	// before calling the provider so a reclaim after a crash adopts the
	// earlier delivery instead of repeating it.
	SentStep(ctx context.Context, orgID, enrollmentID string, stepIndex int) (*domain.Interaction, error)

	// Heartbeat upserts the worker's liveness row.
	Heartbeat(ctx context.Context, workerID string, processed, failed int64) error
}

// Scheduler is the slice of the enrollment service the pool calls back into.
type Scheduler interface {
	Advance(ctx context.Context, e *domain.Enrollment, seq *domain.SequenceDefinition, dispatchTime time.Time) error
	Skip(ctx context.Context, e *domain.Enrollment, seq *domain.SequenceDefinition) error
	StopAllForProspect(ctx context.Context, orgID, prospectID string, reason domain.StopReason) (int, error)
}

// Suppressor is the slice of the suppression service the pool needs.
type Suppressor interface {
	IsSuppressed(ctx context.Context, orgID, identity string) (bool, error)
	Suppress(ctx context.Context, orgID, identity string, channel domain.Channel, reason domain.SuppressionReason, source domain.SuppressionSource) error
}

// Capability gates each step on plan and identity availability.
type Capability interface {
	CanUse(ctx context.Context, plan domain.Plan, p *domain.Prospect, c domain.Channel) (bool, error)
}

// Renderer resolves a step's template into the message to send.
type Renderer interface {
	Render(ctx context.Context, orgID string, step *domain.SequenceStep, prospect *domain.Prospect) (*content.Rendered, error)
}

// Providers maps channels to their configured provider.
type Providers interface {
	For(c domain.Channel) provider.Provider
}

// Pool is the dispatch worker pool.
type Pool struct {
	cfg         config.DispatchConfig
	store       Store
	scheduler   Scheduler
	suppression Suppressor
	capability  Capability
	renderer    Renderer
	providers   Providers

	workerID    string
	backoffBase time.Duration

	processed int64
	failed    int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex

	now func() time.Time
}

// NewPool wires a dispatch pool. It does not start any goroutines.
func NewPool(cfg config.DispatchConfig, store Store, scheduler Scheduler, suppression Suppressor, capability Capability, renderer Renderer, providers Providers) *Pool {
	return &Pool{
		cfg:         cfg,
		store:       store,
		scheduler:   scheduler,
		suppression: suppression,
		capability:  capability,
		renderer:    renderer,
		providers:   providers,
		workerID:    fmt.Sprintf("dispatch-%s", uuid.New().String()[:8]),
		backoffBase: 2 * time.Second,
		now:         time.Now,
	}
}

// Start launches the worker goroutines and the heartbeat loop.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	logger.Info("dispatch pool starting",
		"worker_id", p.workerID, "workers", p.cfg.Workers)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.pollLoop(i)
	}

	p.wg.Add(1)
	go p.heartbeatLoop()
}

// Stop shuts the pool down, waiting up to 30 seconds for in-flight sends.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("dispatch pool stopped",
			"processed", atomic.LoadInt64(&p.processed),
			"failed", atomic.LoadInt64(&p.failed))
	case <-time.After(30 * time.Second):
		logger.Warn("dispatch pool shutdown timeout, forcing stop")
	}
}

func (p *Pool) pollLoop(worker int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.runBatch(worker)
		}
	}
}

func (p *Pool) runBatch(worker int) {
	claimed, err := p.store.ClaimDue(p.ctx, p.workerID, p.cfg.BatchSize, p.cfg.LeaseTTL())
	if err != nil {
		if p.ctx.Err() == nil {
			logger.Error("claim batch failed", "worker", worker, "error", err.Error())
		}
		return
	}
	if len(claimed) == 0 {
		return
	}
	claimedTotal.Add(float64(len(claimed)))

	for i := range claimed {
		if p.ctx.Err() != nil {
			return
		}
		p.processEnrollment(&claimed[i])
	}
}

// processEnrollment runs one claimed enrollment through the full step
// pipeline. The claim lease is ours until the scheduler clears it on
// advance/skip/stop, or until it expires.
func (p *Pool) processEnrollment(e *domain.Enrollment) {
	ctx := p.ctx

	seq, err := p.store.Sequence(ctx, e.OrganizationID, e.SequenceID)
	if err != nil {
		p.recordError(ctx, e, "", fmt.Sprintf("load sequence: %v", err))
		p.release(ctx, e)
		return
	}
	step := seq.Step(e.CurrentStep)
	if step == nil || seq.Status == domain.SequenceArchived {
		// The definition no longer matches the enrollment. This needs an
		// operator; the error interaction surfaces it in the read model,
		// and the unreleased lease sets the re-inspection cadence.
		p.recordError(ctx, e, "", "enrollment references an invalid sequence state")
		atomic.AddInt64(&p.failed, 1)
		return
	}

	prospect, err := p.store.Prospect(ctx, e.OrganizationID, e.ProspectID)
	if err != nil {
		p.recordError(ctx, e, step.Channel, fmt.Sprintf("load prospect: %v", err))
		p.release(ctx, e)
		return
	}

	// The interaction log is the idempotency source of truth. A sent record
	// with no matching advance means a previous holder delivered this step
	// and crashed before moving the enrollment; adopt that delivery rather
	// than invoking the provider a second time.
	prior, err := p.store.SentStep(ctx, e.OrganizationID, e.ID, e.CurrentStep)
	if err != nil {
		p.recordError(ctx, e, step.Channel, fmt.Sprintf("sent-step lookup: %v", err))
		p.release(ctx, e)
		return
	}
	if prior != nil {
		logger.Warn("adopting step delivered by a previous holder",
			"enrollment_id", e.ID, "step", e.CurrentStep)
		p.adoptSend(ctx, e, seq, prospect, prior.OccurredAt)
		return
	}

	plan, err := p.store.Plan(ctx, e.OrganizationID)
	if err != nil {
		p.recordError(ctx, e, step.Channel, fmt.Sprintf("load plan: %v", err))
		p.release(ctx, e)
		return
	}

	ident := prospect.Identity(step.Channel)

	// Suppression is checked immediately before the send, not only at
	// enrollment: the prospect may have opted out since scheduling.
	if ident != nil {
		suppressed, err := p.suppression.IsSuppressed(ctx, e.OrganizationID, ident.Value)
		if err != nil {
			p.recordError(ctx, e, step.Channel, fmt.Sprintf("suppression check: %v", err))
			p.release(ctx, e)
			return
		}
		if suppressed {
			p.skipStep(ctx, e, seq, step, "suppressed")
			return
		}
	}

	usable, err := p.capability.CanUse(ctx, plan, prospect, step.Channel)
	if err != nil {
		p.recordError(ctx, e, step.Channel, fmt.Sprintf("capability check: %v", err))
		p.release(ctx, e)
		return
	}
	prov := p.providers.For(step.Channel)
	if !usable || ident == nil || prov == nil {
		p.skipStep(ctx, e, seq, step, "unavailable")
		return
	}

	msg, err := p.renderer.Render(ctx, e.OrganizationID, step, prospect)
	if err != nil {
		// Broken template config. Skip rather than wedge the enrollment;
		// the error interaction carries the detail for the operator.
		p.recordError(ctx, e, step.Channel, fmt.Sprintf("render: %v", err))
		p.skipStep(ctx, e, seq, step, "render")
		return
	}

	p.sendStep(ctx, e, seq, step, prospect, ident.Value, prov, msg)
}

// sendStep attempts delivery with bounded retries on transient failures.
func (p *Pool) sendStep(ctx context.Context, e *domain.Enrollment, seq *domain.SequenceDefinition, step *domain.SequenceStep, prospect *domain.Prospect, identity string, prov provider.Provider, msg *content.Rendered) {
	start := p.now()
	var lastErr error

	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if !p.backoff(ctx, attempt) {
				return
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout())
		messageID, err := prov.Send(sendCtx, identity, msg)
		cancel()

		if err == nil {
			sendDuration.WithLabelValues(string(step.Channel)).Observe(p.now().Sub(start).Seconds())
			p.recordSend(ctx, e, seq, step, prospect, messageID)
			return
		}
		lastErr = err

		if provider.IsPermanent(err) {
			p.handlePermanentFailure(ctx, e, step, identity, err)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}

	// Retry budget spent. Treat like an unavailable channel: advance
	// without counting the step as sent.
	p.recordError(ctx, e, step.Channel, fmt.Sprintf("send failed after %d attempts: %v", p.cfg.MaxAttempts, lastErr))
	p.skipStep(ctx, e, seq, step, "transient_exhausted")
}

func (p *Pool) recordSend(ctx context.Context, e *domain.Enrollment, seq *domain.SequenceDefinition, step *domain.SequenceStep, prospect *domain.Prospect, messageID string) {
	sentAt := p.now()
	stepIdx := e.CurrentStep
	ix := &domain.Interaction{
		ID:             uuid.New().String(),
		OrganizationID: e.OrganizationID,
		ProspectID:     e.ProspectID,
		EnrollmentID:   &e.ID,
		StepIndex:      &stepIdx,
		Channel:        step.Channel,
		Direction:      domain.DirectionOut,
		Type:           domain.InteractionSent,
		OccurredAt:     sentAt,
		Payload: map[string]string{
			"provider_message_id": messageID,
			"template_ref":        step.TemplateRef,
		},
	}
	if err := p.store.RecordInteraction(ctx, ix); err != nil {
		if errors.Is(err, ErrDuplicateSend) {
			// Another holder delivered this step first, most likely after a
			// lease expiry race. Adopt its send; the claim guard drops this
			// advance if that holder still owns the row.
			logger.Warn("duplicate send detected",
				"enrollment_id", e.ID, "step", stepIdx)
			p.adoptSend(ctx, e, seq, prospect, sentAt)
			return
		}
		logger.Error("record send failed", "enrollment_id", e.ID, "error", err.Error())
	}

	sentTotal.WithLabelValues(string(step.Channel)).Inc()
	atomic.AddInt64(&p.processed, 1)

	if next, changed := pipeline.Apply(prospect.Stage, domain.StageInSequence); changed {
		if err := p.store.UpdateProspectStage(ctx, e.OrganizationID, e.ProspectID, next); err != nil {
			logger.Error("stage update failed", "prospect_id", e.ProspectID, "error", err.Error())
		}
	}

	p.advance(ctx, e, seq, sentAt)
}

// adoptSend finalizes a step that was already delivered: converge the
// prospect stage and advance from the original delivery time. No provider
// call, no new sent record.
func (p *Pool) adoptSend(ctx context.Context, e *domain.Enrollment, seq *domain.SequenceDefinition, prospect *domain.Prospect, sentAt time.Time) {
	if next, changed := pipeline.Apply(prospect.Stage, domain.StageInSequence); changed {
		if err := p.store.UpdateProspectStage(ctx, e.OrganizationID, e.ProspectID, next); err != nil {
			logger.Error("stage update failed", "prospect_id", e.ProspectID, "error", err.Error())
		}
	}
	p.advance(ctx, e, seq, sentAt)
}

func (p *Pool) advance(ctx context.Context, e *domain.Enrollment, seq *domain.SequenceDefinition, sentAt time.Time) {
	err := p.scheduler.Advance(ctx, e, seq, sentAt)
	switch {
	case err == nil:
	case errors.Is(err, enrollment.ErrClaimLost):
		// A stop or pause landed while the send was in flight; its state
		// wins and this enrollment is done with us.
	default:
		logger.Error("advance failed", "enrollment_id", e.ID, "error", err.Error())
	}
}

func (p *Pool) handlePermanentFailure(ctx context.Context, e *domain.Enrollment, step *domain.SequenceStep, identity string, sendErr error) {
	failedTotal.WithLabelValues(string(step.Channel)).Inc()
	atomic.AddInt64(&p.failed, 1)

	p.recordError(ctx, e, step.Channel, sendErr.Error())

	if err := p.suppression.Suppress(ctx, e.OrganizationID, identity, step.Channel, domain.ReasonHardBounce, domain.SourceDispatch); err != nil {
		logger.Error("suppress failed", "identity", identity, "error", err.Error())
	}
	if _, err := p.scheduler.StopAllForProspect(ctx, e.OrganizationID, e.ProspectID, domain.StopBounced); err != nil {
		logger.Error("cascade stop failed", "prospect_id", e.ProspectID, "error", err.Error())
	}
}

func (p *Pool) skipStep(ctx context.Context, e *domain.Enrollment, seq *domain.SequenceDefinition, step *domain.SequenceStep, cause string) {
	skippedTotal.WithLabelValues(cause).Inc()

	stepIdx := e.CurrentStep
	ix := &domain.Interaction{
		ID:             uuid.New().String(),
		OrganizationID: e.OrganizationID,
		ProspectID:     e.ProspectID,
		EnrollmentID:   &e.ID,
		StepIndex:      &stepIdx,
		Channel:        step.Channel,
		Direction:      domain.DirectionSystem,
		Type:           domain.InteractionSystem,
		OccurredAt:     p.now(),
		Payload:        map[string]string{"event": "step_skipped", "cause": cause},
	}
	if err := p.store.RecordInteraction(ctx, ix); err != nil {
		logger.Error("record skip failed", "enrollment_id", e.ID, "error", err.Error())
	}

	if err := p.scheduler.Skip(ctx, e, seq); err != nil && !errors.Is(err, enrollment.ErrClaimLost) {
		logger.Error("skip failed", "enrollment_id", e.ID, "error", err.Error())
	}
}

func (p *Pool) recordError(ctx context.Context, e *domain.Enrollment, channel domain.Channel, detail string) {
	stepIdx := e.CurrentStep
	ix := &domain.Interaction{
		ID:             uuid.New().String(),
		OrganizationID: e.OrganizationID,
		ProspectID:     e.ProspectID,
		EnrollmentID:   &e.ID,
		StepIndex:      &stepIdx,
		Channel:        channel,
		Direction:      domain.DirectionSystem,
		Type:           domain.InteractionError,
		OccurredAt:     p.now(),
		Payload:        map[string]string{"error": detail},
	}
	if err := p.store.RecordInteraction(ctx, ix); err != nil {
		logger.Error("record error interaction failed", "enrollment_id", e.ID, "error", err.Error())
	}
}

func (p *Pool) release(ctx context.Context, e *domain.Enrollment) {
	if err := p.store.ReleaseLease(ctx, e.ID, p.workerID); err != nil {
		logger.Error("release lease failed", "enrollment_id", e.ID, "error", err.Error())
	}
}

// backoff sleeps with exponential backoff and full jitter. Returns false
// when the pool is shutting down.
func (p *Pool) backoff(ctx context.Context, attempt int) bool {
	max := float64(p.backoffBase) * math.Pow(2, float64(attempt-1))
	delay := time.Duration(rand.Float64() * max)
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pool) heartbeatLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			err := p.store.Heartbeat(p.ctx,
				p.workerID,
				atomic.LoadInt64(&p.processed),
				atomic.LoadInt64(&p.failed))
			if err != nil && p.ctx.Err() == nil {
				logger.Warn("heartbeat failed", "error", err.Error())
			}
		}
	}
}
