package enrollment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/pkg/logger"
)

// AuditRecorder receives a system interaction for each enrollment status
// transition. Recording is best effort; a failed audit write never rolls
// back the transition itself.
type AuditRecorder interface {
	Insert(ctx context.Context, ix *domain.Interaction) error
}

// Service is the enrollment scheduler. All status transitions flow through
// it; nothing else writes enrollment status.
type Service struct {
	repo        Repository
	sequences   SequenceStore
	prospects   ProspectStore
	suppression SuppressionChecker
	audit       AuditRecorder

	now func() time.Time
}

// NewService creates the scheduler.
func NewService(repo Repository, sequences SequenceStore, prospects ProspectStore, suppression SuppressionChecker) *Service {
	return &Service{
		repo:        repo,
		sequences:   sequences,
		prospects:   prospects,
		suppression: suppression,
		now:         time.Now,
	}
}

// WithAudit attaches an audit recorder and returns the service.
func (s *Service) WithAudit(rec AuditRecorder) *Service {
	s.audit = rec
	return s
}

// recordAudit appends a system interaction describing a status transition.
func (s *Service) recordAudit(ctx context.Context, e *domain.Enrollment, event string) {
	if s.audit == nil {
		return
	}
	step := e.CurrentStep
	ix := &domain.Interaction{
		ID:             uuid.New().String(),
		OrganizationID: e.OrganizationID,
		ProspectID:     e.ProspectID,
		EnrollmentID:   &e.ID,
		StepIndex:      &step,
		Direction:      domain.DirectionSystem,
		Type:           domain.InteractionSystem,
		OccurredAt:     s.now(),
		Payload:        map[string]string{"event": event, "status": string(e.Status)},
	}
	if e.StopReason != nil {
		ix.Payload["stop_reason"] = string(*e.StopReason)
	}
	if err := s.audit.Insert(ctx, ix); err != nil {
		logger.Warn("audit record failed", "enrollment_id", e.ID, "event", event, "error", err)
	}
}

// Enroll binds a prospect to an active sequence and schedules its first
// step. It rejects suppressed and opted-out prospects up front; dispatch
// re-checks suppression per step, so this is the first gate, not the last.
func (s *Service) Enroll(ctx context.Context, orgID, prospectID, sequenceID string) (*domain.Enrollment, error) {
	seq, err := s.sequences.GetByID(ctx, orgID, sequenceID)
	if err != nil {
		return nil, err
	}
	if seq.Status != domain.SequenceActive {
		return nil, ErrSequenceNotActive
	}
	if len(seq.Steps) == 0 {
		return nil, ErrSequenceEmpty
	}

	prospect, err := s.prospects.GetByID(ctx, orgID, prospectID)
	if err != nil {
		return nil, err
	}
	if prospect.Stage == domain.StageOptedOut {
		return nil, ErrProspectOptedOut
	}
	if err := s.checkReachable(ctx, orgID, prospect); err != nil {
		return nil, err
	}

	exists, err := s.repo.HasOpenEnrollment(ctx, orgID, prospectID, sequenceID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyEnrolled
	}

	now := s.now()
	firstDue := now.Add(seq.Steps[0].DelayFromPrevious)
	e := &domain.Enrollment{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		ProspectID:     prospectID,
		SequenceID:     sequenceID,
		Status:         domain.EnrollmentActive,
		CurrentStep:    0,
		NextActionAt:   &firstDue,
		EnrolledAt:     now,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, e, "enrolled")
	logger.Info("prospect enrolled",
		"enrollment_id", e.ID,
		"prospect_id", prospectID,
		"sequence_id", sequenceID,
		"next_action", firstDue.Format(time.RFC3339))
	return e, nil
}

// checkReachable fails when every identity the prospect has is suppressed.
// A single clean identity is enough; unavailable channels are skipped at
// dispatch time instead.
func (s *Service) checkReachable(ctx context.Context, orgID string, prospect *domain.Prospect) error {
	if len(prospect.Identities) == 0 {
		return nil
	}
	for _, id := range prospect.Identities {
		suppressed, err := s.suppression.IsSuppressed(ctx, orgID, id.Value)
		if err != nil {
			return err
		}
		if !suppressed {
			return nil
		}
	}
	return ErrProspectSuppressed
}

// Get returns an enrollment by id.
func (s *Service) Get(ctx context.Context, orgID, id string) (*domain.Enrollment, error) {
	return s.repo.GetByID(ctx, orgID, id)
}

// ListForProspect returns all enrollments for a prospect, terminal included.
func (s *Service) ListForProspect(ctx context.Context, orgID, prospectID string) ([]domain.Enrollment, error) {
	return s.repo.ListForProspect(ctx, orgID, prospectID)
}

// ListOpenForProspect returns the prospect's active and paused enrollments.
func (s *Service) ListOpenForProspect(ctx context.Context, orgID, prospectID string) ([]domain.Enrollment, error) {
	return s.repo.ListOpenForProspect(ctx, orgID, prospectID)
}

// Pause suspends an active enrollment. The stored nextActionAt is retained
// only as a record; Resume recomputes it from scratch. A lease already held
// by a worker is allowed to run out — the due-query skips paused rows, so
// no further step is claimed.
func (s *Service) Pause(ctx context.Context, orgID, id string) (*domain.Enrollment, error) {
	e, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.EnrollmentActive {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	e.Status = domain.EnrollmentPaused
	e.PausedAt = &now
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, e, "paused")
	logger.Info("enrollment paused", "enrollment_id", id)
	return e, nil
}

// Resume reactivates a paused enrollment. The pending step's delay restarts
// from the resume time; a paused sequence does not catch up mid-delay.
func (s *Service) Resume(ctx context.Context, orgID, id string) (*domain.Enrollment, error) {
	e, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.EnrollmentPaused {
		return nil, ErrInvalidTransition
	}

	seq, err := s.sequences.GetByID(ctx, e.OrganizationID, e.SequenceID)
	if err != nil {
		return nil, err
	}
	step := seq.Step(e.CurrentStep)
	if step == nil {
		// Definition no longer matches the enrollment's position. Surface
		// to the operator rather than stopping silently.
		return nil, ErrInvalidTransition
	}

	due := s.now().Add(step.DelayFromPrevious)
	e.Status = domain.EnrollmentActive
	e.PausedAt = nil
	e.NextActionAt = &due
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, e, "resumed")
	logger.Info("enrollment resumed",
		"enrollment_id", id, "next_action", due.Format(time.RFC3339))
	return e, nil
}

// Cancel stops an active or paused enrollment by operator action.
func (s *Service) Cancel(ctx context.Context, orgID, id string, reason domain.StopReason) (*domain.Enrollment, error) {
	e, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if e.IsTerminal() {
		return nil, ErrEnrollmentTerminal
	}
	if reason == "" {
		reason = domain.StopManual
	}
	s.stop(e, reason)
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, e, "stopped")
	logger.Info("enrollment cancelled", "enrollment_id", id, "reason", string(reason))
	return e, nil
}

// StopAllForProspect cascades a stop condition to every open enrollment of
// the prospect, across all sequences. A reply means further automated
// outreach is actively harmful, so the cascade is cross-sequence.
//
// Tie-break: replied outranks every other reason. If an enrollment was
// already stopped for a bounce and a concurrent reply lands, the recorded
// reason is upgraded to replied.
func (s *Service) StopAllForProspect(ctx context.Context, orgID, prospectID string, reason domain.StopReason) (int, error) {
	all, err := s.repo.ListForProspect(ctx, orgID, prospectID)
	if err != nil {
		return 0, err
	}

	stopped := 0
	for i := range all {
		e := &all[i]
		switch {
		case e.Status == domain.EnrollmentActive || e.Status == domain.EnrollmentPaused:
			s.stop(e, reason)
		case e.Status == domain.EnrollmentStopped && reason == domain.StopReplied &&
			e.StopReason != nil && *e.StopReason != domain.StopReplied:
			r := domain.StopReplied
			e.StopReason = &r
		default:
			continue
		}
		if err := s.repo.Update(ctx, e); err != nil {
			return stopped, err
		}
		s.recordAudit(ctx, e, "stopped")
		stopped++
	}

	if stopped > 0 {
		logger.Info("cascade stop applied",
			"prospect_id", prospectID, "reason", string(reason), "count", stopped)
	}
	return stopped, nil
}

// Advance moves the enrollment past its current step after a successful
// dispatch at dispatchTime. The next step's delay counts from the dispatch,
// not from when the row is updated. Exhausting the step list completes the
// enrollment.
func (s *Service) Advance(ctx context.Context, e *domain.Enrollment, seq *domain.SequenceDefinition, dispatchTime time.Time) error {
	e.StepsSent++
	return s.moveToNext(ctx, e, seq, dispatchTime)
}

// Skip moves past an unavailable or failed step without counting it as
// sent. The following step's delay counts from now.
func (s *Service) Skip(ctx context.Context, e *domain.Enrollment, seq *domain.SequenceDefinition) error {
	return s.moveToNext(ctx, e, seq, s.now())
}

func (s *Service) moveToNext(ctx context.Context, e *domain.Enrollment, seq *domain.SequenceDefinition, from time.Time) error {
	var holder string
	if e.LeasedBy != nil {
		holder = *e.LeasedBy
	}
	e.CurrentStep++
	e.LeasedBy = nil
	e.LeaseExpiresAt = nil

	next := seq.Step(e.CurrentStep)
	if next == nil {
		now := s.now()
		e.Status = domain.EnrollmentCompleted
		e.NextActionAt = nil
		e.CompletedAt = &now
		if err := s.persistMove(ctx, e, holder); err != nil {
			return err
		}
		s.recordAudit(ctx, e, "completed")
		logger.Info("enrollment completed",
			"enrollment_id", e.ID, "steps_sent", e.StepsSent)
		return nil
	}

	due := from.Add(next.DelayFromPrevious)
	e.NextActionAt = &due
	return s.persistMove(ctx, e, holder)
}

// persistMove writes an advance or skip. A worker's copy goes through the
// claim-guarded update: a cascade stop or operator pause that landed while
// the send was in flight must win, not be overwritten by the stale copy.
func (s *Service) persistMove(ctx context.Context, e *domain.Enrollment, holder string) error {
	if holder == "" {
		return s.repo.Update(ctx, e)
	}
	err := s.repo.UpdateClaimed(ctx, e, holder)
	if err == ErrClaimLost {
		logger.Warn("enrollment changed mid-flight, dropping advance",
			"enrollment_id", e.ID, "worker_id", holder)
	}
	return err
}

// stop applies the terminal stopped state in place.
func (s *Service) stop(e *domain.Enrollment, reason domain.StopReason) {
	now := s.now()
	e.Status = domain.EnrollmentStopped
	e.StopReason = &reason
	e.NextActionAt = nil
	e.CompletedAt = &now
	e.LeasedBy = nil
	e.LeaseExpiresAt = nil
}
