package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/pkg/httputil"
	"github.com/leadpulse/outreach/internal/service/enrollment"
)

// stepInput is the wire form of one sequence step. Delays travel as
// seconds; the engine schedules in whole seconds anyway.
type stepInput struct {
	Channel       domain.Channel `json:"channel"`
	DelaySeconds  int64          `json:"delay_seconds"`
	TemplateRef   string         `json:"template_ref"`
	IsBreakupStep bool           `json:"is_breakup_step"`
}

func buildSteps(inputs []stepInput) ([]domain.SequenceStep, string) {
	steps := make([]domain.SequenceStep, 0, len(inputs))
	for i, in := range inputs {
		if !in.Channel.Valid() {
			return nil, "unknown channel: " + string(in.Channel)
		}
		if in.DelaySeconds < 0 {
			return nil, "delay_seconds must not be negative"
		}
		if in.TemplateRef == "" {
			return nil, "template_ref is required"
		}
		steps = append(steps, domain.SequenceStep{
			Order:             i,
			Channel:           in.Channel,
			DelayFromPrevious: time.Duration(in.DelaySeconds) * time.Second,
			TemplateRef:       in.TemplateRef,
			IsBreakupStep:     in.IsBreakupStep,
		})
	}
	return steps, ""
}

// CreateSequence creates a new sequence definition in draft.
func (h *Handlers) CreateSequence(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name  string      `json:"name"`
		Steps []stepInput `json:"steps"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	steps, msg := buildSteps(input.Steps)
	if msg != "" {
		httputil.BadRequest(w, msg)
		return
	}

	seq := &domain.SequenceDefinition{
		ID:             uuid.New().String(),
		OrganizationID: OrgID(r),
		Name:           input.Name,
		Status:         domain.SequenceDraft,
		Steps:          steps,
	}
	if err := h.sequences.Create(r.Context(), seq); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, seq)
}

// ListSequences returns all sequence definitions for the organization.
func (h *Handlers) ListSequences(w http.ResponseWriter, r *http.Request) {
	list, err := h.sequences.List(r.Context(), OrgID(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if list == nil {
		list = []domain.SequenceDefinition{}
	}
	httputil.OK(w, map[string]interface{}{"sequences": list})
}

// GetSequence returns one sequence definition with its steps.
func (h *Handlers) GetSequence(w http.ResponseWriter, r *http.Request) {
	seq, err := h.sequences.GetByID(r.Context(), OrgID(r), chi.URLParam(r, "sequenceID"))
	if err != nil {
		respondSequenceError(w, err)
		return
	}
	httputil.OK(w, seq)
}

// ReplaceSequenceSteps swaps a draft's step list. Activated definitions
// are frozen: in-flight enrollments were scheduled against them, so edits
// must go into a new definition.
func (h *Handlers) ReplaceSequenceSteps(w http.ResponseWriter, r *http.Request) {
	seq, err := h.sequences.GetByID(r.Context(), OrgID(r), chi.URLParam(r, "sequenceID"))
	if err != nil {
		respondSequenceError(w, err)
		return
	}
	if seq.Status != domain.SequenceDraft {
		httputil.Conflict(w, "only draft sequences can be edited")
		return
	}

	var input struct {
		Steps []stepInput `json:"steps"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	steps, msg := buildSteps(input.Steps)
	if msg != "" {
		httputil.BadRequest(w, msg)
		return
	}

	seq.Steps = steps
	if err := h.sequences.ReplaceSteps(r.Context(), seq); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, seq)
}

// ActivateSequence moves a draft to active, opening it for enrollments.
func (h *Handlers) ActivateSequence(w http.ResponseWriter, r *http.Request) {
	orgID := OrgID(r)
	id := chi.URLParam(r, "sequenceID")

	seq, err := h.sequences.GetByID(r.Context(), orgID, id)
	if err != nil {
		respondSequenceError(w, err)
		return
	}
	if seq.Status != domain.SequenceDraft {
		httputil.Conflict(w, "only draft sequences can be activated")
		return
	}
	if len(seq.Steps) == 0 {
		httputil.Error(w, http.StatusUnprocessableEntity, "sequence has no steps")
		return
	}

	if err := h.sequences.SetStatus(r.Context(), orgID, id, domain.SequenceActive); err != nil {
		httputil.InternalError(w, err)
		return
	}
	seq.Status = domain.SequenceActive
	httputil.OK(w, seq)
}

// ArchiveSequence retires a definition. Existing enrollments are left to
// the dispatch pool, which refuses to send against an archived sequence.
func (h *Handlers) ArchiveSequence(w http.ResponseWriter, r *http.Request) {
	orgID := OrgID(r)
	id := chi.URLParam(r, "sequenceID")

	seq, err := h.sequences.GetByID(r.Context(), orgID, id)
	if err != nil {
		respondSequenceError(w, err)
		return
	}
	if seq.Status == domain.SequenceArchived {
		httputil.OK(w, seq)
		return
	}

	if err := h.sequences.SetStatus(r.Context(), orgID, id, domain.SequenceArchived); err != nil {
		httputil.InternalError(w, err)
		return
	}
	seq.Status = domain.SequenceArchived
	httputil.OK(w, seq)
}

func respondSequenceError(w http.ResponseWriter, err error) {
	if errors.Is(err, enrollment.ErrSequenceNotFound) {
		httputil.NotFound(w, "sequence not found")
		return
	}
	httputil.InternalError(w, err)
}
