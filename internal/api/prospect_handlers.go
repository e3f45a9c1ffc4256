package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/pipeline"
	"github.com/leadpulse/outreach/internal/pkg/httputil"
	"github.com/leadpulse/outreach/internal/repository/postgres"
)

// CreateProspect registers a new prospect with its contact identities.
func (h *Handlers) CreateProspect(w http.ResponseWriter, r *http.Request) {
	var input struct {
		FirstName   string                   `json:"first_name"`
		LastName    string                   `json:"last_name"`
		Company     string                   `json:"company"`
		Title       string                   `json:"title"`
		CompanySize int                      `json:"company_size"`
		Tags        []string                 `json:"tags"`
		Identities  []domain.ContactIdentity `json:"identities"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	for _, ident := range input.Identities {
		if !ident.Channel.Valid() {
			httputil.BadRequest(w, "unknown channel: "+string(ident.Channel))
			return
		}
		if ident.Value == "" {
			httputil.BadRequest(w, "identity value is required")
			return
		}
	}

	p := &domain.Prospect{
		ID:             uuid.New().String(),
		OrganizationID: OrgID(r),
		FirstName:      input.FirstName,
		LastName:       input.LastName,
		Company:        input.Company,
		Title:          input.Title,
		CompanySize:    input.CompanySize,
		Tags:           input.Tags,
		Identities:     input.Identities,
		Stage:          domain.StageNew,
		Category:       domain.CategoryIce,
	}
	if err := h.prospects.Create(r.Context(), p); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, p)
}

// GetProspect returns one prospect.
func (h *Handlers) GetProspect(w http.ResponseWriter, r *http.Request) {
	p, err := h.prospects.GetByID(r.Context(), OrgID(r), chi.URLParam(r, "prospectID"))
	if err != nil {
		respondProspectError(w, err)
		return
	}
	httputil.OK(w, p)
}

// UpdateProspect replaces a prospect's profile fields and identities.
func (h *Handlers) UpdateProspect(w http.ResponseWriter, r *http.Request) {
	orgID := OrgID(r)
	id := chi.URLParam(r, "prospectID")

	p, err := h.prospects.GetByID(r.Context(), orgID, id)
	if err != nil {
		respondProspectError(w, err)
		return
	}

	var input struct {
		FirstName   *string                   `json:"first_name"`
		LastName    *string                   `json:"last_name"`
		Company     *string                   `json:"company"`
		Title       *string                   `json:"title"`
		CompanySize *int                      `json:"company_size"`
		Tags        *[]string                 `json:"tags"`
		Identities  *[]domain.ContactIdentity `json:"identities"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.FirstName != nil {
		p.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		p.LastName = *input.LastName
	}
	if input.Company != nil {
		p.Company = *input.Company
	}
	if input.Title != nil {
		p.Title = *input.Title
	}
	if input.CompanySize != nil {
		p.CompanySize = *input.CompanySize
	}
	if input.Tags != nil {
		p.Tags = *input.Tags
	}
	if input.Identities != nil {
		for _, ident := range *input.Identities {
			if !ident.Channel.Valid() || ident.Value == "" {
				httputil.BadRequest(w, "invalid identity")
				return
			}
		}
		p.Identities = *input.Identities
	}

	if err := h.prospects.Update(r.Context(), p); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, p)
}

// DeleteProspect removes a prospect (right-to-erasure). All open
// enrollments are halted first so no worker dispatches against a deleted
// row; the interaction log is retained for compliance audit.
func (h *Handlers) DeleteProspect(w http.ResponseWriter, r *http.Request) {
	orgID := OrgID(r)
	id := chi.URLParam(r, "prospectID")

	if _, err := h.prospects.GetByID(r.Context(), orgID, id); err != nil {
		respondProspectError(w, err)
		return
	}
	if _, err := h.enrollments.StopAllForProspect(r.Context(), orgID, id, domain.StopManual); err != nil {
		httputil.InternalError(w, err)
		return
	}
	if err := h.prospects.Delete(r.Context(), orgID, id); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ProspectState is the read model combining stage, score and enrollments.
type ProspectState struct {
	ProspectID        string                 `json:"prospect_id"`
	Stage             domain.Stage           `json:"stage"`
	Score             int                    `json:"score"`
	Category          domain.ScoreCategory   `json:"category"`
	ScoreBreakdown    *domain.ScoreBreakdown `json:"score_breakdown,omitempty"`
	AvailableChannels []domain.Channel       `json:"available_channels"`
	ActiveEnrollments []domain.Enrollment    `json:"active_enrollments"`
}

// GetProspectState returns the aggregate view an SDR's screen needs in one
// call: pipeline stage, score, usable channels, open enrollments.
func (h *Handlers) GetProspectState(w http.ResponseWriter, r *http.Request) {
	orgID := OrgID(r)
	id := chi.URLParam(r, "prospectID")

	p, err := h.prospects.GetByID(r.Context(), orgID, id)
	if err != nil {
		respondProspectError(w, err)
		return
	}

	plan, err := h.plans.Plan(r.Context(), orgID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	channels, err := h.capability.AvailableChannels(r.Context(), plan, p)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	open, err := h.enrollments.ListOpenForProspect(r.Context(), orgID, id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	if open == nil {
		open = []domain.Enrollment{}
	}

	state := ProspectState{
		ProspectID:        p.ID,
		Stage:             p.Stage,
		Score:             p.Score,
		Category:          p.Category,
		AvailableChannels: channels,
		ActiveEnrollments: open,
	}
	if h.scores != nil {
		if breakdown, err := h.scores.Breakdown(r.Context(), orgID, id); err == nil {
			state.ScoreBreakdown = &breakdown
		}
	}

	httputil.OK(w, state)
}

// OverrideProspectStage applies an explicit operator stage change.
// Operators may move a prospect backward; opted_out stays absorbing.
func (h *Handlers) OverrideProspectStage(w http.ResponseWriter, r *http.Request) {
	orgID := OrgID(r)
	id := chi.URLParam(r, "prospectID")

	var input struct {
		Stage domain.Stage `json:"stage"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	if !pipeline.Known(input.Stage) {
		httputil.BadRequest(w, "unknown stage: "+string(input.Stage))
		return
	}

	p, err := h.prospects.GetByID(r.Context(), orgID, id)
	if err != nil {
		respondProspectError(w, err)
		return
	}

	next, changed := pipeline.Override(p.Stage, input.Stage)
	if !changed {
		httputil.OK(w, map[string]interface{}{"stage": p.Stage, "changed": false})
		return
	}
	if err := h.prospects.UpdateStage(r.Context(), orgID, id, next); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"stage": next, "changed": true})
}

// ListProspectInteractions returns a prospect's interaction history,
// oldest first.
func (h *Handlers) ListProspectInteractions(w http.ResponseWriter, r *http.Request) {
	list, err := h.interactions.ListByProspect(r.Context(), OrgID(r), chi.URLParam(r, "prospectID"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if list == nil {
		list = []domain.Interaction{}
	}
	httputil.OK(w, map[string]interface{}{"interactions": list})
}

func respondProspectError(w http.ResponseWriter, err error) {
	if errors.Is(err, postgres.ErrProspectNotFound) {
		httputil.NotFound(w, "prospect not found")
		return
	}
	httputil.InternalError(w, err)
}
