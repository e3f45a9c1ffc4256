package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/pkg/httputil"
	"github.com/leadpulse/outreach/internal/service/enrollment"
)

// CreateEnrollment enrolls a prospect into an active sequence.
func (h *Handlers) CreateEnrollment(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ProspectID string `json:"prospect_id"`
		SequenceID string `json:"sequence_id"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.ProspectID == "" || input.SequenceID == "" {
		httputil.BadRequest(w, "prospect_id and sequence_id are required")
		return
	}

	e, err := h.enrollments.Enroll(r.Context(), OrgID(r), input.ProspectID, input.SequenceID)
	if err != nil {
		respondEnrollmentError(w, err)
		return
	}
	httputil.Created(w, e)
}

// GetEnrollment returns one enrollment.
func (h *Handlers) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := h.enrollments.Get(r.Context(), OrgID(r), chi.URLParam(r, "enrollmentID"))
	if err != nil {
		respondEnrollmentError(w, err)
		return
	}
	httputil.OK(w, e)
}

// PauseEnrollment pauses an active enrollment.
func (h *Handlers) PauseEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := h.enrollments.Pause(r.Context(), OrgID(r), chi.URLParam(r, "enrollmentID"))
	if err != nil {
		respondEnrollmentError(w, err)
		return
	}
	httputil.OK(w, e)
}

// ResumeEnrollment resumes a paused enrollment. The current step's delay
// restarts from now; missed time is not made up.
func (h *Handlers) ResumeEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := h.enrollments.Resume(r.Context(), OrgID(r), chi.URLParam(r, "enrollmentID"))
	if err != nil {
		respondEnrollmentError(w, err)
		return
	}
	httputil.OK(w, e)
}

// CancelEnrollment stops an open enrollment permanently.
func (h *Handlers) CancelEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := h.enrollments.Cancel(r.Context(), OrgID(r), chi.URLParam(r, "enrollmentID"), domain.StopManual)
	if err != nil {
		respondEnrollmentError(w, err)
		return
	}
	httputil.OK(w, e)
}

// ListProspectEnrollments returns a prospect's enrollments, open ones only
// when ?open=true.
func (h *Handlers) ListProspectEnrollments(w http.ResponseWriter, r *http.Request) {
	orgID := OrgID(r)
	prospectID := chi.URLParam(r, "prospectID")

	var (
		list []domain.Enrollment
		err  error
	)
	if r.URL.Query().Get("open") == "true" {
		list, err = h.enrollments.ListOpenForProspect(r.Context(), orgID, prospectID)
	} else {
		list, err = h.enrollments.ListForProspect(r.Context(), orgID, prospectID)
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if list == nil {
		list = []domain.Enrollment{}
	}
	httputil.OK(w, map[string]interface{}{"enrollments": list})
}

func respondEnrollmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, enrollment.ErrNotFound),
		errors.Is(err, enrollment.ErrSequenceNotFound),
		errors.Is(err, enrollment.ErrProspectNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, enrollment.ErrAlreadyEnrolled):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, enrollment.ErrSequenceNotActive),
		errors.Is(err, enrollment.ErrSequenceEmpty),
		errors.Is(err, enrollment.ErrProspectSuppressed),
		errors.Is(err, enrollment.ErrProspectOptedOut),
		errors.Is(err, enrollment.ErrInvalidTransition),
		errors.Is(err, enrollment.ErrEnrollmentTerminal):
		httputil.Error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
