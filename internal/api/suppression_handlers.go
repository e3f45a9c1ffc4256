package api

import (
	"errors"
	"net/http"

	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/pkg/httputil"
	"github.com/leadpulse/outreach/internal/service/suppression"
)

// ListSuppressions returns registry entries with filtering and pagination.
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r, 50, 500)
	q := r.URL.Query()

	entries, total, err := h.suppressions.List(r.Context(), OrgID(r), suppression.ListFilter{
		Reason:  q.Get("reason"),
		Source:  q.Get("source"),
		Channel: q.Get("channel"),
		Search:  q.Get("search"),
		Limit:   params.Limit,
		Offset:  params.Offset,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.SuppressionEntry{}
	}
	httputil.OK(w, NewPaginatedResponse(entries, params, total))
}

// AddSuppression manually suppresses an identity.
func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Identity string         `json:"identity"`
		Channel  domain.Channel `json:"channel"`
		Reason   string         `json:"reason"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.Identity == "" {
		httputil.BadRequest(w, "identity is required")
		return
	}
	if !input.Channel.Valid() {
		httputil.BadRequest(w, "unknown channel: "+string(input.Channel))
		return
	}
	reason := domain.SuppressionReason(input.Reason)
	if reason == "" {
		reason = domain.ReasonManual
	}

	err := h.suppressions.Suppress(r.Context(), OrgID(r), input.Identity, input.Channel, reason, domain.SourceManual)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, map[string]string{"identity": suppression.Normalize(input.Identity)})
}

// RemoveSuppression deletes an entry. This is the explicit re-consent
// flow; nothing else ever removes from the registry.
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		httputil.BadRequest(w, "identity query parameter is required")
		return
	}

	if err := h.suppressions.Remove(r.Context(), OrgID(r), identity); err != nil {
		if errors.Is(err, suppression.ErrNotFound) {
			httputil.NotFound(w, "suppression entry not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// GetSuppressionStats returns aggregate registry counts by reason and source.
func (h *Handlers) GetSuppressionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.suppressions.GetStats(r.Context(), OrgID(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}
