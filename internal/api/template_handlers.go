package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leadpulse/outreach/internal/content"
	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/pkg/httputil"
)

func channelOrEmail(c string) domain.Channel {
	ch := domain.Channel(c)
	if ch.Valid() {
		return ch
	}
	return domain.ChannelEmail
}

// UpsertTemplate creates or replaces a content template and drops any
// cached compilation of it.
func (h *Handlers) UpsertTemplate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Channel string `json:"channel"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.Body == "" {
		httputil.BadRequest(w, "body is required")
		return
	}

	tpl := &content.Template{
		Ref:            chi.URLParam(r, "ref"),
		OrganizationID: OrgID(r),
		Channel:        channelOrEmail(input.Channel),
		Subject:        input.Subject,
		Body:           input.Body,
	}
	if err := h.templates.Upsert(r.Context(), tpl); err != nil {
		httputil.InternalError(w, err)
		return
	}
	if h.renderCache != nil {
		h.renderCache.Invalidate(tpl.OrganizationID, tpl.Ref)
	}
	httputil.OK(w, tpl)
}

// GetTemplate returns one template by ref.
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.templates.GetByRef(r.Context(), OrgID(r), chi.URLParam(r, "ref"))
	if err != nil {
		if errors.Is(err, content.ErrTemplateNotFound) {
			httputil.NotFound(w, "template not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, tpl)
}
