package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leadpulse/outreach/internal/ingest"
	"github.com/leadpulse/outreach/internal/pkg/httputil"
)

// IngestEvent accepts a normalized event from an internal producer. The
// org id comes from the request context like every other /api route.
func (h *Handlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev ingest.WebhookEvent
	if !httputil.Decode(w, r, &ev) {
		return
	}
	ev.OrganizationID = OrgID(r)
	h.ingestOne(w, r, &ev)
}

// HandleProviderWebhook accepts a raw provider callback. Providers cannot
// set tenant headers, so the org id rides in the event body. The response
// is 2xx for duplicates too; providers treat anything else as undelivered
// and retry forever.
func (h *Handlers) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	var ev ingest.WebhookEvent
	if !httputil.Decode(w, r, &ev) {
		return
	}
	if ev.OrganizationID == "" {
		httputil.BadRequest(w, "organization_id is required")
		return
	}
	if ev.Payload == nil {
		ev.Payload = map[string]string{}
	}
	ev.Payload["provider"] = chi.URLParam(r, "provider")
	h.ingestOne(w, r, &ev)
}

func (h *Handlers) ingestOne(w http.ResponseWriter, r *http.Request, ev *ingest.WebhookEvent) {
	ix, fresh, err := h.ingestor.Ingest(r.Context(), ev)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if !fresh {
		httputil.OK(w, map[string]interface{}{"accepted": true, "duplicate": true})
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted":       true,
		"duplicate":      false,
		"interaction_id": ix.ID,
	})
}
