package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures the full routing tree.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.leadpulse.io", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Organization-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Unauthenticated: liveness and Prometheus scrape.
	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	// Provider webhooks carry the org id in the body, not a header.
	r.Post("/webhooks/{provider}", h.HandleProviderWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(OrgContextMiddleware)

		r.Route("/prospects", func(r chi.Router) {
			r.Post("/", h.CreateProspect)
			r.Get("/{prospectID}", h.GetProspect)
			r.Put("/{prospectID}", h.UpdateProspect)
			r.Delete("/{prospectID}", h.DeleteProspect)
			r.Get("/{prospectID}/state", h.GetProspectState)
			r.Patch("/{prospectID}/stage", h.OverrideProspectStage)
			r.Get("/{prospectID}/interactions", h.ListProspectInteractions)
			r.Get("/{prospectID}/enrollments", h.ListProspectEnrollments)
		})

		r.Route("/sequences", func(r chi.Router) {
			r.Get("/", h.ListSequences)
			r.Post("/", h.CreateSequence)
			r.Get("/{sequenceID}", h.GetSequence)
			r.Put("/{sequenceID}/steps", h.ReplaceSequenceSteps)
			r.Post("/{sequenceID}/activate", h.ActivateSequence)
			r.Post("/{sequenceID}/archive", h.ArchiveSequence)
		})

		r.Route("/enrollments", func(r chi.Router) {
			r.Post("/", h.CreateEnrollment)
			r.Get("/{enrollmentID}", h.GetEnrollment)
			r.Post("/{enrollmentID}/pause", h.PauseEnrollment)
			r.Post("/{enrollmentID}/resume", h.ResumeEnrollment)
			r.Post("/{enrollmentID}/cancel", h.CancelEnrollment)
		})

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.ListSuppressions)
			r.Post("/", h.AddSuppression)
			r.Delete("/", h.RemoveSuppression)
			r.Get("/stats", h.GetSuppressionStats)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Put("/{ref}", h.UpsertTemplate)
			r.Get("/{ref}", h.GetTemplate)
		})

		// Normalized event submission for internal producers.
		r.Post("/events", h.IngestEvent)
	})

	return r
}
