package api

import (
	"context"
	"net/http"

	"github.com/leadpulse/outreach/internal/pkg/httputil"
)

type orgContextKey struct{}

// OrgContextMiddleware resolves the calling organization and rejects
// requests without one. Everything under /api is tenant-scoped, so the
// org id is mandatory: from the X-Organization-ID header first, then the
// org_id query parameter.
func OrgContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := r.Header.Get("X-Organization-ID")
		if orgID == "" {
			orgID = r.URL.Query().Get("org_id")
		}
		if orgID == "" {
			httputil.Error(w, http.StatusUnauthorized, "organization context required")
			return
		}
		ctx := context.WithValue(r.Context(), orgContextKey{}, orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OrgID returns the organization id resolved by OrgContextMiddleware.
func OrgID(r *http.Request) string {
	if id, ok := r.Context().Value(orgContextKey{}).(string); ok {
		return id
	}
	return ""
}
