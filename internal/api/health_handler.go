package api

import (
	"net/http"
	"time"

	"github.com/leadpulse/outreach/internal/pkg/httputil"
)

var startTime = time.Now()

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(startTime).Seconds()),
	})
}
