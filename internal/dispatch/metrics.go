package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "dispatch",
		Name:      "sent_total",
		Help:      "Steps successfully delivered, by channel.",
	}, []string{"channel"})

	skippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "dispatch",
		Name:      "skipped_total",
		Help:      "Steps skipped without a send, by cause.",
	}, []string{"cause"})

	failedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "dispatch",
		Name:      "failed_total",
		Help:      "Permanent delivery failures, by channel.",
	}, []string{"channel"})

	sendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "outreach",
		Subsystem: "dispatch",
		Name:      "send_duration_seconds",
		Help:      "Provider send latency, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel"})

	claimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "dispatch",
		Name:      "claimed_total",
		Help:      "Enrollments claimed from the due queue.",
	})
)
