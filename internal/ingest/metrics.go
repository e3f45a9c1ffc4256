package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Inbound events accepted, by canonical type.",
	}, []string{"type"})

	duplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "ingest",
		Name:      "duplicates_total",
		Help:      "Provider webhook retries dropped on the event id.",
	})

	processedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "ingest",
		Name:      "processed_total",
		Help:      "Queued interactions consumed, by outcome.",
	}, []string{"outcome"})
)
