package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// processedTotal counts pipeline outcomes.
	// Labels: outcome (processed, not_cancellation, duplicate)
	processedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cancelflow",
			Subsystem: "pipeline",
			Name:      "emails_total",
			Help:      "Total number of inbound emails by outcome",
		},
		[]string{"outcome"},
	)

	// methodTotal counts which extraction path produced each result.
	// Labels: method (heuristic, inference)
	methodTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cancelflow",
			Subsystem: "pipeline",
			Name:      "extraction_method_total",
			Help:      "Total number of extractions by method",
		},
		[]string{"method"},
	)

	// deliverySyncTotal counts synchronous delivery attempts.
	// Labels: result (delivered, queued, dropped)
	deliverySyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cancelflow",
			Subsystem: "pipeline",
			Name:      "delivery_sync_total",
			Help:      "Total number of synchronous delivery attempts by result",
		},
		[]string{"result"},
	)
)
