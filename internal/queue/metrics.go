package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// claimedTotal counts queue items claimed by the worker.
	claimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cancelflow",
			Subsystem: "queue",
			Name:      "items_claimed_total",
			Help:      "Total number of delivery queue items claimed",
		},
	)

	// deliveriesTotal counts delivery outcomes.
	// Labels: outcome (succeeded, rescheduled, failed)
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cancelflow",
			Subsystem: "queue",
			Name:      "deliveries_total",
			Help:      "Total number of delivery attempts by outcome",
		},
		[]string{"outcome"},
	)
)
