package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "scheduler_invocations_total",
			Help:      "Scheduler invocations by lane and action.",
		},
		[]string{"lane", "action"}, // action: no_op, skipped, deferred, sent, failed, released
	)

	noOpTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "scheduler_no_op_total",
			Help:      "No-op invocations by lane and reason.",
		},
		[]string{"lane", "reason"},
	)

	invocationDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "outreach",
			Name:      "scheduler_invocation_duration_seconds",
			Help:      "Duration of one scheduler invocation, excluding jitter.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"lane"},
	)

	claimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "claims_total",
			Help:      "Claim attempts by result.",
		},
		[]string{"result"}, // won, lost, error
	)

	statusWriteRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "status_write_retries_total",
			Help:      "Retries of terminal status writes after transient store errors.",
		},
	)

	splitBrainTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "status_write_failures_total",
			Help:      "Outcomes whose terminal status could not be written after all retries.",
		},
	)

	reclaimedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "reclaimed_records_total",
			Help:      "Stuck sending records resolved by the reclaimer.",
		},
		[]string{"resolution"}, // sent, failed, pending
	)
)
