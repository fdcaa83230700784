package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	digestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "digest",
		Name:      "runs_total",
		Help:      "Digest checks by result.",
	}, []string{"result"})

	digestEntriesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "outreach",
		Subsystem: "digest",
		Name:      "entries_delivered_total",
		Help:      "Queued entries included in a delivered digest.",
	})
)
