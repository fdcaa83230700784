package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "outreach",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of HTTP requests to the transport provider.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider_name", "method"},
	)

	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "dispatch_total",
			Help:      "Dispatch attempts by channel and normalized result.",
		},
		[]string{"channel", "result"}, // result: success, failure, precondition, timeout, panic
	)
)
