// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderQuoteDuration tracks per-provider quote latency
	ProviderQuoteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bridge_provider_quote_duration_seconds",
		Help:    "Time taken by each bridge provider to answer a quote request",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	// ProviderQuoteErrors counts failed or discarded provider quotes
	ProviderQuoteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_provider_quote_errors_total",
		Help: "Provider quote calls that errored, timed out, or returned no route",
	}, []string{"provider", "reason"})

	// QuotesSelected counts winning quotes by provider and priority
	QuotesSelected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_quotes_selected_total",
		Help: "Quotes chosen as the best route, labeled by provider and priority",
	}, []string{"provider", "priority"})

	// PlansCreated counts consolidation plans successfully quoted
	PlansCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consolidation_plans_created_total",
		Help: "Consolidation plans persisted after a successful quote",
	})

	// ExecutionsStarted counts consolidation executions dispatched
	ExecutionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consolidation_executions_started_total",
		Help: "Consolidation executions handed off to the worker queue",
	})

	// StatusPollCycles counts status poller sweeps
	StatusPollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consolidation_status_poll_cycles_total",
		Help: "Completed sweeps of the execution status poller",
	})
)
