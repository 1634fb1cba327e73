// Package metrics defines the Prometheus counters the core exposes,
// grounded on the reference project's internal/metrics/metrics.go
// per-stage counter convention (promauto.NewCounterVec, Namespace/
// Subsystem/Name), relabeled from chain,network to chain_id since this
// module keys chains by an integer id rather than a chain+network pair.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feeindexer",
		Subsystem: "supervisor",
		Name:      "ticks_total",
		Help:      "Total worker ticks executed",
	}, []string{"chain_id"})

	TickErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feeindexer",
		Subsystem: "supervisor",
		Name:      "tick_errors_total",
		Help:      "Total ticks that failed to commit a window",
	}, []string{"chain_id"})

	TickSkippedOverlapTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feeindexer",
		Subsystem: "supervisor",
		Name:      "tick_skipped_overlap_total",
		Help:      "Total scheduled ticks skipped because the previous tick was still in flight",
	}, []string{"chain_id"})

	TickDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "feeindexer",
		Subsystem: "supervisor",
		Name:      "tick_duration_seconds",
		Help:      "Tick processing duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"chain_id"})

	WindowsCommittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feeindexer",
		Subsystem: "processor",
		Name:      "windows_committed_total",
		Help:      "Total block-range windows successfully committed",
	}, []string{"chain_id"})

	EventsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feeindexer",
		Subsystem: "processor",
		Name:      "events_ingested_total",
		Help:      "Total FeeEvent rows inserted",
	}, []string{"chain_id"})

	EventsDuplicateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feeindexer",
		Subsystem: "processor",
		Name:      "events_duplicate_total",
		Help:      "Total decoded logs skipped as already present",
	}, []string{"chain_id"})

	DecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feeindexer",
		Subsystem: "processor",
		Name:      "decode_errors_total",
		Help:      "Total logs that failed to decode as FeesCollected",
	}, []string{"chain_id"})

	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feeindexer",
		Subsystem: "chain",
		Name:      "rpc_calls_total",
		Help:      "Total RPC calls made, by method and status",
	}, []string{"chain_id", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feeindexer",
		Subsystem: "chain",
		Name:      "rpc_rate_limit_waits_total",
		Help:      "Total times an RPC call had to wait for a rate-limit token",
	}, []string{"chain_id"})

	CircuitBreakerOpenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feeindexer",
		Subsystem: "chain",
		Name:      "circuit_breaker_open_total",
		Help:      "Total times a chain's circuit breaker tripped open",
	}, []string{"chain_id"})
)
