package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ucptrace_events_ingested_total",
			Help: "Total number of UCP events ingested",
		},
		[]string{"transport", "event_type"},
	)

	ClassificationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ucptrace_classification_fallbacks_total",
			Help: "Events that fell through to the generic request/error types",
		},
	)

	// Buffer metrics
	BufferDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ucptrace_buffer_depth",
			Help: "Current number of events waiting in the write buffer",
		},
	)

	BufferEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ucptrace_buffer_evictions_total",
			Help: "Oldest events dropped because the buffer was at capacity",
		},
	)

	// Delivery metrics
	FlushBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ucptrace_flush_batches_total",
			Help: "Total number of delivery attempts",
		},
	)

	FlushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ucptrace_flush_failures_total",
			Help: "Delivery attempts that failed entirely",
		},
	)

	RowsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ucptrace_rows_delivered_total",
			Help: "Rows accepted by the destination",
		},
	)

	RowsRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ucptrace_rows_requeued_total",
			Help: "Rows re-queued after a rejected or failed delivery",
		},
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ucptrace_delivery_duration_seconds",
			Help:    "Duration of destination delivery calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Collector endpoint metrics
	SignalsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ucptrace_signals_received_total",
			Help: "Transport signals received on the collector endpoint",
		},
		[]string{"status"},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ucptrace_rate_limit_hits_total",
			Help: "Total number of rate limit hits on the signal endpoint",
		},
	)
)
