package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchWriteMs = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "snuba_consumer",
			Name:      "batch_write_ms",
			Help:      "Wall-clock duration of one storage's bulk INSERT",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 12),
		},
		[]string{"storage"},
	)

	batchWriteMsgs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snuba_consumer",
			Name:      "batch_write_msgs_total",
			Help:      "Total number of messages written per storage close()",
		},
		[]string{"storage"},
	)

	maxLatencyMs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "snuba_consumer",
			Name:      "max_latency_ms",
			Help:      "Max broker-to-write latency observed in the most recent close()",
		},
		[]string{"storage"},
	)

	latencyMs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "snuba_consumer",
			Name:      "latency_ms",
			Help:      "Mean broker-to-write latency observed in the most recent close()",
		},
		[]string{"storage"},
	)

	maxEndToEndLatencyMs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "snuba_consumer",
			Name:      "max_end_to_end_latency_ms",
			Help:      "Max origin-to-write latency observed in the most recent close(), when origin_timestamp is present",
		},
		[]string{"storage"},
	)

	endToEndLatencyMs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "snuba_consumer",
			Name:      "end_to_end_latency_ms",
			Help:      "Mean origin-to-write latency observed in the most recent close(), when origin_timestamp is present",
		},
		[]string{"storage"},
	)

	ignorableWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snuba_consumer",
			Name:      "ignorable_write_failures_total",
			Help:      "Total number of insert and replacement-delivery failures swallowed for storages marked ignore_errors",
		},
		[]string{"storage"},
	)
)
