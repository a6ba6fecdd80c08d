package transform

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var invalidMessagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "snuba_consumer",
		Name:      "invalid_messages_total",
		Help:      "Total number of messages that failed to decode or process",
	},
	[]string{"topic", "reason"},
)

var validationFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "snuba_consumer",
		Name:      "schema_validation_failures_total",
		Help:      "Total number of sampled schema validation failures",
	},
	[]string{"topic"},
)
