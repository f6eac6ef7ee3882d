package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stationgroups_operations_total",
			Help: "Total orchestrated operations by outcome",
		},
		[]string{"operation", "result"},
	)

	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stationgroups_operation_latency_seconds",
			Help:    "Orchestrated operation latency in seconds, including the transaction commit",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	MeasurementsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stationgroups_measurements_recorded_total",
			Help: "Total measurements committed, by owner kind",
		},
		[]string{"owner_kind"},
	)

	TelemetryMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stationgroups_telemetry_messages_total",
			Help: "Total MQTT telemetry messages handled",
		},
		[]string{"result"},
	)

	TelemetryRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stationgroups_telemetry_retries_total",
			Help: "Telemetry measurements retried after an aborted transaction",
		},
	)
)
