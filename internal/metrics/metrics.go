package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsDetected counts bridge events detected on each chain
	EventsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_events_detected_total",
			Help: "Total number of bridge events detected",
		},
		[]string{"chain", "event_name"},
	)

	// RelaysTotal counts relay transactions by asset and outcome
	RelaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_relays_total",
			Help: "Total number of relay transactions submitted",
		},
		[]string{"asset", "status"},
	)

	// ErrorsTotal counts errors by component and type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// LastProcessedBlock tracks the last processed block number per chain and asset
	LastProcessedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_last_processed_block",
			Help: "Last processed block number by chain and asset",
		},
		[]string{"chain", "asset"},
	)

	// ScanDuration tracks how long a historical scan pass takes
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_scan_duration_seconds",
			Help:    "Historical scan pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "asset"},
	)

	// ErroredEvents tracks the number of events stuck in ERROR awaiting retry
	ErroredEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_errored_events",
			Help: "Number of bridge events in ERROR status with no confirmed relay",
		},
	)
)
