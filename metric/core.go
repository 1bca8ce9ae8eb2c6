package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains platform-level metrics shared by the pipeline.
type Metrics struct {
	PacketsReceived      *prometheus.CounterVec
	PacketsDropped       *prometheus.CounterVec
	CorrelationsComputed *prometheus.CounterVec
	CorrelationDuration  *prometheus.HistogramVec
	SignificanceVerdicts *prometheus.CounterVec
	DiscoveryDuration    prometheus.Histogram

	// NATS health
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		PacketsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridgekit",
				Subsystem: "stream",
				Name:      "packets_received_total",
				Help:      "Total sensor packets received per session",
			},
			[]string{"session", "domain"},
		),

		PacketsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridgekit",
				Subsystem: "stream",
				Name:      "packets_dropped_total",
				Help:      "Packets dropped under the documented ring-buffer overwrite policy",
			},
			[]string{"session", "domain"},
		),

		CorrelationsComputed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridgekit",
				Subsystem: "correlation",
				Name:      "computed_total",
				Help:      "Correlations computed by mode and outcome",
			},
			[]string{"mode", "status"},
		),

		CorrelationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bridgekit",
				Subsystem: "correlation",
				Name:      "duration_seconds",
				Help:      "Correlation computation latency",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"mode"},
		),

		SignificanceVerdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridgekit",
				Subsystem: "significance",
				Name:      "verdicts_total",
				Help:      "Significance verdicts by outcome",
			},
			[]string{"verdict"},
		),

		DiscoveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "bridgekit",
				Subsystem: "registry",
				Name:      "discovery_duration_seconds",
				Help:      "Registry discovery query latency",
				Buckets:   prometheus.DefBuckets,
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bridgekit",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (1=connected, 0=disconnected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bridgekit",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total NATS reconnect events",
			},
		),
	}
}
