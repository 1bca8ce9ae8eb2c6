package registry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/bridgekit/metric"
)

// registryMetrics holds Prometheus metrics for the registry. Nil registry
// yields no-op local metrics (nil input = nil feature).
type registryMetrics struct {
	registrations     prometheus.Counter
	heartbeats        prometheus.Counter
	ratingsRejected   prometheus.Counter
	authFailures      prometheus.Counter
	discoveryDuration prometheus.Observer
}

func newRegistryMetrics(registry *metric.MetricsRegistry) (*registryMetrics, error) {
	m := &registryMetrics{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridgekit", Subsystem: "registry", Name: "registrations_total",
			Help: "Total bridge registrations accepted",
		}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridgekit", Subsystem: "registry", Name: "heartbeats_total",
			Help: "Total heartbeats applied",
		}),
		ratingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridgekit", Subsystem: "registry", Name: "ratings_rejected_total",
			Help: "Ratings rejected by the per-rater limit",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridgekit", Subsystem: "registry", Name: "auth_failures_total",
			Help: "Failed bridge authentication handshakes",
		}),
	}

	if registry == nil {
		m.discoveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "noop_discovery_duration_seconds",
		})
		return m, nil
	}

	m.discoveryDuration = registry.CoreMetrics().DiscoveryDuration

	if err := registry.RegisterCounter("registry", "registrations", m.registrations); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("registry", "heartbeats", m.heartbeats); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("registry", "ratings_rejected", m.ratingsRejected); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("registry", "auth_failures", m.authFailures); err != nil {
		return nil, err
	}

	return m, nil
}
