package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/bridgekit/metric"
)

// ringMetrics holds Prometheus metrics for one buffer instance.
type ringMetrics struct {
	writes      prometheus.Counter
	reads       prometheus.Counter
	drops       prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newRingMetrics(registry *metric.MetricsRegistry, prefix string) (*ringMetrics, error) {
	labels := prometheus.Labels{"component": prefix}
	m := &ringMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridgekit", Subsystem: "buffer", Name: "writes_total",
			ConstLabels: labels, Help: "Total buffer write operations",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridgekit", Subsystem: "buffer", Name: "reads_total",
			ConstLabels: labels, Help: "Total buffer read operations",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridgekit", Subsystem: "buffer", Name: "drops_total",
			ConstLabels: labels, Help: "Items dropped under the overflow policy",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridgekit", Subsystem: "buffer", Name: "size",
			ConstLabels: labels, Help: "Current items in buffer",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridgekit", Subsystem: "buffer", Name: "utilization",
			ConstLabels: labels, Help: "Buffer utilization (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(prefix, "buffer_writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "buffer_reads", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "buffer_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *ringMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.updateSize(size, capacity)
}

func (m *ringMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.updateSize(size, capacity)
}

func (m *ringMetrics) recordDrop() {
	m.drops.Inc()
}

func (m *ringMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	if capacity > 0 {
		m.utilization.Set(float64(size) / float64(capacity))
	}
}
