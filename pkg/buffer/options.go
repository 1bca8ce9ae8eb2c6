package buffer

import (
	"github.com/c360/bridgekit/metric"
)

// Option configures buffer behavior using the functional options pattern.
type Option[T any] func(*options[T])

type options[T any] struct {
	overflowPolicy OverflowPolicy
	dropCallback   DropCallback[T]

	// metricsReg is optional; when set, buffer stats are also exported as
	// Prometheus metrics labeled with metricsPrefix.
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithOverflowPolicy sets the overflow behavior. Defaults to Block: sessions
// must opt in to data loss, never the other way around.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(opts *options[T]) {
		opts.overflowPolicy = policy
	}
}

// WithMetrics enables Prometheus export of buffer statistics.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(opts *options[T]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithDropCallback sets a callback invoked with each dropped item.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *options[T]) {
		opts.dropCallback = callback
	}
}

func applyOptions[T any](opts ...Option[T]) *options[T] {
	o := &options[T]{
		overflowPolicy: Block,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
