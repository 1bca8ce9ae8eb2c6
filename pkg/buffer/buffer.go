// Package buffer provides generic, thread-safe bounded buffers with explicit
// overflow policies.
//
// Per-session packet queues are the subsystem's producer-consumer boundary:
// the Block policy realizes explicit backpressure (the writer waits, the
// session signals the bridge to throttle), while DropOldest realizes the
// documented ring-buffer overwrite allowed for hard-real-time local-mode
// correlation. Drops are never silent: statistics always count them and a
// drop callback can forward them to metrics or logs.
package buffer

import "context"

// Buffer is a generic bounded buffer parameterized by item type T.
type Buffer[T any] interface {
	// Write adds an item to the buffer. Behavior when full depends on the
	// overflow policy.
	Write(item T) error

	// WriteContext behaves like Write but honors context cancellation while
	// blocked (Block policy only; other policies never block).
	WriteContext(ctx context.Context, item T) error

	// Read retrieves and removes one item. Returns false if the buffer is empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items.
	ReadBatch(max int) []T

	// Peek retrieves one item without removing it.
	Peek() (T, bool)

	// Size returns the current number of items.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// Clear removes all items.
	Clear()

	// Stats returns buffer statistics (always collected).
	Stats() *Statistics

	// Close shuts down the buffer and wakes any blocked writers.
	Close() error
}

// OverflowPolicy defines behavior when the buffer reaches capacity.
type OverflowPolicy int

const (
	// DropOldest overwrites the oldest unconsumed item (documented data loss,
	// counted in stats). Used for hard-real-time local-mode feeds.
	DropOldest OverflowPolicy = iota

	// DropNewest discards the incoming item when full.
	DropNewest

	// Block makes Write wait until space is available. This is the explicit
	// backpressure policy for normal stream sessions.
	Block
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	case Block:
		return "Block"
	default:
		return "Unknown"
	}
}

// DropCallback is invoked with each item dropped under an overflow policy.
type DropCallback[T any] func(item T)

// NewRing creates a circular buffer with the given capacity and options.
// Statistics are always collected; Prometheus export is opt-in via WithMetrics.
func NewRing[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newRing(capacity, opts)
}
