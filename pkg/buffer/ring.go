package buffer

import (
	"context"
	"sync"

	"github.com/c360/bridgekit/errors"
)

// ring is a thread-safe circular buffer with configurable overflow policy.
type ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	stats    *Statistics
	metrics  *ringMetrics
	opts     *options[T]

	notFull *sync.Cond // Block policy writers wait here
	closed  bool
}

func newRing[T any](capacity int, opts *options[T]) (*ring[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *ringMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newRingMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "newRing", "metrics registration")
		}
	}

	rb := &ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}
	rb.notFull = sync.NewCond(&rb.mu)

	return rb, nil
}

func (rb *ring[T]) Write(item T) error {
	return rb.WriteContext(context.Background(), item)
}

func (rb *ring[T]) WriteContext(ctx context.Context, item T) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed")
	}

	if rb.size == rb.capacity {
		switch rb.opts.overflowPolicy {
		case DropOldest:
			dropped := rb.items[rb.tail]
			rb.tail = (rb.tail + 1) % rb.capacity
			rb.size--
			rb.recordDrop()
			if rb.opts.dropCallback != nil {
				defer rb.opts.dropCallback(dropped)
			}

		case DropNewest:
			rb.recordDrop()
			if rb.opts.dropCallback != nil {
				defer rb.opts.dropCallback(item)
			}
			return nil

		case Block:
			if err := rb.waitNotFull(ctx); err != nil {
				return err
			}
		}
	}

	rb.items[rb.head] = item
	rb.head = (rb.head + 1) % rb.capacity
	rb.size++

	rb.stats.Write()
	rb.stats.UpdateSize(int64(rb.size))
	if rb.metrics != nil {
		rb.metrics.recordWrite(rb.size, rb.capacity)
	}

	return nil
}

// waitNotFull blocks until space is available, the buffer closes, or ctx is
// cancelled. Caller holds rb.mu.
func (rb *ring[T]) waitNotFull(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				rb.notFull.Broadcast()
			case <-done:
			}
		}()
	}

	for rb.size == rb.capacity && !rb.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		rb.notFull.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if rb.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed during blocking wait")
	}
	return nil
}

func (rb *ring[T]) recordDrop() {
	rb.stats.Overflow()
	rb.stats.Drop()
	if rb.metrics != nil {
		rb.metrics.recordDrop()
	}
}

func (rb *ring[T]) Read() (T, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	if rb.size == 0 {
		return zero, false
	}

	item := rb.items[rb.tail]
	rb.items[rb.tail] = zero // release for GC
	rb.tail = (rb.tail + 1) % rb.capacity
	rb.size--

	rb.stats.Read()
	rb.stats.UpdateSize(int64(rb.size))
	if rb.metrics != nil {
		rb.metrics.recordRead(rb.size, rb.capacity)
	}

	rb.notFull.Signal()
	return item, true
}

func (rb *ring[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return nil
	}

	n := max
	if n > rb.size {
		n = rb.size
	}

	result := make([]T, n)
	var zero T
	for i := 0; i < n; i++ {
		result[i] = rb.items[rb.tail]
		rb.items[rb.tail] = zero
		rb.tail = (rb.tail + 1) % rb.capacity
		rb.size--
		rb.stats.Read()
	}

	rb.stats.UpdateSize(int64(rb.size))
	if rb.metrics != nil {
		rb.metrics.updateSize(rb.size, rb.capacity)
	}

	rb.notFull.Broadcast()
	return result
}

func (rb *ring[T]) Peek() (T, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var zero T
	if rb.size == 0 {
		return zero, false
	}
	return rb.items[rb.tail], true
}

func (rb *ring[T]) Size() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

func (rb *ring[T]) Capacity() int {
	return rb.capacity
}

func (rb *ring[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	for i := range rb.items {
		rb.items[i] = zero
	}
	rb.head, rb.tail, rb.size = 0, 0, 0

	rb.stats.UpdateSize(0)
	if rb.metrics != nil {
		rb.metrics.updateSize(0, rb.capacity)
	}
	rb.notFull.Broadcast()
}

func (rb *ring[T]) Stats() *Statistics {
	return rb.stats
}

func (rb *ring[T]) Close() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return nil
	}
	rb.closed = true
	rb.notFull.Broadcast()
	return nil
}
