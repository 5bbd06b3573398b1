// SPDX-License-Identifier: MIT
package ringbuf

import "fmt"

// ArrayWriter is the producer end of a typed queue.
type ArrayWriter[T Element] struct {
	rb *RingBuffer[T]
}

// NewArrayWriter wraps rb. It fails if rb was not attached.
func NewArrayWriter[T Element](rb *RingBuffer[T]) (*ArrayWriter[T], error) {
	if rb == nil {
		return nil, fmt.Errorf("%w: nil ring buffer", ErrInvalidStorage)
	}
	return &ArrayWriter[T]{rb: rb}, nil
}

// Enqueue pushes buf and returns the number of elements written. Callers
// that need buf to land whole should check AvailableWrite first and retry
// later rather than spin.
func (w *ArrayWriter[T]) Enqueue(buf []T) int {
	return w.rb.Push(buf)
}

// AvailableWrite reports how many elements Enqueue could currently accept.
func (w *ArrayWriter[T]) AvailableWrite() int {
	return w.rb.AvailableWrite()
}

// Capacity returns the underlying queue capacity.
func (w *ArrayWriter[T]) Capacity() int {
	return w.rb.Capacity()
}

// ArrayReader is the consumer end of a typed queue.
type ArrayReader[T Element] struct {
	rb *RingBuffer[T]
}

// NewArrayReader wraps rb. It fails if rb was not attached.
func NewArrayReader[T Element](rb *RingBuffer[T]) (*ArrayReader[T], error) {
	if rb == nil {
		return nil, fmt.Errorf("%w: nil ring buffer", ErrInvalidStorage)
	}
	return &ArrayReader[T]{rb: rb}, nil
}

// Dequeue pops into buf. It returns (0, false) without touching buf when the
// queue is empty, otherwise the number of elements read and true.
func (r *ArrayReader[T]) Dequeue(buf []T) (int, bool) {
	if r.rb.Empty() {
		return 0, false
	}
	return r.rb.Pop(buf), true
}

// AvailableRead reports how many elements are queued.
func (r *ArrayReader[T]) AvailableRead() int {
	return r.rb.AvailableRead()
}

// Capacity returns the underlying queue capacity.
func (r *ArrayReader[T]) Capacity() int {
	return r.rb.Capacity()
}
