// SPDX-License-Identifier: MIT
package ringbuf

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// RingBuffer is a fixed capacity circular queue of T. Exactly one goroutine
// may call Push and exactly one (other) goroutine may call Pop. Neither call
// blocks, allocates or takes a lock.
type RingBuffer[T Element] struct {
	write   *atomic.Uint32
	read    *atomic.Uint32
	storage []T
	slots   uint32 // capacity + 1
}

// New attaches a RingBuffer to a region created by NewRegion (or received
// from the other side of a channel). The region's element tag must match T.
func New[T Element](r Region) (*RingBuffer[T], error) {
	if r.Elem != TypeOf[T]() {
		return nil, fmt.Errorf("%w: region holds %s, want %s", ErrTypeMismatch, r.Elem, TypeOf[T]())
	}

	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	n := len(r.Bytes) - HeaderSize
	if n < 2*elemSize || n%elemSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes cannot hold whole %s slots", ErrInvalidStorage, len(r.Bytes), r.Elem)
	}

	base := unsafe.Pointer(&r.Bytes[0])
	if uintptr(base)%8 != 0 {
		return nil, fmt.Errorf("%w: region is not 8-byte aligned", ErrInvalidStorage)
	}

	slots := n / elemSize
	return &RingBuffer[T]{
		write:   (*atomic.Uint32)(base),
		read:    (*atomic.Uint32)(unsafe.Add(base, 4)),
		storage: unsafe.Slice((*T)(unsafe.Add(base, HeaderSize)), slots),
		slots:   uint32(slots),
	}, nil
}

// Push copies as many elements as fit from elements into the queue and
// returns how many were written. It returns 0 when the queue is full.
func (rb *RingBuffer[T]) Push(elements []T) int {
	rd := rb.read.Load()
	wr := rb.write.Load()

	if (wr+1)%rb.slots == rd {
		return 0
	}

	toWrite := min(rb.availableWrite(rd, wr), len(elements))
	firstPart := min(int(rb.slots-wr), toWrite)
	secondPart := toWrite - firstPart

	copy(rb.storage[wr:int(wr)+firstPart], elements[:firstPart])
	copy(rb.storage[:secondPart], elements[firstPart:toWrite])

	// Publish to the reader.
	rb.write.Store((wr + uint32(toWrite)) % rb.slots)

	return toWrite
}

// Pop copies up to len(elements) queued elements into the front of elements
// and returns how many were read. It returns 0 when the queue is empty.
func (rb *RingBuffer[T]) Pop(elements []T) int {
	rd := rb.read.Load()
	wr := rb.write.Load()

	if wr == rd {
		return 0
	}

	toRead := min(rb.availableRead(rd, wr), len(elements))
	firstPart := min(int(rb.slots-rd), toRead)
	secondPart := toRead - firstPart

	copy(elements[:firstPart], rb.storage[rd:int(rd)+firstPart])
	copy(elements[firstPart:toRead], rb.storage[:secondPart])

	rb.read.Store((rd + uint32(toRead)) % rb.slots)

	return toRead
}

// Empty reports whether there is nothing to read. On the reader side this
// may be stale: a concurrent Push can land right after it returns.
func (rb *RingBuffer[T]) Empty() bool {
	return rb.write.Load() == rb.read.Load()
}

// Full reports whether a Push would write nothing. On the writer side this
// may be stale.
func (rb *RingBuffer[T]) Full() bool {
	rd := rb.read.Load()
	wr := rb.write.Load()
	return (wr+1)%rb.slots == rd
}

// Capacity is the number of elements the queue can hold at once.
func (rb *RingBuffer[T]) Capacity() int {
	return int(rb.slots) - 1
}

// AvailableRead is advisory; it may under-report when a Push is in flight.
func (rb *RingBuffer[T]) AvailableRead() int {
	return rb.availableRead(rb.read.Load(), rb.write.Load())
}

// AvailableWrite is advisory; it may under-report when a Pop is in flight.
func (rb *RingBuffer[T]) AvailableWrite() int {
	return rb.availableWrite(rb.read.Load(), rb.write.Load())
}

func (rb *RingBuffer[T]) availableRead(rd, wr uint32) int {
	return int((wr + rb.slots - rd) % rb.slots)
}

func (rb *RingBuffer[T]) availableWrite(rd, wr uint32) int {
	return rb.Capacity() - rb.availableRead(rd, wr)
}
