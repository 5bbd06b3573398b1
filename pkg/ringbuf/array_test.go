// SPDX-License-Identifier: MIT
package ringbuf

import (
	"errors"
	"testing"
)

func TestArrayAdapters(t *testing.T) {
	rb := newFloat32(t, 4)

	w, err := NewArrayWriter(rb)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewArrayReader(rb)
	if err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 4)
	if n, ok := r.Dequeue(out); ok || n != 0 {
		t.Errorf("Dequeue on empty = (%d, %v), expected (0, false)", n, ok)
	}

	if n := w.Enqueue([]float32{1, 2}); n != 2 {
		t.Fatalf("Enqueue returned %d, expected 2", n)
	}
	if w.AvailableWrite() != 2 || r.AvailableRead() != 2 {
		t.Errorf("AvailableWrite=%d AvailableRead=%d, expected 2/2", w.AvailableWrite(), r.AvailableRead())
	}

	n, ok := r.Dequeue(out)
	if !ok || n != 2 || out[0] != 1 || out[1] != 2 {
		t.Errorf("Dequeue = (%d, %v) %v", n, ok, out[:2])
	}
}

func TestArrayAdapters_Nil(t *testing.T) {
	if _, err := NewArrayWriter[float32](nil); !errors.Is(err, ErrInvalidStorage) {
		t.Errorf("expected ErrInvalidStorage, got %v", err)
	}
	if _, err := NewArrayReader[float32](nil); !errors.Is(err, ErrInvalidStorage) {
		t.Errorf("expected ErrInvalidStorage, got %v", err)
	}
}

func TestArrayReader_DequeueEmptyLeavesBuffer(t *testing.T) {
	rb := newFloat32(t, 2)
	r, _ := NewArrayReader(rb)

	out := []float32{7, 7}
	r.Dequeue(out)
	if out[0] != 7 || out[1] != 7 {
		t.Errorf("Dequeue on empty modified buffer: %v", out)
	}
}
