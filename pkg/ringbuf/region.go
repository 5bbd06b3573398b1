// SPDX-License-Identifier: MIT
//
// Package ringbuf provides a wait-free single-producer/single-consumer ring
// buffer laid out over a flat byte region, plus typed array adapters used to
// move fixed-width snapshots between a control goroutine and the real-time
// render callback.
//
// Region layout:
//
//	[0:4]   write cursor (uint32, atomic)
//	[4:8]   read cursor  (uint32, atomic)
//	[8:]    capacity+1 element slots
//
// One slot is always left empty so a full buffer can be told apart from an
// empty one. The writer only ever stores the write cursor and the reader only
// ever stores the read cursor.
package ringbuf

import (
	"errors"
	"fmt"
	"unsafe"
)

// HeaderSize is the number of bytes reserved for the two cursors.
const HeaderSize = 8

var (
	// ErrInvalidStorage is returned when a region is too small, misaligned or
	// does not hold a whole number of element slots.
	ErrInvalidStorage = errors.New("ringbuf: invalid storage region")
	// ErrTypeMismatch is returned when a region is attached with an element
	// type other than the one it was created for.
	ErrTypeMismatch = errors.New("ringbuf: element type mismatch")
)

// Element is the set of concrete numeric types a ring buffer can carry.
type Element interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// ElemType tags a Region with the element type it was sized for.
type ElemType uint8

const (
	ElemInvalid ElemType = iota
	ElemInt8
	ElemInt16
	ElemInt32
	ElemInt64
	ElemUint8
	ElemUint16
	ElemUint32
	ElemUint64
	ElemFloat32
	ElemFloat64
)

func (e ElemType) String() string {
	switch e {
	case ElemInt8:
		return "int8"
	case ElemInt16:
		return "int16"
	case ElemInt32:
		return "int32"
	case ElemInt64:
		return "int64"
	case ElemUint8:
		return "uint8"
	case ElemUint16:
		return "uint16"
	case ElemUint32:
		return "uint32"
	case ElemUint64:
		return "uint64"
	case ElemFloat32:
		return "float32"
	case ElemFloat64:
		return "float64"
	default:
		return "invalid"
	}
}

// TypeOf returns the ElemType tag for T.
func TypeOf[T Element]() ElemType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return ElemInt8
	case int16:
		return ElemInt16
	case int32:
		return ElemInt32
	case int64:
		return ElemInt64
	case uint8:
		return ElemUint8
	case uint16:
		return ElemUint16
	case uint32:
		return ElemUint32
	case uint64:
		return ElemUint64
	case float32:
		return ElemFloat32
	case float64:
		return ElemFloat64
	}
	return ElemInvalid
}

// Region is the shareable handle for a ring buffer: the raw bytes plus the
// element type they were sized for. It is what the render side hands back to
// the control side once a queue has been allocated.
type Region struct {
	Bytes []byte
	Elem  ElemType
}

// StorageSize returns the number of bytes needed to hold capacity elements
// of T, including the cursor header and the reserved empty slot.
func StorageSize[T Element](capacity int) int {
	var zero T
	return HeaderSize + (capacity+1)*int(unsafe.Sizeof(zero))
}

// NewRegion allocates a zeroed, 8-byte aligned region able to hold capacity
// elements of T.
func NewRegion[T Element](capacity int) (Region, error) {
	if capacity < 1 {
		return Region{}, fmt.Errorf("%w: capacity %d must be positive", ErrInvalidStorage, capacity)
	}
	size := StorageSize[T](capacity)

	// Backing with []uint64 guarantees alignment for every Element.
	words := make([]uint64, (size+7)/8)
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)[:size:size]

	return Region{Bytes: bytes, Elem: TypeOf[T]()}, nil
}
