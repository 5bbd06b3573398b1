// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"
)

func TestIsPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected bool
	}{
		{-8, false},
		{0, false},
		{1, true},
		{2, true},
		{3, false},
		{1024, true},
		{1023, false},
		{1 << 40, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			if got := IsPowerOfTwo(tt.n); got != tt.expected {
				t.Errorf("IsPowerOfTwo(%d) = %v, expected %v", tt.n, got, tt.expected)
			}
		})
	}
}

func TestIsPowerOfTwo_Unsigned(t *testing.T) {
	if !IsPowerOfTwo(uint32(1 << 31)) {
		t.Error("1<<31 should be a power of two")
	}
	if IsPowerOfTwo(uint8(0)) {
		t.Error("0 is not a power of two")
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{-10, 1},
		{0, 1},
		{1, 1},
		{3, 4},
		{8, 8},
		{10, 16},
		{1000, 1024},
		{2049, 4096},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			if got := NextPowerOfTwo(tt.n); got != tt.expected {
				t.Errorf("NextPowerOfTwo(%d) = %d, expected %d", tt.n, got, tt.expected)
			}
		})
	}
}

func TestNextPowerOfTwo_Types(t *testing.T) {
	if got := NextPowerOfTwo(int32(1023)); got != 1024 {
		t.Errorf("int32: got %d", got)
	}
	if got := NextPowerOfTwo(int64(1<<40 + 1)); got != 1<<41 {
		t.Errorf("int64: got %d", got)
	}
	if got := NextPowerOfTwo(uint16(300)); got != 512 {
		t.Errorf("uint16: got %d", got)
	}
}

func TestPowerOfTwo_ZeroAllocs(t *testing.T) {
	allocs := testing.AllocsPerRun(100, func() {
		_ = IsPowerOfTwo(512)
		_ = NextPowerOfTwo(1000)
	})
	if allocs > 0 {
		t.Errorf("expected 0 allocations, got %v", allocs)
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	b.ReportAllocs()
	n := 0
	for b.Loop() {
		n = NextPowerOfTwo(n + 1000)
		n &= 0xffff
	}
}
