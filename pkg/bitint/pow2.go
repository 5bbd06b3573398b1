// SPDX-License-Identifier: MIT
/*
Package bitint has the power-of-two helpers used for FFT and buffer
sizing. Every function is O(1) and allocation free.

Usage:

	// Validate an FFT window size
	ok := bitint.IsPowerOfTwo(cfg.Analysis.FFTSize)

	// Suggest a valid one
	size := bitint.NextPowerOfTwo(1000) // 1024
*/
package bitint

import "math/bits"

// Integer is any machine integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo[T Integer](n T) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n, and 1 for n <= 1.
// Powers of two are returned unchanged; the n-1 keeps them from doubling.
// The result overflows when n is above the largest power of two of T.
func NextPowerOfTwo[T Integer](n T) T {
	if n <= 1 {
		return 1
	}
	return T(1) << bits.Len64(uint64(n-1))
}
