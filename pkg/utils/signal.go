// SPDX-License-Identifier: MIT
// Package utils holds test-signal generators and spectrum helpers shared
// by package tests and the demo renderer.
package utils

import "math"

// GenerateSineWave returns frames of an interleaved sine at amplitude,
// identical on every channel.
func GenerateSineWave(frames, channels int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, frames*channels)
	for i := range frames {
		v := float32(amplitude * math.Sin(2*math.Pi*frequency*float64(i)/sampleRate))
		for c := range channels {
			buffer[i*channels+c] = v
		}
	}
	return buffer
}

// GenerateComplexWave is a 440 Hz fundamental with two harmonics, mono.
func GenerateComplexWave(frames int, sampleRate float64) []float32 {
	buffer := make([]float32, frames)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// Peak returns the largest absolute sample.
func Peak(buffer []float32) float64 {
	var peak float64
	for _, s := range buffer {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	return peak
}

// RMS returns the root mean square of buffer, 0 when empty.
func RMS(buffer []float32) float64 {
	if len(buffer) == 0 {
		return 0
	}
	var sum float64
	for _, s := range buffer {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(buffer)))
}

// FindPeakBin returns the index of the largest magnitude in
// [startBin, endBin], clamped to the slice.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	startBin = max(startBin, 0)
	endBin = min(endBin, len(magnitudes)-1)

	peakBin := startBin
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > magnitudes[peakBin] {
			peakBin = bin
		}
	}
	return peakBin
}
