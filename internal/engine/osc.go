// SPDX-License-Identifier: MIT
package engine

import "math"

// Waveform selects an oscillator shape.
type Waveform uint8

const (
	WaveSine Waveform = iota
	WaveTriangle
	WaveSaw
	WaveSquare
	WaveNoise
)

// WaveformFor maps an oscFn parameter value to a Waveform. Unknown values
// fall back to sine.
func WaveformFor(v float64) Waveform {
	switch w := Waveform(math.Round(v)); w {
	case WaveTriangle, WaveSaw, WaveSquare, WaveNoise:
		if v >= 0 {
			return w
		}
	}
	return WaveSine
}

const lfsrMask = 1<<23 - 1

// Oscillator is a phase accumulator in [0,1) plus a 23-bit LFSR for noise.
type Oscillator struct {
	phase float64
	lfsr  uint32
}

// Next returns one sample of w at freq Hz and advances the phase.
func (o *Oscillator) Next(w Waveform, freq, sampleRate float64) float64 {
	if w == WaveNoise {
		if o.lfsr == 0 {
			o.lfsr = 0x5A5A5A
		}
		bit := ((o.lfsr >> 22) ^ (o.lfsr >> 17)) & 1
		o.lfsr = ((o.lfsr << 1) | bit) & lfsrMask
		return float64(o.lfsr)/lfsrMask*2 - 1
	}

	var out float64
	switch w {
	case WaveTriangle:
		out = 1 - 4*math.Abs(o.phase-0.5)
	case WaveSaw:
		out = 2*o.phase - 1
	case WaveSquare:
		if o.phase < 0.5 {
			out = 1
		} else {
			out = -1
		}
	default:
		out = math.Sin(2 * math.Pi * o.phase)
	}

	o.phase += freq / sampleRate
	o.phase -= math.Floor(o.phase)
	return out
}

// Reset zeroes the phase.
func (o *Oscillator) Reset() { o.phase = 0 }
