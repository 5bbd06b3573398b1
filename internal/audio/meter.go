// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// Meter tracks the peak of the rendered output and gates a downstream
// tap (the spectrum monitor) on it. Safe for concurrent use: the audio
// callback writes while the control side reads.
type Meter struct {
	next        Tap
	peak        atomic.Uint64 // float64 bits
	threshold   atomic.Uint64 // float64 bits
	gateEnabled atomic.Bool
}

// NewMeter forwards every block above the gate to next. next may be nil.
func NewMeter(next Tap) *Meter {
	return &Meter{next: next}
}

func (m *Meter) EnableGate()  { m.gateEnabled.Store(true) }
func (m *Meter) DisableGate() { m.gateEnabled.Store(false) }

// SetGateThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (m *Meter) SetGateThreshold(threshold float64) {
	threshold = math.Max(0, math.Min(1, threshold))
	m.threshold.Store(math.Float64bits(threshold))
}

// GateThreshold returns the current gate threshold in the range 0.0-1.0.
func (m *Meter) GateThreshold() float64 {
	return math.Float64frombits(m.threshold.Load())
}

// Peak returns the absolute peak of the last block.
func (m *Meter) Peak() float64 {
	return math.Float64frombits(m.peak.Load())
}

// PeakDBFS returns Peak in dB relative to full scale, -Inf for silence.
func (m *Meter) PeakDBFS() float64 {
	return 20 * math.Log10(m.Peak())
}

func (m *Meter) Write(block []float32) {
	var peak float32
	for _, s := range block {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	m.peak.Store(math.Float64bits(float64(peak)))

	if m.next == nil {
		return
	}
	if m.gateEnabled.Load() && float64(peak) <= m.GateThreshold() {
		return
	}
	m.next.Write(block)
}
