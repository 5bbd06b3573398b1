// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"testing"
)

type countingTap struct{ blocks int }

func (c *countingTap) Write([]float32) { c.blocks++ }

func TestMeter_GateThresholdBoundaries(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{-0.1, 0.0}, // Below min
		{0.0, 0.0},  // Minimum
		{0.5, 0.5},  // Middle
		{1.0, 1.0},  // Maximum
		{1.5, 1.0},  // Above max
	}

	m := NewMeter(nil)
	for _, tt := range tests {
		m.SetGateThreshold(tt.input)
		if got := m.GateThreshold(); got != tt.expected {
			t.Errorf("SetGateThreshold(%v): got %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestMeter_Peak(t *testing.T) {
	m := NewMeter(nil)
	m.Write([]float32{0.1, -0.75, 0.5})
	if got := m.Peak(); math.Abs(got-0.75) > 1e-7 {
		t.Errorf("Peak() = %v, want 0.75", got)
	}

	m.Write(make([]float32, 8))
	if got := m.PeakDBFS(); !math.IsInf(got, -1) {
		t.Errorf("PeakDBFS() of silence = %v, want -Inf", got)
	}
}

func TestMeter_Gate(t *testing.T) {
	next := &countingTap{}
	m := NewMeter(next)
	m.SetGateThreshold(0.5)

	quiet := []float32{0.1, -0.2}
	loud := []float32{0.1, -0.9}

	m.Write(quiet)
	if next.blocks != 1 {
		t.Fatalf("gate disabled: forwarded %d blocks, want 1", next.blocks)
	}

	m.EnableGate()
	m.Write(quiet)
	m.Write(loud)
	if next.blocks != 2 {
		t.Errorf("gate enabled: forwarded %d blocks, want 2", next.blocks)
	}

	m.DisableGate()
	m.Write(quiet)
	if next.blocks != 3 {
		t.Errorf("gate disabled again: forwarded %d blocks, want 3", next.blocks)
	}
}

func TestMeter_WriteZeroAllocs(t *testing.T) {
	m := NewMeter(&countingTap{})
	block := make([]float32, testFrameSize*2)
	allocs := testing.AllocsPerRun(100, func() {
		m.Write(block)
	})
	if allocs != 0 {
		t.Errorf("Write allocated %.0f times", allocs)
	}
}
