// SPDX-License-Identifier: MIT
package sequence

// DefaultTempo is the tempo a new clock starts at.
const DefaultTempo = 80

// Clock converts a sample stream into sequencer ticks at a tempo. It fires
// on the first sample and then every samplesPerTick samples.
type Clock struct {
	sampleRate     float64
	bpm            float64
	samplesPerTick float64
	acc            float64
}

// NewClock returns a clock at DefaultTempo.
func NewClock(sampleRate float64) *Clock {
	c := &Clock{sampleRate: sampleRate}
	c.SetTempo(DefaultTempo)
	c.acc = c.samplesPerTick
	return c
}

// SetTempo changes the tempo. Non-positive values are ignored. The phase
// within the current tick is kept, so the next tick lands at the same
// fraction of the new period.
func (c *Clock) SetTempo(bpm float64) {
	if bpm <= 0 {
		return
	}
	period := 60 / bpm * c.sampleRate / TicksPerBeat
	if c.samplesPerTick > 0 {
		c.acc *= period / c.samplesPerTick
	}
	c.bpm = bpm
	c.samplesPerTick = period
}

// Tempo returns the current tempo in BPM.
func (c *Clock) Tempo() float64 { return c.bpm }

// SamplesPerTick returns the current tick period.
func (c *Clock) SamplesPerTick() float64 { return c.samplesPerTick }

// Advance consumes one sample and reports whether a tick fired.
func (c *Clock) Advance() bool {
	if c.acc >= c.samplesPerTick {
		c.acc -= c.samplesPerTick
		c.acc++
		return true
	}
	c.acc++
	return false
}

// Reset makes the next Advance fire.
func (c *Clock) Reset() { c.acc = c.samplesPerTick }
