// SPDX-License-Identifier: MIT
package engine

import (
	"instruments/internal/params"
	"instruments/internal/sequence"
	"instruments/internal/voice"
)

const minSampleRate = 0.01

// samplerEnvelope is applied to every slot so retriggers and slot ends
// do not click. The release starts Release ms before the slot's end.
var samplerEnvelope = voice.ADSR{Attack: 5, Decay: 10, Sustain: 1, Release: 5}

type sampleSlot struct {
	data     []float64
	pos      float64
	playing  bool
	velocity float64
	env      voice.Envelope
}

// Sampler plays one-shot buffers from a fixed set of slots. A note-on with
// pitch n retriggers slot n; note-offs are ignored.
type Sampler struct {
	slots     []sampleSlot
	table     *params.Table
	transport *sequence.Transport
	samplePtr int64
	loaded    bool
	tail      float64 // release length in frames
}

// NewSampler returns a sampler with the given number of slots.
func NewSampler(sampleRate float64, slots int) *Sampler {
	s := &Sampler{
		slots:     make([]sampleSlot, slots),
		table:     params.NewTable(params.SamplerDefs(slots)),
		transport: sequence.NewTransport(),
		tail:      samplerEnvelope.Release / 1000 * sampleRate,
	}
	for i := range s.slots {
		s.slots[i].env = voice.NewEnvelope(sampleRate)
		s.slots[i].env.Set(samplerEnvelope)
	}
	return s
}

func (s *Sampler) Kind() params.Kind { return params.Sampler }
func (s *Sampler) Table() *params.Table { return s.table }
func (s *Sampler) Transport() *sequence.Transport { return s.transport }
func (s *Sampler) Loaded() bool { return s.loaded }
func (s *Sampler) SetLoaded(v bool) { s.loaded = v }

// Slots returns the number of sample slots.
func (s *Sampler) Slots() int { return len(s.slots) }

// SetSample swaps the buffer for slot. The slice is owned by the sampler
// from here on. Out of range slots are ignored.
func (s *Sampler) SetSample(slot int, data []float64) {
	if slot < 0 || slot >= len(s.slots) {
		return
	}
	sl := &s.slots[slot]
	sl.data = data
	sl.pos = 0
	sl.playing = false
	sl.env.Reset()
}

func (s *Sampler) param(key, slot int) float64 {
	return s.table.Value(params.SamplerPos(key, slot, len(s.slots)))
}

// bounds returns the playable frame range of slot.
func (s *Sampler) bounds(slot int) (start, end float64) {
	n := float64(len(s.slots[slot].data))
	startFrac := s.param(params.SamplerStart, slot)
	endFrac := s.param(params.SamplerEnd, slot)
	if endFrac == 0 {
		endFrac = 1
	}
	if endFrac <= startFrac {
		endFrac = startFrac + 1
	}
	return min(startFrac*n, n), min(endFrac*n, n)
}

// NoteOn treats freq as a slot number.
func (s *Sampler) NoteOn(freq, velocity float64) {
	if !s.loaded {
		return
	}
	slot := int(freq)
	if slot < 0 || slot >= len(s.slots) || len(s.slots[slot].data) == 0 {
		return
	}
	sl := &s.slots[slot]
	sl.pos, _ = s.bounds(slot)
	sl.velocity = velocity / 127
	sl.playing = true
	sl.env.Trigger()
}

// NoteOff is a no-op; samples always play to their end.
func (s *Sampler) NoteOff(float64) {}

// Dispatch handles a sequenced event.
func (s *Sampler) Dispatch(e sequence.Event) {
	if e.Cmd == sequence.NoteOn {
		s.NoteOn(e.Freq, e.Velocity)
	}
}

// Wrap restarts the sample counter. Playing slots run on across the loop.
func (s *Sampler) Wrap(int64) { s.samplePtr = 0 }

// ReleaseAll is a no-op; samples always play to their end.
func (s *Sampler) ReleaseAll() {}

func (s *Sampler) OnSample() { s.samplePtr++ }

// Signal renders one stereo frame.
func (s *Sampler) Signal() (float64, float64) {
	if !s.loaded {
		return 0, 0
	}
	var l, r float64
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.playing {
			continue
		}
		_, end := s.bounds(i)
		idx := int(sl.pos)
		if idx >= int(end) || idx >= len(sl.data) {
			sl.playing = false
			sl.env.Reset()
			continue
		}

		rate := s.param(params.SamplerRate, i)
		if rate < minSampleRate {
			rate = 0.02
		}
		if sl.env.Gate() && (min(end, float64(len(sl.data)))-sl.pos)/rate <= s.tail {
			sl.env.Release()
		}
		sig := sl.data[idx] * sl.env.Next() * sl.velocity * s.param(params.SamplerGain, i)
		sl.pos += rate

		pan := s.param(params.SamplerPan, i)
		l += sig * (1 - pan)
		r += sig * pan
	}
	return l, r
}
func (s *Sampler) SamplePtr() int64 { return s.samplePtr }
