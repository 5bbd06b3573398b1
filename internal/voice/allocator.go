// SPDX-License-Identifier: MIT
package voice

import (
	"math"
	"slices"
)

const epsilon = 0x1p-52

// Voice is one sounding (triggered) or tailing (released) note.
type Voice struct {
	Index    int     // oscillator or sample slot
	Freq     float64 // originating frequency, rounded to 2 decimals
	Velocity float64 // 0..1
	Off      int64   // release sample index, released voices only
	LastOut  float64 // last envelope output, written by the owner's signal path
}

// Params is the per-instrument state the allocator needs from the
// parameter table at the moment a note starts or stops.
type Params struct {
	Poly       bool
	Envelope   ADSR
	Frequency  float64 // mono voice 0 pitch
	Frequency2 float64 // mono voice 1 pitch
}

// Stats counts pool pressure events.
type Stats struct {
	Stolen  uint64 // releasing voices cut short to make room
	Dropped uint64 // note-ons that found every voice held
}

// Allocator owns a fixed pool of voices and their envelopes. It is driven
// entirely by the render goroutine.
type Allocator struct {
	sampleRate float64
	samplePtr  int64

	triggered []Voice
	released  []Voice
	envelopes []Envelope
	inUse     []bool

	stats Stats
}

// NewAllocator returns an allocator with poolSize voices.
func NewAllocator(poolSize int, sampleRate float64) *Allocator {
	a := &Allocator{
		sampleRate: sampleRate,
		triggered:  make([]Voice, 0, poolSize),
		released:   make([]Voice, 0, poolSize),
		envelopes:  make([]Envelope, poolSize),
		inUse:      make([]bool, poolSize),
	}
	for i := range a.envelopes {
		a.envelopes[i] = NewEnvelope(sampleRate)
	}
	return a
}

// PoolSize returns the number of voices.
func (a *Allocator) PoolSize() int { return len(a.envelopes) }

// SamplePtr returns the sample counter used for release times.
func (a *Allocator) SamplePtr() int64 { return a.samplePtr }

// Triggered returns the held voices in trigger order. Entries may be
// modified in place but the slice must not be appended to.
func (a *Allocator) Triggered() []Voice { return a.triggered }

// Released returns the tailing voices, oldest first.
func (a *Allocator) Released() []Voice { return a.released }

// Envelope returns the envelope for voice index i.
func (a *Allocator) Envelope(i int) *Envelope { return &a.envelopes[i] }

// Stats returns pressure counters since construction.
func (a *Allocator) Stats() Stats { return a.stats }

// Active returns the number of triggered plus released voices.
func (a *Allocator) Active() int { return len(a.triggered) + len(a.released) }

// RoundFreq rounds f to two decimals so note-offs match their note-ons.
func RoundFreq(f float64) float64 {
	return math.Round((f+epsilon)*100) / 100
}

// Held reports whether a note-on for freq should be ignored: freq is
// already held (poly) or anything is held (mono).
func (a *Allocator) Held(freq float64, poly bool) bool {
	if !poly {
		return len(a.triggered) > 0
	}
	f := RoundFreq(freq)
	for i := range a.triggered {
		if a.triggered[i].Freq == f {
			return true
		}
	}
	return false
}

// NoteOn starts freq unless it is already held. velocity is MIDI 0..127.
// It reports whether a note was started.
func (a *Allocator) NoteOn(freq, velocity float64, p Params) bool {
	if a.Held(freq, p.Poly) {
		return false
	}
	return a.Play(freq, velocity, p)
}

// Play starts a note without the held check. Sequenced note-ons go through
// here. In mono mode every voice is released and the two unison voices are
// started from p.Frequency and p.Frequency2.
func (a *Allocator) Play(freq, velocity float64, p Params) bool {
	if p.Poly {
		return a.trigger(RoundFreq(freq), velocity, p)
	}
	a.ReleaseAll(p.Envelope.Release)
	ok := a.trigger(p.Frequency, velocity, p)
	return a.trigger(p.Frequency2, velocity, p) || ok
}

// NoteOff releases the held voice for freq (poly) or everything (mono).
func (a *Allocator) NoteOff(freq float64, p Params) {
	if !p.Poly {
		a.ReleaseAll(p.Envelope.Release)
		return
	}
	f := RoundFreq(freq)
	for i := range a.triggered {
		if a.triggered[i].Freq == f {
			a.release(i, p.Envelope.Release)
			return
		}
	}
}

// ReleaseAll moves every held voice to the released set.
func (a *Allocator) ReleaseAll(releaseMs float64) {
	for len(a.triggered) > 0 {
		a.release(0, releaseMs)
	}
}

// Allocate returns the lowest free voice index. When the pool is full the
// oldest releasing voice is stolen first. It returns -1 if every voice is
// held.
func (a *Allocator) Allocate() int {
	if a.Active() >= len(a.envelopes) && len(a.released) > 0 {
		a.inUse[a.released[0].Index] = false
		a.released = slices.Delete(a.released, 0, 1)
		a.stats.Stolen++
	}
	for i, used := range a.inUse {
		if !used {
			return i
		}
	}
	return -1
}

func (a *Allocator) trigger(freq, velocity float64, p Params) bool {
	o := a.Allocate()
	if o < 0 {
		a.stats.Dropped++
		return false
	}
	env := &a.envelopes[o]
	env.Set(p.Envelope)
	env.Trigger()

	a.inUse[o] = true
	a.triggered = append(a.triggered, Voice{Index: o, Freq: freq, Velocity: velocity / 127})
	return true
}

func (a *Allocator) release(i int, releaseMs float64) {
	v := a.triggered[i]
	a.triggered = slices.Delete(a.triggered, i, i+1)

	a.envelopes[v.Index].Release()
	v.Off = int64(math.Round(float64(a.samplePtr) + releaseMs/1000*a.sampleRate))
	v.LastOut = a.envelopes[v.Index].Level()
	a.released = append(a.released, v)
}

// OnSample advances the sample counter and reclaims released voices whose
// release time has passed and whose envelope has gone silent.
func (a *Allocator) OnSample() {
	a.samplePtr++
	kept := a.released[:0]
	for _, v := range a.released {
		if a.samplePtr >= v.Off+1 && v.LastOut < Silence {
			a.inUse[v.Index] = false
			continue
		}
		kept = append(kept, v)
	}
	a.released = kept
}

// Wrap handles a loop boundary. Held voices are released first, so the
// modulo below folds their release times along with those of voices that
// were already releasing. The sample counter then restarts at 0.
func (a *Allocator) Wrap(loopSamples int64, releaseMs float64) {
	a.ReleaseAll(releaseMs)
	if loopSamples > 0 {
		for i := range a.released {
			a.released[i].Off %= loopSamples
		}
	}
	a.samplePtr = 0
}

// Reset drops every voice immediately.
func (a *Allocator) Reset() {
	a.triggered = a.triggered[:0]
	a.released = a.released[:0]
	for i := range a.envelopes {
		a.envelopes[i].Reset()
		a.inUse[i] = false
	}
	a.samplePtr = 0
}
