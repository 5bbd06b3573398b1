// SPDX-License-Identifier: MIT
//
// Package voice manages fixed-size polyphonic voice pools: ADSR envelopes,
// note-on allocation with stealing of the oldest releasing voice, and
// reclamation that waits for a release tail to actually fall silent.
//
// Nothing in this package allocates after construction.
package voice

import "math"

// Silence is the envelope level below which a released voice may be
// reclaimed.
const Silence = 1e-5

// releaseFloor is the level an exponential release reaches after the
// configured release time. It sits above Silence, so a tail is still
// audible at its nominal end.
const releaseFloor = 1e-4

// Stage is the current envelope segment.
type Stage uint8

const (
	StageIdle Stage = iota
	StageAttack
	StageDecay
	StageSustain
	StageRelease
)

func (s Stage) String() string {
	switch s {
	case StageAttack:
		return "attack"
	case StageDecay:
		return "decay"
	case StageSustain:
		return "sustain"
	case StageRelease:
		return "release"
	default:
		return "idle"
	}
}

// ADSR holds envelope timings in milliseconds and a sustain level in [0,1].
type ADSR struct {
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
}

// Envelope is a per-voice ADSR generator. Attack and decay are linear,
// release is exponential.
type Envelope struct {
	sampleRate float64

	attackStep  float64
	decayStep   float64
	sustain     float64
	releaseCoef float64

	level float64
	stage Stage
}

// NewEnvelope returns an idle envelope for the given sample rate.
func NewEnvelope(sampleRate float64) Envelope {
	e := Envelope{sampleRate: sampleRate}
	e.Set(ADSR{Attack: 1, Decay: 1, Sustain: 1, Release: 1})
	return e
}

// Set replaces the envelope timings. A running segment picks up the new
// rate on the next sample.
func (e *Envelope) Set(a ADSR) {
	e.attackStep = 1 / e.samples(a.Attack)
	e.sustain = math.Min(math.Max(a.Sustain, 0), 1)
	e.decayStep = (1 - e.sustain) / e.samples(a.Decay)
	e.releaseCoef = math.Pow(releaseFloor, 1/e.samples(a.Release))
}

func (e *Envelope) samples(ms float64) float64 {
	return math.Max(ms/1000*e.sampleRate, 1)
}

// Trigger opens the gate. The attack starts from the current level.
func (e *Envelope) Trigger() {
	e.stage = StageAttack
}

// Release closes the gate.
func (e *Envelope) Release() {
	if e.stage != StageIdle {
		e.stage = StageRelease
	}
}

// Gate reports whether the envelope is held open.
func (e *Envelope) Gate() bool {
	return e.stage == StageAttack || e.stage == StageDecay || e.stage == StageSustain
}

// Stage returns the current segment.
func (e *Envelope) Stage() Stage { return e.stage }

// Level returns the last output without advancing.
func (e *Envelope) Level() float64 { return e.level }

// Next advances one sample and returns the new level.
func (e *Envelope) Next() float64 {
	switch e.stage {
	case StageAttack:
		e.level += e.attackStep
		if e.level >= 1 {
			e.level = 1
			e.stage = StageDecay
		}
	case StageDecay:
		e.level -= e.decayStep
		if e.level <= e.sustain {
			e.level = e.sustain
			e.stage = StageSustain
		}
	case StageSustain:
		e.level = e.sustain
	case StageRelease:
		e.level *= e.releaseCoef
		if e.level < Silence*Silence {
			e.level = 0
			e.stage = StageIdle
		}
	}
	return e.level
}

// Reset silences the envelope immediately.
func (e *Envelope) Reset() {
	e.level = 0
	e.stage = StageIdle
}
