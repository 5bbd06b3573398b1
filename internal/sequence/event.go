// SPDX-License-Identifier: MIT
//
// Package sequence turns note lists into tick-sorted note-on/note-off
// events and steps them against per-instrument playheads.
package sequence

import "math"

// TicksPerBeat is the engine's internal sequencer resolution.
const TicksPerBeat = 24

// Command is an event type.
type Command uint8

const (
	NoteOn Command = iota + 1
	NoteOff
)

func (c Command) String() string {
	switch c {
	case NoteOn:
		return "noteon"
	case NoteOff:
		return "noteoff"
	default:
		return "unknown"
	}
}

// Event is one scheduled command. Tick is in engine ticks and may be
// fractional; an event is due once the playhead reaches it.
type Event struct {
	Cmd      Command `json:"cmd"`
	Freq     float64 `json:"f"`
	Velocity float64 `json:"v,omitempty"`
	Tick     float64 `json:"t"`
}

// MIDIToFreq converts a MIDI note number to Hz (A4 = 69 = 440 Hz).
func MIDIToFreq(note float64) float64 {
	return 440 * math.Pow(2, (note-69)/12)
}

// LoopSamples converts a loop length in engine ticks to samples.
func LoopSamples(ticks int64, bpm, sampleRate float64) int64 {
	if ticks <= 0 || bpm <= 0 {
		return 0
	}
	return int64(float64(ticks) / TicksPerBeat * (60 / bpm) * sampleRate)
}

// ScaleTicks converts a value counted at ticksPerBeat to engine ticks.
func ScaleTicks(v float64, ticksPerBeat float64) float64 {
	if ticksPerBeat <= 0 {
		ticksPerBeat = TicksPerBeat
	}
	return v * (TicksPerBeat / ticksPerBeat)
}
