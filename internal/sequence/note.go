// SPDX-License-Identifier: MIT
package sequence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Numbers is a list of values that also decodes from a single JSON number.
type Numbers []float64

func (n *Numbers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []float64
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*n = list
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("sequence: expected number or array: %w", err)
	}
	*n = Numbers{v}
	return nil
}

// Note is a high-level note description. Pitch and Freq may each hold a
// chord; Start may hold several onsets. Each combination becomes one note.
// When Freq is empty the frequency comes from Pitch.
type Note struct {
	Pitch    Numbers  `json:"pitch,omitempty"`
	Freq     Numbers  `json:"freq,omitempty"`
	Start    Numbers  `json:"start,omitempty"`
	End      *float64 `json:"end,omitempty"`
	Length   *float64 `json:"length,omitempty"`
	Velocity *float64 `json:"velocity,omitempty"`

	Instrument int  `json:"instrument,omitempty"`
	IsDrum     bool `json:"isDrum,omitempty"`
}

// UnmarshalJSON accepts both the long field names and the short forms
// p, f, s, e, l and v.
func (n *Note) UnmarshalJSON(data []byte) error {
	type long Note
	var aux struct {
		long
		P Numbers  `json:"p,omitempty"`
		F Numbers  `json:"f,omitempty"`
		S Numbers  `json:"s,omitempty"`
		E *float64 `json:"e,omitempty"`
		L *float64 `json:"l,omitempty"`
		V *float64 `json:"v,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*n = Note(aux.long)
	if n.Pitch == nil {
		n.Pitch = aux.P
	}
	if n.Freq == nil {
		n.Freq = aux.F
	}
	if n.Start == nil {
		n.Start = aux.S
	}
	if n.End == nil {
		n.End = aux.E
	}
	if n.Length == nil {
		n.Length = aux.L
	}
	if n.Velocity == nil {
		n.Velocity = aux.V
	}
	return nil
}

// Options controls flattening.
type Options struct {
	// TicksPerBeat is the resolution of the note times; defaults to 24.
	TicksPerBeat float64
	// Transpose is added to every pitch before conversion.
	Transpose float64
	// RawPitch skips MIDI-to-frequency conversion (samplers use the pitch
	// as a slot index).
	RawPitch bool
	// Instruments, when non-empty, keeps only notes from these instruments.
	Instruments []int
	// MuteDrums drops notes flagged as drums.
	MuteDrums bool
}

// DefaultVelocity is used when a note has none.
const DefaultVelocity = 127

// Flatten expands chords and repeated starts and returns note-on/note-off
// events sorted by tick. Events with equal ticks keep their input order.
func Flatten(notes []Note, opts Options) []Event {
	mul := ScaleTicks(1, opts.TicksPerBeat)

	var events []Event
	for _, n := range notes {
		if len(opts.Instruments) > 0 && !slices.Contains(opts.Instruments, n.Instrument) {
			continue
		}
		if opts.MuteDrums && n.IsDrum {
			continue
		}

		freqs := n.Freq
		if len(freqs) == 0 {
			freqs = make(Numbers, len(n.Pitch))
			for i, p := range n.Pitch {
				if opts.RawPitch {
					freqs[i] = p + opts.Transpose
				} else {
					freqs[i] = MIDIToFreq(p + opts.Transpose)
				}
			}
		}

		starts := n.Start
		if len(starts) == 0 {
			starts = Numbers{0}
		}

		v := float64(DefaultVelocity)
		if n.Velocity != nil {
			v = *n.Velocity
		}

		for _, start := range starts {
			end := start + 1
			switch {
			case n.End != nil:
				end = *n.End
			case n.Length != nil:
				end = start + *n.Length
			}
			for _, f := range freqs {
				events = append(events,
					Event{Cmd: NoteOn, Freq: f, Velocity: v, Tick: start * mul},
					Event{Cmd: NoteOff, Freq: f, Tick: end * mul},
				)
			}
		}
	}

	slices.SortStableFunc(events, func(a, b Event) int {
		switch {
		case a.Tick < b.Tick:
			return -1
		case a.Tick > b.Tick:
			return 1
		}
		return 0
	})
	return events
}
