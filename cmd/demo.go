// SPDX-License-Identifier: MIT
package cmd

import "instruments/internal/sequence"

const (
	eighth     = sequence.TicksPerBeat / 2
	bar        = sequence.TicksPerBeat * 4
	demoBars   = 4
	demoLength = bar * demoBars
)

// Am F C G, one chord per bar.
var demoChords = [demoBars][3]float64{
	{57, 60, 64},
	{53, 57, 60},
	{48, 52, 55},
	{55, 59, 62},
}

func ptr(v float64) *float64 { return &v }

// demoMelody returns a four bar arpeggio over a held bass note and the
// loop end in ticks at sequence.TicksPerBeat.
func demoMelody() ([]sequence.Note, float64) {
	var notes []sequence.Note
	for b, chord := range demoChords {
		start := float64(b * bar)
		notes = append(notes, sequence.Note{
			Pitch:    sequence.Numbers{chord[0] - 12},
			Start:    sequence.Numbers{start},
			Length:   ptr(bar - eighth),
			Velocity: ptr(100),
		})

		steps := make(sequence.Numbers, 0, bar/eighth)
		for i := 0; i < bar/eighth; i++ {
			steps = append(steps, start+float64(i*eighth))
		}
		for i, tick := range steps {
			notes = append(notes, sequence.Note{
				Pitch:    sequence.Numbers{chord[i%3] + 12},
				Start:    sequence.Numbers{tick},
				Length:   ptr(eighth),
				Velocity: ptr(80),
			})
		}
	}
	return notes, demoLength
}

// demoBeat plays slot 0 on every beat and slot 1 on the off beats. The
// sampler reads the pitch as a slot index.
func demoBeat() []sequence.Note {
	var kick, hat sequence.Numbers
	for beat := 0; beat < demoLength/sequence.TicksPerBeat; beat++ {
		kick = append(kick, float64(beat*sequence.TicksPerBeat))
		hat = append(hat, float64(beat*sequence.TicksPerBeat+eighth))
	}
	return []sequence.Note{
		{Pitch: sequence.Numbers{0}, Start: kick, Length: ptr(eighth), Velocity: ptr(127)},
		{Pitch: sequence.Numbers{1}, Start: hat, Length: ptr(eighth / 2), Velocity: ptr(70)},
	}
}
