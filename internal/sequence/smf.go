// SPDX-License-Identifier: MIT
package sequence

import (
	"errors"
	"fmt"
	"io"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ErrNoNotes is returned when a MIDI file holds no complete notes.
var ErrNoNotes = errors.New("sequence: no notes in MIDI file")

// SMFOptions selects what ReadSMF imports.
type SMFOptions struct {
	// Track selects one track; negative imports every track.
	Track int
	// Channel selects one MIDI channel; negative imports every channel.
	Channel int
}

// ReadSMF reads a Standard MIDI File and returns its notes with times
// rescaled to engine ticks. The returned length is the end of the last
// note, useful as a loop length.
func ReadSMF(r io.Reader, opts SMFOptions) ([]Note, int64, error) {
	file, err := smf.ReadFrom(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read MIDI file: %w", err)
	}

	resolution := float64(960)
	if mt, ok := file.TimeFormat.(smf.MetricTicks); ok {
		resolution = float64(mt.Resolution())
	}

	type key struct{ ch, note uint8 }
	var (
		notes []Note
		last  float64
	)

	for ti, track := range file.Tracks {
		if opts.Track >= 0 && ti != opts.Track {
			continue
		}

		open := make(map[key]Note)
		var abs uint64
		for _, ev := range track {
			abs += uint64(ev.Delta)
			at := ScaleTicks(float64(abs), resolution)

			msg := midi.Message(ev.Message)
			var ch, note, vel uint8
			switch {
			case msg.GetNoteStart(&ch, &note, &vel):
				if opts.Channel >= 0 && int(ch) != opts.Channel {
					continue
				}
				v := float64(vel)
				open[key{ch, note}] = Note{
					Pitch:      Numbers{float64(note)},
					Start:      Numbers{at},
					Velocity:   &v,
					Instrument: ti,
					IsDrum:     ch == 9,
				}
			case msg.GetNoteEnd(&ch, &note):
				k := key{ch, note}
				n, ok := open[k]
				if !ok {
					continue
				}
				delete(open, k)
				length := at - n.Start[0]
				n.Length = &length
				notes = append(notes, n)
				last = max(last, at)
			}
		}
	}

	if len(notes) == 0 {
		return nil, 0, ErrNoNotes
	}
	return notes, int64(last + 0.5), nil
}
