// SPDX-License-Identifier: MIT
package engine

import (
	"instruments/internal/params"
	"instruments/internal/sequence"
)

// instrument is what the render loop drives. Implementations are owned by
// the render goroutine and must not allocate or block in any method.
type instrument interface {
	sequence.Player

	Kind() params.Kind
	Table() *params.Table
	Transport() *sequence.Transport

	// Loaded reports whether a parameter payload has been applied. An
	// instrument that is not loaded is silent and ignores notes.
	Loaded() bool
	SetLoaded(bool)

	// NoteOn and NoteOff are the externally triggered (non-sequenced)
	// note paths.
	NoteOn(freq, velocity float64)
	NoteOff(freq float64)

	// OnSample runs once per frame before the clock.
	OnSample()
	// Signal returns the next stereo frame.
	Signal() (l, r float64)
}

// Tick advances the instrument's transport by one sequencer tick.
func tick(in instrument) {
	in.Transport().Tick(in)
}
