// SPDX-License-Identifier: MIT
package sequence

import (
	"math"
	"slices"
)

// Player receives due events from a Transport.
type Player interface {
	// Dispatch handles one sequenced note-on or note-off.
	Dispatch(e Event)
	// Wrap is called when the playhead loops; loopSamples is the loop
	// length in samples.
	Wrap(loopSamples int64)
	// ReleaseAll releases every held note through its envelope.
	ReleaseAll()
}

// Transport is one instrument's playhead over its event list. It is owned
// by the render goroutine.
type Transport struct {
	events      []Event
	seqPtr      int
	playHead    int64
	loopTicks   int64
	loopSamples int64
}

// NewTransport returns an empty transport that never loops.
func NewTransport() *Transport {
	return &Transport{loopTicks: math.MaxInt64, loopSamples: math.MaxInt64}
}

// PlayHead returns the current tick.
func (t *Transport) PlayHead() int64 { return t.playHead }

// LoopTicks returns the loop length in ticks.
func (t *Transport) LoopTicks() int64 { return t.loopTicks }

// LoopSamples returns the loop length in samples.
func (t *Transport) LoopSamples() int64 { return t.loopSamples }

// Len returns the number of events.
func (t *Transport) Len() int { return len(t.events) }

// SetSequence replaces the event list, restarts dispatch from the top and
// releases anything the old list left held. events is sorted in place if
// needed and retained.
func (t *Transport) SetSequence(events []Event, p Player) {
	if !slices.IsSortedFunc(events, compareTick) {
		slices.SortStableFunc(events, compareTick)
	}
	t.events = events
	t.seqPtr = 0
	p.ReleaseAll()
}

// SetLoop sets the loop length. Non-positive ticks disable looping.
func (t *Transport) SetLoop(ticks, samples int64) {
	if ticks <= 0 {
		t.loopTicks, t.loopSamples = math.MaxInt64, math.MaxInt64
		return
	}
	t.loopTicks, t.loopSamples = ticks, max(samples, 1)
}

// Rewind moves the playhead to zero and releases held notes.
func (t *Transport) Rewind(p Player) {
	t.playHead = 0
	t.seqPtr = 0
	p.ReleaseAll()
}

// Tick advances one sequencer tick: wrap if the loop end was reached,
// dispatch every due event, then step the playhead.
func (t *Transport) Tick(p Player) {
	if t.playHead >= t.loopTicks {
		p.Wrap(t.loopSamples)
		t.seqPtr = 0
		t.playHead = 0
	}
	for t.seqPtr < len(t.events) && t.events[t.seqPtr].Tick <= float64(t.playHead) {
		p.Dispatch(t.events[t.seqPtr])
		t.seqPtr++
	}
	t.playHead++
}

func compareTick(a, b Event) int {
	switch {
	case a.Tick < b.Tick:
		return -1
	case a.Tick > b.Tick:
		return 1
	}
	return 0
}
