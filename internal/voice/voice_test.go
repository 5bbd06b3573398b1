// SPDX-License-Identifier: MIT
package voice

import (
	"fmt"
	"testing"
)

const testRate = 1000 // one sample per millisecond

var polyParams = Params{
	Poly:       true,
	Envelope:   ADSR{Attack: 1, Decay: 1, Sustain: 1, Release: 100},
	Frequency:  440,
	Frequency2: 442,
}

func monoParams() Params {
	p := polyParams
	p.Poly = false
	return p
}

// render advances n samples the way an instrument signal path does: every
// active voice's envelope is stepped and its output recorded.
func render(a *Allocator, n int) {
	for range n {
		for i := range a.Triggered() {
			v := &a.Triggered()[i]
			v.LastOut = a.Envelope(v.Index).Next()
		}
		for i := range a.Released() {
			v := &a.Released()[i]
			v.LastOut = a.Envelope(v.Index).Next()
		}
		a.OnSample()
	}
}

func TestEnvelope_Stages(t *testing.T) {
	e := NewEnvelope(testRate)
	e.Set(ADSR{Attack: 8, Decay: 8, Sustain: 0.5, Release: 10})
	e.Trigger()

	for range 8 {
		e.Next()
	}
	if e.Level() != 1 || e.Stage() != StageDecay {
		t.Fatalf("after attack: level=%v stage=%s", e.Level(), e.Stage())
	}
	for range 8 {
		e.Next()
	}
	if e.Stage() != StageSustain || e.Level() != 0.5 {
		t.Fatalf("after decay: level=%v stage=%s", e.Level(), e.Stage())
	}

	e.Release()
	if e.Gate() {
		t.Fatal("gate still open after Release")
	}
	for range 10 {
		e.Next()
	}
	if l := e.Level(); l > 0.5*releaseFloor*1.01 || l < 0.5*releaseFloor*0.99 {
		t.Errorf("level after release time = %v, expected about %v", l, 0.5*releaseFloor)
	}
}

func TestEnvelope_ReleaseWhenIdle(t *testing.T) {
	e := NewEnvelope(testRate)
	e.Release()
	if e.Stage() != StageIdle {
		t.Errorf("Release on idle envelope moved to %s", e.Stage())
	}
}

func TestAllocator_NoteOnIgnoresHeld(t *testing.T) {
	a := NewAllocator(4, testRate)
	if !a.NoteOn(440, 127, polyParams) {
		t.Fatal("first note-on rejected")
	}
	if a.NoteOn(440.001, 127, polyParams) {
		t.Error("note-on for held frequency was not ignored")
	}
	if len(a.Triggered()) != 1 {
		t.Errorf("triggered = %d, expected 1", len(a.Triggered()))
	}
	if v := a.Triggered()[0].Velocity; v != 1 {
		t.Errorf("velocity = %v, expected 1", v)
	}
}

func TestAllocator_LowestFreeIndex(t *testing.T) {
	a := NewAllocator(4, testRate)
	for _, f := range []float64{100, 200, 300} {
		a.NoteOn(f, 127, polyParams)
	}
	a.NoteOff(200, polyParams)
	render(a, 300)

	a.NoteOn(400, 127, polyParams)
	got := a.Triggered()[len(a.Triggered())-1].Index
	if got != 1 {
		t.Errorf("new voice index = %d, expected reclaimed index 1", got)
	}
}

func TestAllocator_PoolBound(t *testing.T) {
	tests := []struct {
		poolSize int
		notes    int
	}{
		{1, 5},
		{4, 16},
		{12, 40},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("pool=%d", tt.poolSize), func(t *testing.T) {
			a := NewAllocator(tt.poolSize, testRate)
			for n := range tt.notes {
				f := float64(100 + n)
				a.NoteOn(f, 100, polyParams)
				render(a, 3)
				a.NoteOff(f, polyParams)
				if a.Active() > tt.poolSize {
					t.Fatalf("note %d: %d active voices in a pool of %d", n, a.Active(), tt.poolSize)
				}
			}
		})
	}
}

func TestAllocator_StealsOldestRelease(t *testing.T) {
	a := NewAllocator(2, testRate)
	a.NoteOn(100, 127, polyParams)
	a.NoteOn(200, 127, polyParams)
	render(a, 5)
	a.NoteOff(100, polyParams)
	render(a, 1)
	a.NoteOff(200, polyParams)

	oldest := a.Released()[0].Index
	if !a.NoteOn(300, 127, polyParams) {
		t.Fatal("note-on with a full pool of releasing voices was dropped")
	}
	if a.Stats().Stolen != 1 {
		t.Errorf("Stolen = %d, expected 1", a.Stats().Stolen)
	}
	if len(a.Released()) != 1 || a.Released()[0].Freq != 200 {
		t.Errorf("remaining release = %+v, expected the 200 Hz voice", a.Released())
	}
	if got := a.Triggered()[0].Index; got != oldest {
		t.Errorf("new voice took index %d, expected stolen index %d", got, oldest)
	}
}

func TestAllocator_DropsWhenAllHeld(t *testing.T) {
	a := NewAllocator(3, testRate)
	for _, f := range []float64{100, 200, 300} {
		a.NoteOn(f, 127, polyParams)
	}
	if a.NoteOn(400, 127, polyParams) {
		t.Error("note-on succeeded with every voice held")
	}
	if a.Active() != 3 || a.Stats().Dropped != 1 || a.Stats().Stolen != 0 {
		t.Errorf("active=%d stats=%+v", a.Active(), a.Stats())
	}
}

func TestAllocator_NoClickOnReclaim(t *testing.T) {
	a := NewAllocator(2, testRate)
	a.NoteOn(440, 127, polyParams)
	render(a, 10)
	a.NoteOff(440, polyParams)

	off := a.Released()[0].Off
	if want := a.SamplePtr() + 100; off != want {
		t.Fatalf("Off = %d, expected %d", off, want)
	}

	render(a, int(off+1-a.SamplePtr()))
	if len(a.Released()) != 1 {
		t.Fatalf("voice reclaimed at its release time with level %v", a.Envelope(0).Level())
	}
	if lvl := a.Released()[0].LastOut; lvl < Silence {
		t.Fatalf("tail level %v already silent, test cannot tell the conditions apart", lvl)
	}

	render(a, 100)
	if len(a.Released()) != 0 {
		t.Errorf("voice not reclaimed after decaying to %v", a.Released()[0].LastOut)
	}
}

func TestAllocator_Mono(t *testing.T) {
	a := NewAllocator(12, testRate)
	p := monoParams()

	a.Play(0, 127, p)
	if len(a.Triggered()) != 2 {
		t.Fatalf("mono note-on triggered %d voices, expected 2", len(a.Triggered()))
	}
	if a.Triggered()[0].Freq != 440 || a.Triggered()[1].Freq != 442 {
		t.Errorf("mono voices = %+v", a.Triggered())
	}

	if a.NoteOn(500, 127, p) {
		t.Error("second mono note-on while held was not ignored")
	}
	a.Play(500, 127, p)
	if len(a.Triggered()) != 2 {
		t.Errorf("triggered = %d after sequenced mono note-on, expected 2", len(a.Triggered()))
	}

	a.NoteOff(123, p)
	if len(a.Triggered()) != 0 || len(a.Released()) != 4 {
		t.Errorf("after mono note-off: triggered=%d released=%d", len(a.Triggered()), len(a.Released()))
	}
}

func TestAllocator_Wrap(t *testing.T) {
	a := NewAllocator(4, testRate)
	a.NoteOn(440, 127, polyParams)
	render(a, 950)
	a.Wrap(1000, 100)

	if len(a.Triggered()) != 0 || len(a.Released()) != 1 {
		t.Fatalf("after wrap: triggered=%d released=%d", len(a.Triggered()), len(a.Released()))
	}
	if off := a.Released()[0].Off; off != 50 {
		t.Errorf("wrapped Off = %d, expected 50", off)
	}
	if a.SamplePtr() != 0 {
		t.Errorf("SamplePtr = %d after wrap", a.SamplePtr())
	}
}

func TestAllocator_WrapFoldsReleasingVoices(t *testing.T) {
	a := NewAllocator(4, testRate)
	a.NoteOn(440, 127, polyParams)
	render(a, 900)
	a.NoteOff(440, polyParams)
	a.NoteOn(550, 127, polyParams)
	render(a, 50)

	// 440 released at 900, 550 still held at 950.
	a.Wrap(1000, 200)
	rel := a.Released()
	if len(rel) != 2 {
		t.Fatalf("released = %d, expected 2", len(rel))
	}
	for _, v := range rel {
		if v.Off < 0 || v.Off >= 1000 {
			t.Errorf("voice %v Off = %d, expected it folded into [0, 1000)", v.Freq, v.Off)
		}
	}
	if off := rel[1].Off; off != 150 {
		t.Errorf("held voice Off = %d, expected (950+200) mod 1000 = 150", off)
	}
}

func TestAllocator_ZeroAllocs(t *testing.T) {
	a := NewAllocator(12, testRate)
	allocs := testing.AllocsPerRun(100, func() {
		for f := 100.0; f < 112; f++ {
			a.NoteOn(f, 100, polyParams)
		}
		render(a, 2)
		a.ReleaseAll(1)
		render(a, 2)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in allocator hot path, got %.1f", allocs)
	}
}

func TestRoundFreq(t *testing.T) {
	tests := []struct {
		in, expected float64
	}{
		{440, 440},
		{261.6255653, 261.63},
		{1.005, 1.01},
	}
	for _, tt := range tests {
		if got := RoundFreq(tt.in); got != tt.expected {
			t.Errorf("RoundFreq(%v) = %v, expected %v", tt.in, got, tt.expected)
		}
	}
}

func BenchmarkAllocator_OnSample(b *testing.B) {
	a := NewAllocator(12, 44100)
	for f := 100.0; f < 112; f++ {
		a.NoteOn(f, 100, polyParams)
	}
	b.ReportAllocs()
	for b.Loop() {
		render(a, 1)
	}
}
