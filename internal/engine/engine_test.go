// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"testing"

	"instruments/internal/params"
	"instruments/internal/sequence"
	"instruments/pkg/ringbuf"
)

const testBlock = 256

func testOptions() Options {
	opts := DefaultOptions()
	opts.Synths = 2
	opts.Samplers = 1
	return opts
}

type harness struct {
	e      *Engine
	params *ringbuf.ArrayWriter[float32]
	loops  *ringbuf.ArrayReader[float32]
}

// newHarness builds an engine, attaches to its queues the way the
// control side does and starts the transport.
func newHarness(t testing.TB, opts Options) *harness {
	t.Helper()

	e, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := &harness{e: e}
	for range 2 {
		m := <-e.Outbox()
		switch m.Type {
		case ParamQueueReady:
			rb, err := ringbuf.New[float32](m.Region)
			if err != nil {
				t.Fatalf("attach param queue: %v", err)
			}
			h.params, _ = ringbuf.NewArrayWriter(rb)
		case LoopQueueReady:
			rb, err := ringbuf.New[float32](m.Region)
			if err != nil {
				t.Fatalf("attach loop queue: %v", err)
			}
			h.loops, _ = ringbuf.NewArrayReader(rb)
		default:
			t.Fatalf("unexpected message %v", m.Type)
		}
	}
	h.send(Command{Op: OpTogglePlaying})
	return h
}

func (h *harness) send(c Command) { h.e.Commands() <- c }

func (h *harness) handshake() {
	l := h.e.Layout()
	h.send(Command{Op: OpParameterKeys, Kind: params.Synth, Keys: l.Keys(params.Synth)})
	h.send(Command{Op: OpParameterKeys, Kind: params.Sampler, Keys: l.Keys(params.Sampler)})
}

// snapshot returns a payload holding every instrument's defaults, with
// set applied on top as raw values keyed by offset.
func (h *harness) snapshot(set map[int]float64) []float32 {
	l := h.e.Layout()
	out := make([]float32, h.e.Options().PayloadSize)
	synth := params.SynthDefs()
	sampler := params.SamplerDefs(h.e.Options().SamplerSlots)
	for off := range l.Size() {
		kind, _, pos, _ := l.Slot(off)
		d := synth
		if kind == params.Sampler {
			d = sampler
		}
		out[off] = float32(d[pos].Raw(d[pos].Default))
	}
	for off, v := range set {
		out[off] = float32(v)
	}
	return out
}

func (h *harness) render(blocks, channels int) []float32 {
	buf := make([]float32, testBlock*channels)
	out := make([]float32, 0, blocks*len(buf))
	for range blocks {
		h.e.Process(buf, channels)
		out = append(out, buf...)
	}
	return out
}

func peak(buf []float32, channel, channels int) float32 {
	var p float32
	for i := channel; i < len(buf); i += channels {
		p = max(p, buf[i], -buf[i])
	}
	return p
}

func offset(t testing.TB, l *params.Layout, kind params.Kind, index int, name string) int {
	t.Helper()
	off, err := l.Offset(kind, index, name)
	if err != nil {
		t.Fatalf("Offset(%v, %d, %q): %v", kind, index, name, err)
	}
	return off
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Options)
	}{
		{"sample rate", func(o *Options) { o.SampleRate = 0 }},
		{"payload below layout", func(o *Options) { o.PayloadSize = 10 }},
		{"queue below payload", func(o *Options) { o.ParamQueueCapacity = o.PayloadSize - 1 }},
		{"loop slots", func(o *Options) { o.LoopSlots = 2 }},
		{"loop queue", func(o *Options) { o.LoopQueueCapacity = o.LoopSlots - 1 }},
		{"voices", func(o *Options) { o.SynthVoices = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.edit(&opts)
			if _, err := New(opts); !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("expected ErrInvalidOptions, got %v", err)
			}
		})
	}
}

func TestEngine_DiscardsPayloadBeforeHandshake(t *testing.T) {
	h := newHarness(t, testOptions())
	h.send(Command{Op: OpAddSynth})
	h.params.Enqueue(h.snapshot(nil))
	h.render(1, 2)

	if got := h.e.Stats().PayloadsDiscarded.Load(); got != 1 {
		t.Errorf("discarded = %d, expected 1", got)
	}
	if h.e.Synth(0).Loaded() {
		t.Error("synth loaded before handshake")
	}

	h.send(Command{Op: OpNoteOn, Kind: params.Synth, Freq: 440, Velocity: 127})
	if p := peak(h.render(4, 2), 0, 2); p != 0 {
		t.Errorf("expected silence before handshake, peak %v", p)
	}
}

func TestEngine_RejectsMismatchedKeys(t *testing.T) {
	h := newHarness(t, testOptions())
	keys := h.e.Layout().Keys(params.Synth)
	skewed := append([]string{keys[1], keys[0]}, keys[2:]...)
	h.send(Command{Op: OpParameterKeys, Kind: params.Synth, Keys: skewed})
	h.send(Command{Op: OpParameterKeys, Kind: params.Sampler, Keys: h.e.Layout().Keys(params.Sampler)})
	h.send(Command{Op: OpAddSynth})
	h.params.Enqueue(h.snapshot(nil))
	h.render(1, 2)

	if got := h.e.Stats().KeyMismatches.Load(); got != 1 {
		t.Errorf("key mismatches = %d, expected 1", got)
	}
	select {
	case m := <-h.e.Outbox():
		if m.Type != KeysRejected || m.Kind != params.Synth {
			t.Errorf("unexpected message %+v", m)
		}
	default:
		t.Error("expected a KeysRejected message")
	}
	if got := h.e.Stats().PayloadsDiscarded.Load(); got != 1 {
		t.Errorf("discarded = %d, expected 1", got)
	}
}

func TestEngine_AppliesPayload(t *testing.T) {
	h := newHarness(t, testOptions())
	l := h.e.Layout()
	h.handshake()
	h.send(Command{Op: OpAddSynth})
	h.send(Command{Op: OpAddSynth})

	gain := offset(t, l, params.Synth, 1, "gain")
	h.params.Enqueue(h.snapshot(map[int]float64{gain: 0.25}))
	h.render(1, 2)

	if got := h.e.Stats().PayloadsApplied.Load(); got != 1 {
		t.Fatalf("applied = %d, expected 1", got)
	}
	if got := h.e.Synth(1).Table().Value(params.SynthGain); got != 0.25 {
		t.Errorf("synth 1 gain = %v, expected 0.25", got)
	}
	if got := h.e.Synth(0).Table().Value(params.SynthGain); got != 1 {
		t.Errorf("synth 0 gain = %v, expected 1", got)
	}
	if !h.e.Synth(0).Loaded() || !h.e.Synth(1).Loaded() {
		t.Error("active synths should be loaded")
	}
}

func TestEngine_PayloadPerFrame(t *testing.T) {
	h := newHarness(t, testOptions())
	h.handshake()
	h.send(Command{Op: OpAddSynth})

	buf := make([]float32, 2)
	for want := uint64(1); want <= 3; want++ {
		h.params.Enqueue(h.snapshot(nil))
		h.e.Process(buf, 2)
		if got := h.e.Stats().PayloadsApplied.Load(); got != want {
			t.Fatalf("applied = %d, expected %d", got, want)
		}
	}
}

func TestEngine_StereoPan(t *testing.T) {
	tests := []struct {
		name        string
		pan         float64
		left, right bool
	}{
		{"hard left", 0, true, false},
		{"hard right", 1, false, true},
		{"centre", 0.5, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testOptions())
			l := h.e.Layout()
			h.handshake()
			h.send(Command{Op: OpAddSynth})
			h.params.Enqueue(h.snapshot(map[int]float64{
				offset(t, l, params.Synth, 0, "pan"):    tt.pan,
				offset(t, l, params.Synth, 0, "attack"): 0.001,
			}))
			h.render(1, 2)
			h.send(Command{Op: OpNoteOn, Kind: params.Synth, Freq: 220, Velocity: 127})
			out := h.render(8, 2)

			if got := peak(out, 0, 2) > 0; got != tt.left {
				t.Errorf("left sounding = %v, expected %v", got, tt.left)
			}
			if got := peak(out, 1, 2) > 0; got != tt.right {
				t.Errorf("right sounding = %v, expected %v", got, tt.right)
			}
		})
	}
}

func TestEngine_MonoAndExtraChannels(t *testing.T) {
	h := newHarness(t, testOptions())
	l := h.e.Layout()
	h.handshake()
	h.send(Command{Op: OpAddSynth})
	h.params.Enqueue(h.snapshot(map[int]float64{offset(t, l, params.Synth, 0, "attack"): 0.001}))
	h.render(1, 4)
	h.send(Command{Op: OpNoteOn, Kind: params.Synth, Freq: 220, Velocity: 127})

	out := h.render(4, 4)
	if peak(out, 0, 4) == 0 || peak(out, 1, 4) == 0 {
		t.Error("expected signal on channels 0 and 1")
	}
	if peak(out, 2, 4) != 0 || peak(out, 3, 4) != 0 {
		t.Error("expected silence on channels 2 and 3")
	}

	if p := peak(h.render(4, 1), 0, 1); p == 0 {
		t.Error("expected signal on a mono output")
	}
}

func TestEngine_LoopQueue(t *testing.T) {
	h := newHarness(t, testOptions())
	h.send(Command{Op: OpAddSynth})
	h.send(Command{Op: OpAddSampler})

	buf := make([]float32, 2)
	h.e.Process(buf, 2) // the clock fires on the first sample

	loops := make([]float32, h.e.Options().LoopSlots)
	n, ok := h.loops.Dequeue(loops)
	if !ok || n != len(loops) {
		t.Fatalf("Dequeue = %d, %v; expected %d, true", n, ok, len(loops))
	}
	if loops[0] != 1 || loops[1] != 1 {
		t.Errorf("playheads = %v, expected 1 for both instruments", loops[:2])
	}
	if loops[2] != 0 {
		t.Errorf("unused slot = %v, expected 0", loops[2])
	}
}

func TestNew_StartsStopped(t *testing.T) {
	e, err := New(testOptions())
	if err != nil {
		t.Fatal(err)
	}
	if e.Playing() {
		t.Fatal("expected a new engine to start stopped")
	}

	e.Commands() <- Command{Op: OpAddSynth}
	buf := make([]float32, testBlock*2)
	e.Process(buf, 2)
	if got := e.Synth(0).Transport().PlayHead(); got != 0 {
		t.Errorf("playhead = %d before the transport started", got)
	}

	e.Commands() <- Command{Op: OpTogglePlaying}
	e.Process(buf, 2)
	if !e.Playing() {
		t.Fatal("expected playback after the first toggle")
	}
	if got := e.Synth(0).Transport().PlayHead(); got == 0 {
		t.Error("playhead did not advance after the first toggle")
	}
}

func TestEngine_TogglePlaying(t *testing.T) {
	h := newHarness(t, testOptions())
	h.send(Command{Op: OpAddSynth})
	h.render(1, 2)
	head := h.e.Synth(0).Transport().PlayHead()

	h.send(Command{Op: OpTogglePlaying})
	h.render(20, 2)
	if h.e.Playing() {
		t.Fatal("expected playback stopped")
	}
	if got := h.e.Synth(0).Transport().PlayHead(); got != head {
		t.Errorf("playhead moved while stopped: %d -> %d", head, got)
	}

	h.send(Command{Op: OpTogglePlaying})
	h.render(20, 2)
	if got := h.e.Synth(0).Transport().PlayHead(); got <= head {
		t.Errorf("playhead did not advance after restart: %d", got)
	}

	h.send(Command{Op: OpRewind})
	buf := make([]float32, 2)
	h.e.Process(buf, 2)
	if got := h.e.Synth(0).Transport().PlayHead(); got != 1 {
		t.Errorf("playhead after rewind = %d, expected 1", got)
	}
}

func TestEngine_LoopAllAndTempo(t *testing.T) {
	h := newHarness(t, testOptions())
	h.send(Command{Op: OpAddSynth})
	h.send(Command{Op: OpLoopAll, End: 48})
	h.render(1, 2)

	tr := h.e.Synth(0).Transport()
	if tr.LoopTicks() != 48 {
		t.Fatalf("loop ticks = %d, expected 48", tr.LoopTicks())
	}
	if got, want := tr.LoopSamples(), sequence.LoopSamples(48, sequence.DefaultTempo, 44100); got != want {
		t.Errorf("loop samples = %d, expected %d", got, want)
	}

	h.send(Command{Op: OpTempo, Tempo: 120})
	h.render(1, 2)
	if got := tr.LoopSamples(); got != 44100 {
		t.Errorf("loop samples at 120 bpm = %d, expected 44100", got)
	}
}

func TestEngine_InstrumentOverrun(t *testing.T) {
	h := newHarness(t, testOptions())
	for range 3 {
		h.send(Command{Op: OpAddSynth})
	}
	h.render(1, 2)
	if got := h.e.Stats().Overruns.Load(); got != 1 {
		t.Errorf("overruns = %d, expected 1", got)
	}
}

func TestEngine_SampleAudio(t *testing.T) {
	h := newHarness(t, testOptions())
	h.handshake()
	h.send(Command{Op: OpAddSampler})
	h.params.Enqueue(h.snapshot(nil))

	data := make([]float64, 4096)
	for i := range data {
		data[i] = 1
	}
	h.send(Command{Op: OpSampleAudio, Kind: params.Sampler, Slot: 3, Samples: data})
	h.render(1, 2)

	h.send(Command{Op: OpNoteOn, Kind: params.Sampler, Freq: 3, Velocity: 127})
	if p := peak(h.render(2, 2), 0, 2); p == 0 {
		t.Error("expected slot 3 to sound")
	}

	h.send(Command{Op: OpNoteOn, Kind: params.Sampler, Freq: 5, Velocity: 127})
	h.render(20, 2) // slot 3 has run out
	if p := peak(h.render(1, 2), 0, 2); p != 0 {
		t.Errorf("empty slot sounded, peak %v", p)
	}
}

func TestEngine_SequencePlaysWhileLooping(t *testing.T) {
	h := newHarness(t, testOptions())
	l := h.e.Layout()
	h.handshake()
	h.send(Command{Op: OpAddSynth})
	h.params.Enqueue(h.snapshot(map[int]float64{
		offset(t, l, params.Synth, 0, "attack"):  0.001,
		offset(t, l, params.Synth, 0, "release"): 0.001,
	}))
	h.render(1, 2)

	events := []sequence.Event{
		{Cmd: sequence.NoteOn, Freq: 330, Velocity: 127, Tick: 0},
		{Cmd: sequence.NoteOff, Freq: 330, Tick: 10},
	}
	h.send(Command{Op: OpSequence, Kind: params.Synth, Events: events})
	h.send(Command{Op: OpLoop, Kind: params.Synth, End: 12})
	h.send(Command{Op: OpTempo, Tempo: 240})

	h.render(120, 2)

	tr := h.e.Synth(0).Transport()
	if tr.PlayHead() > tr.LoopTicks() {
		t.Errorf("playhead %d ran past loop %d", tr.PlayHead(), tr.LoopTicks())
	}
	if v := h.e.Synth(0).Voices().Active(); v > 1 {
		t.Errorf("active voices = %d, expected at most 1", v)
	}
}

func TestEngine_ProcessZeroAllocs(t *testing.T) {
	h := newHarness(t, testOptions())
	l := h.e.Layout()
	h.handshake()
	h.send(Command{Op: OpAddSynth})
	h.send(Command{Op: OpAddSampler})
	h.send(Command{Op: OpLoopAll, End: 12})
	h.params.Enqueue(h.snapshot(map[int]float64{offset(t, l, params.Synth, 0, "reverbMix"): 0.5}))
	h.render(1, 2)
	h.send(Command{Op: OpNoteOn, Kind: params.Synth, Freq: 220, Velocity: 100})
	h.send(Command{Op: OpNoteOn, Kind: params.Synth, Freq: 330, Velocity: 100})
	h.render(1, 2)

	buf := make([]float32, testBlock*2)
	allocs := testing.AllocsPerRun(100, func() {
		h.e.Process(buf, 2)
	})
	if allocs != 0 {
		t.Errorf("Process allocated %v times per block", allocs)
	}
}

func BenchmarkEngine_Process(b *testing.B) {
	h := newHarness(b, DefaultOptions())
	h.handshake()
	for range 6 {
		h.send(Command{Op: OpAddSynth})
	}
	h.params.Enqueue(h.snapshot(nil))
	h.render(1, 2)
	for _, f := range []float64{220, 277.18, 329.63, 440} {
		h.send(Command{Op: OpNoteOn, Kind: params.Synth, Freq: f, Velocity: 100})
	}

	buf := make([]float32, testBlock*2)
	b.ReportAllocs()
	for b.Loop() {
		h.e.Process(buf, 2)
	}
}
