// SPDX-License-Identifier: MIT
/*
Package engine implements the render side of the instrument host:
- Synths and samplers driven by per-instrument transports
- A shared tempo clock ticking every transport
- Parameter snapshots received over a lock-free ring buffer
- Playhead feedback sent back over a second ring buffer

Thread Safety:
- Process and everything it reaches belong to the render goroutine
- Commands arrive on a buffered channel drained without blocking
- Stats are atomic and may be read from any goroutine
*/
package engine

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"instruments/internal/params"
	"instruments/internal/sequence"
	"instruments/pkg/ringbuf"
)

var ErrInvalidOptions = errors.New("engine: invalid options")

// Options sizes the engine. Everything is allocated in New.
type Options struct {
	SampleRate   float64
	Synths       int // synth slots
	Samplers     int // sampler slots
	SynthVoices  int
	SamplerSlots int

	ParamQueueCapacity int // elements
	PayloadSize        int // elements per parameter snapshot
	LoopQueueCapacity  int // elements
	LoopSlots          int // playheads per snapshot

	CommandBuffer int
}

// DefaultOptions returns the stock engine sizing.
func DefaultOptions() Options {
	return Options{
		SampleRate:         44100,
		Synths:             6,
		Samplers:           6,
		SynthVoices:        12,
		SamplerSlots:       8,
		ParamQueueCapacity: 512,
		PayloadSize:        512,
		LoopQueueCapacity:  31,
		LoopSlots:          16,
		CommandBuffer:      256,
	}
}

// Validate reports the first sizing problem found.
func (o Options) Validate(layout *params.Layout) error {
	switch {
	case o.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %v", ErrInvalidOptions, o.SampleRate)
	case o.Synths < 0 || o.Samplers < 0:
		return fmt.Errorf("%w: negative instrument count", ErrInvalidOptions)
	case o.SynthVoices <= 0 || o.SamplerSlots <= 0:
		return fmt.Errorf("%w: voices %d, slots %d", ErrInvalidOptions, o.SynthVoices, o.SamplerSlots)
	case o.PayloadSize < layout.Size():
		return fmt.Errorf("%w: payload size %d below layout size %d", ErrInvalidOptions, o.PayloadSize, layout.Size())
	case o.ParamQueueCapacity < o.PayloadSize:
		return fmt.Errorf("%w: param queue capacity %d below payload size %d", ErrInvalidOptions, o.ParamQueueCapacity, o.PayloadSize)
	case o.LoopSlots < o.Synths+o.Samplers:
		return fmt.Errorf("%w: %d loop slots for %d instruments", ErrInvalidOptions, o.LoopSlots, o.Synths+o.Samplers)
	case o.LoopQueueCapacity < o.LoopSlots:
		return fmt.Errorf("%w: loop queue capacity %d below loop slots %d", ErrInvalidOptions, o.LoopQueueCapacity, o.LoopSlots)
	case o.CommandBuffer <= 0:
		return fmt.Errorf("%w: command buffer %d", ErrInvalidOptions, o.CommandBuffer)
	}
	return nil
}

// Stats are render-side counters. The render path never logs; it counts.
type Stats struct {
	PayloadsApplied   atomic.Uint64
	PayloadsDiscarded atomic.Uint64 // received before the key handshake
	KeyMismatches     atomic.Uint64
	VoicesStolen      atomic.Uint64
	NotesDropped      atomic.Uint64
	Overruns          atomic.Uint64 // commands or instruments beyond capacity
	Blocks            atomic.Uint64
}

// Engine is the render loop. Build it with New, hand Commands to the
// control side and call Process from the audio callback.
type Engine struct {
	opts      Options
	layout    *params.Layout
	handshake *params.Handshake

	commands chan Command
	outbox   chan Message

	synths       []*Synth
	samplers     []*Sampler
	active       []instrument // synths first, then samplers
	synthCount   int
	samplerCount int

	clock   *sequence.Clock
	playing bool // false until the first OpTogglePlaying

	paramReader *ringbuf.ArrayReader[float32]
	payload     []float32
	applied     []float32 // last applied raw value per offset
	loopWriter  *ringbuf.ArrayWriter[float32]
	loops       []float32

	stats Stats
}

// New allocates every instrument and queue up front and posts the queue
// regions on the outbox. The transport starts stopped.
func New(opts Options) (*Engine, error) {
	layout, err := params.DefaultLayout(opts.Synths, opts.Samplers, opts.SamplerSlots)
	if err != nil {
		return nil, fmt.Errorf("failed to build parameter layout: %w", err)
	}
	if err := opts.Validate(layout); err != nil {
		return nil, err
	}

	paramRegion, err := ringbuf.NewRegion[float32](opts.ParamQueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate parameter queue: %w", err)
	}
	paramRB, err := ringbuf.New[float32](paramRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to attach parameter queue: %w", err)
	}
	paramReader, err := ringbuf.NewArrayReader(paramRB)
	if err != nil {
		return nil, err
	}

	loopRegion, err := ringbuf.NewRegion[float32](opts.LoopQueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate loop queue: %w", err)
	}
	loopRB, err := ringbuf.New[float32](loopRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to attach loop queue: %w", err)
	}
	loopWriter, err := ringbuf.NewArrayWriter(loopRB)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:        opts,
		layout:      layout,
		handshake:   params.NewHandshake(layout),
		commands:    make(chan Command, opts.CommandBuffer),
		outbox:      make(chan Message, 8),
		synths:      make([]*Synth, opts.Synths),
		samplers:    make([]*Sampler, opts.Samplers),
		active:      make([]instrument, 0, opts.Synths+opts.Samplers),
		clock:       sequence.NewClock(opts.SampleRate),
		paramReader: paramReader,
		payload:     make([]float32, opts.PayloadSize),
		applied:     make([]float32, layout.Size()),
		loopWriter:  loopWriter,
		loops:       make([]float32, opts.LoopSlots),
	}
	for i := range e.synths {
		if e.synths[i], err = NewSynth(opts.SampleRate, opts.SynthVoices); err != nil {
			return nil, err
		}
	}
	for i := range e.samplers {
		e.samplers[i] = NewSampler(opts.SampleRate, opts.SamplerSlots)
	}
	e.resetApplied()

	e.outbox <- Message{Type: ParamQueueReady, Region: paramRegion}
	e.outbox <- Message{Type: LoopQueueReady, Region: loopRegion}
	return e, nil
}

// Commands is the control-to-render channel.
func (e *Engine) Commands() chan<- Command { return e.commands }

// Outbox is the render-to-control channel.
func (e *Engine) Outbox() <-chan Message { return e.outbox }

// Layout returns the parameter address map the engine was sized with.
func (e *Engine) Layout() *params.Layout { return e.layout }

// Options returns the sizing the engine was built with.
func (e *Engine) Options() Options { return e.opts }

// Stats returns the live counters.
func (e *Engine) Stats() *Stats { return &e.stats }

// Synth returns synth slot i, active or not.
func (e *Engine) Synth(i int) *Synth { return e.synths[i] }

// Sampler returns sampler slot i, active or not.
func (e *Engine) Sampler(i int) *Sampler { return e.samplers[i] }

// Playing reports whether the clock is running.
func (e *Engine) Playing() bool { return e.playing }

// Tempo returns the clock tempo in BPM.
func (e *Engine) Tempo() float64 { return e.clock.Tempo() }

// Process renders one interleaved block. It never blocks or allocates.
func (e *Engine) Process(out []float32, channels int) {
	if channels <= 0 {
		return
	}
	e.drainCommands()

	frames := len(out) / channels
	for f := range frames {
		for _, in := range e.active {
			in.OnSample()
		}

		if e.playing && e.clock.Advance() {
			e.tick()
		}

		e.drainParams()

		var l, r float64
		for _, in := range e.active {
			il, ir := in.Signal()
			l += il
			r += ir
		}

		frame := out[f*channels : (f+1)*channels]
		if channels == 1 {
			frame[0] = float32(l + r)
			continue
		}
		frame[0] = float32(l)
		frame[1] = float32(r)
		for c := 2; c < channels; c++ {
			frame[c] = 0
		}
	}

	e.publishStats()
	e.stats.Blocks.Add(1)
}

func (e *Engine) tick() {
	for i, in := range e.active {
		tick(in)
		if i < len(e.loops) {
			e.loops[i] = float32(in.Transport().PlayHead())
		}
	}
	e.sendLoops()
}

func (e *Engine) sendLoops() {
	if e.loopWriter.AvailableWrite() >= len(e.loops) {
		e.loopWriter.Enqueue(e.loops)
	}
}

// drainParams applies at most one parameter snapshot. Snapshots arriving
// before both key lists are confirmed are consumed and discarded.
func (e *Engine) drainParams() {
	if e.paramReader.AvailableRead() < len(e.payload) {
		return
	}
	if _, ok := e.paramReader.Dequeue(e.payload); !ok {
		return
	}
	if !e.handshake.Ready() {
		e.stats.PayloadsDiscarded.Add(1)
		return
	}

	for off := range e.applied {
		v := e.payload[off]
		if v == e.applied[off] {
			continue
		}
		kind, index, pos, ok := e.layout.Slot(off)
		if !ok {
			continue
		}
		e.table(kind, index).SetRaw(pos, float64(v))
		e.applied[off] = v
	}
	for _, in := range e.active {
		in.SetLoaded(true)
	}
	e.stats.PayloadsApplied.Add(1)
}

func (e *Engine) table(kind params.Kind, index int) *params.Table {
	if kind == params.Synth {
		return e.synths[index].Table()
	}
	return e.samplers[index].Table()
}

// resetApplied forces the next snapshot to be applied in full.
func (e *Engine) resetApplied() {
	nan := float32(math.NaN())
	for i := range e.applied {
		e.applied[i] = nan
	}
}

func (e *Engine) publishStats() {
	var stolen, dropped uint64
	for _, s := range e.synths[:e.synthCount] {
		st := s.Voices().Stats()
		stolen += st.Stolen
		dropped += st.Dropped
	}
	e.stats.VoicesStolen.Store(stolen)
	e.stats.NotesDropped.Store(dropped)
}

func (e *Engine) drainCommands() {
	for {
		select {
		case c := <-e.commands:
			e.apply(c)
		default:
			return
		}
	}
}

// instrument returns the active instrument for kind/index, or nil.
func (e *Engine) instrument(kind params.Kind, index int) instrument {
	switch kind {
	case params.Synth:
		if index >= 0 && index < e.synthCount {
			return e.synths[index]
		}
	case params.Sampler:
		if index >= 0 && index < e.samplerCount {
			return e.samplers[index]
		}
	}
	return nil
}

func (e *Engine) apply(c Command) {
	switch c.Op {
	case OpAddSynth:
		if e.synthCount >= len(e.synths) {
			e.stats.Overruns.Add(1)
			return
		}
		s := e.synths[e.synthCount]
		e.synthCount++
		e.rebuildActive()
		s.SetLoaded(e.loadedOnce())
	case OpAddSampler:
		if e.samplerCount >= len(e.samplers) {
			e.stats.Overruns.Add(1)
			return
		}
		s := e.samplers[e.samplerCount]
		e.samplerCount++
		e.rebuildActive()
		s.SetLoaded(e.loadedOnce())
	case OpParameterKeys:
		if !e.handshake.Accept(c.Kind, c.Keys) {
			e.stats.KeyMismatches.Add(1)
			e.post(Message{Type: KeysRejected, Kind: c.Kind})
			return
		}
		e.resetApplied()
	case OpSequence:
		if in := e.instrument(c.Kind, c.Index); in != nil {
			in.Transport().SetSequence(c.Events, in)
		}
	case OpNoteOn:
		if in := e.instrument(c.Kind, c.Index); in != nil {
			in.NoteOn(c.Freq, c.Velocity)
		}
	case OpNoteOff:
		if in := e.instrument(c.Kind, c.Index); in != nil {
			in.NoteOff(c.Freq)
		}
	case OpLoop:
		if in := e.instrument(c.Kind, c.Index); in != nil {
			e.setLoop(in, c.End)
		}
	case OpLoopAll:
		for _, in := range e.active {
			e.setLoop(in, c.End)
		}
	case OpTempo:
		e.clock.SetTempo(c.Tempo)
		for _, in := range e.active {
			if ticks := in.Transport().LoopTicks(); ticks != math.MaxInt64 {
				e.setLoop(in, ticks)
			}
		}
	case OpTogglePlaying:
		e.playing = !e.playing
		if !e.playing {
			for _, in := range e.active {
				in.ReleaseAll()
			}
		}
	case OpRewind:
		for _, in := range e.active {
			in.Transport().Rewind(in)
		}
		e.clock.Reset()
	case OpSampleAudio:
		if c.Kind == params.Sampler && c.Index >= 0 && c.Index < len(e.samplers) {
			e.samplers[c.Index].SetSample(c.Slot, c.Samples)
		}
	case OpSendTick:
		e.sendLoops()
	default:
		e.stats.Overruns.Add(1)
	}
}

// loadedOnce reports whether a snapshot has already been applied; a late
// added instrument picks up the values already in its table.
func (e *Engine) loadedOnce() bool {
	return e.stats.PayloadsApplied.Load() > 0
}

func (e *Engine) rebuildActive() {
	e.active = e.active[:0]
	for _, s := range e.synths[:e.synthCount] {
		e.active = append(e.active, s)
	}
	for _, s := range e.samplers[:e.samplerCount] {
		e.active = append(e.active, s)
	}
}

// setLoop sets the loop end in ticks. Loops always start at tick 0.
func (e *Engine) setLoop(in instrument, ticks int64) {
	in.Transport().SetLoop(ticks, sequence.LoopSamples(ticks, e.clock.Tempo(), e.opts.SampleRate))
}

func (e *Engine) post(m Message) {
	select {
	case e.outbox <- m:
	default:
		e.stats.Overruns.Add(1)
	}
}
