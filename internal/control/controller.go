// SPDX-License-Identifier: MIT
/*
Package control implements the control side of the instrument host. A
Controller owns the global parameter snapshot, connects to an engine's
queues, and turns note, sequence and transport requests into render
commands.

Thread Safety:
- All Controller methods are safe for concurrent use
- The parameter queue has a single writer: sends are serialised and
  retried without holding the state lock
- The playhead queue has a single reader: Controller.Run
*/
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"instruments/internal/engine"
	applog "instruments/internal/log"
	"instruments/internal/params"
	"instruments/internal/sequence"
	"instruments/pkg/ringbuf"
)

var (
	ErrQueueFull    = errors.New("control: parameter queue full")
	ErrNotConnected = errors.New("control: not connected to an engine")
	ErrNoInstrument = errors.New("control: no such instrument")
)

// Engine is the render side as the controller sees it. *engine.Engine
// satisfies it.
type Engine interface {
	Commands() chan<- engine.Command
	Outbox() <-chan engine.Message
	Layout() *params.Layout
	Options() engine.Options

	// Read once by New, before rendering starts.
	Tempo() float64
	Playing() bool
}

// Options tunes the controller's timing.
type Options struct {
	RetryDelay   time.Duration // wait between full-queue retries
	RetryCap     int           // retries before giving up
	PollInterval time.Duration // playhead queue polling
}

// DefaultOptions returns the stock timing.
func DefaultOptions() Options {
	return Options{
		RetryDelay:   30 * time.Millisecond,
		RetryCap:     20,
		PollInterval: 10 * time.Millisecond,
	}
}

// TickFunc receives the latest playhead snapshot, one entry per instrument
// slot. The slice is reused between calls.
type TickFunc func(playheads []float32)

type instrumentKey struct {
	kind  params.Kind
	index int
}

// Controller is the control-side handle for one engine.
type Controller struct {
	opts     Options
	commands chan<- engine.Command
	outbox   <-chan engine.Message
	layout   *params.Layout
	defs     [params.NumKinds][]params.Def

	sendMu   sync.Mutex
	outgoing []float32 // copy of global being sent, guarded by sendMu

	mu        sync.Mutex
	global    []float32 // raw values, one snapshot
	writer    *ringbuf.ArrayWriter[float32]
	loops     *ringbuf.ArrayReader[float32]
	counts    [params.NumKinds]int
	mapped    map[instrumentKey][]string
	subs      []TickFunc
	playheads []float32
	tempo     float64
	playing   bool
}

// New builds a controller for e. Connect must be called before parameters
// can reach the engine.
func New(e Engine, opts Options) *Controller {
	eo := e.Options()
	layout := e.Layout()
	c := &Controller{
		opts:      opts,
		commands:  e.Commands(),
		outbox:    e.Outbox(),
		layout:    layout,
		global:    make([]float32, eo.PayloadSize),
		outgoing:  make([]float32, eo.PayloadSize),
		mapped:    make(map[instrumentKey][]string),
		playheads: make([]float32, eo.LoopSlots),
		tempo:     e.Tempo(),
		playing:   e.Playing(),
	}
	c.defs[params.Synth] = params.SynthDefs()
	c.defs[params.Sampler] = params.SamplerDefs(eo.SamplerSlots)

	for off := range layout.Size() {
		kind, _, pos, _ := layout.Slot(off)
		d := c.defs[kind][pos]
		c.global[off] = float32(d.Raw(d.Default))
	}
	return c
}

// Layout returns the parameter address map shared with the engine.
func (c *Controller) Layout() *params.Layout { return c.layout }

// Connect waits for the engine to hand over its queues, then sends the
// parameter key lists. It must complete before Enqueue or Run.
func (c *Controller) Connect(ctx context.Context) error {
	for c.writer == nil || c.loops == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for engine queues: %w", ctx.Err())
		case m := <-c.outbox:
			if err := c.handle(m); err != nil {
				return err
			}
		}
	}

	for kind := range params.Kind(params.NumKinds) {
		keys := c.layout.Keys(kind)
		if err := c.send(ctx, engine.Command{Op: engine.OpParameterKeys, Kind: kind, Keys: keys}); err != nil {
			return err
		}
	}
	applog.Infof("Controller: Connected (%d parameter slots)", c.layout.Size())
	return nil
}

func (c *Controller) handle(m engine.Message) error {
	switch m.Type {
	case engine.ParamQueueReady:
		rb, err := ringbuf.New[float32](m.Region)
		if err != nil {
			return fmt.Errorf("failed to attach parameter queue: %w", err)
		}
		w, err := ringbuf.NewArrayWriter(rb)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.writer = w
		c.mu.Unlock()
	case engine.LoopQueueReady:
		rb, err := ringbuf.New[float32](m.Region)
		if err != nil {
			return fmt.Errorf("failed to attach loop queue: %w", err)
		}
		r, err := ringbuf.NewArrayReader(rb)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.loops = r
		c.mu.Unlock()
	case engine.KeysRejected:
		applog.Errorf("Controller: Engine rejected %s parameter keys; parameter payloads will be discarded", m.Kind)
	default:
		applog.Warnf("Controller: Ignoring message %s", m.Type)
	}
	return nil
}

// Run polls the playhead queue and forwards snapshots to OnTick
// subscribers until ctx is done. Engine messages arriving after Connect
// are logged.
func (c *Controller) Run(ctx context.Context) error {
	if c.loops == nil {
		return ErrNotConnected
	}
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	buf := make([]float32, len(c.playheads))
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-c.outbox:
			if err := c.handle(m); err != nil {
				applog.Errorf("Controller: %v", err)
			}
		case <-ticker.C:
			c.poll(buf)
		}
	}
}

// poll drains every queued snapshot and keeps the newest.
func (c *Controller) poll(buf []float32) {
	got := false
	for c.loops.AvailableRead() >= len(buf) {
		if _, ok := c.loops.Dequeue(buf); !ok {
			break
		}
		got = true
	}
	if !got {
		return
	}

	c.mu.Lock()
	copy(c.playheads, buf)
	subs := c.subs
	c.mu.Unlock()

	for _, fn := range subs {
		fn(buf)
	}
}

// OnTick registers fn for playhead snapshots.
func (c *Controller) OnTick(fn TickFunc) {
	c.mu.Lock()
	c.subs = append(c.subs[:len(c.subs):len(c.subs)], fn)
	c.mu.Unlock()
}

// Playheads returns a copy of the latest playhead snapshot.
func (c *Controller) Playheads() []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float32, len(c.playheads))
	copy(out, c.playheads)
	return out
}

func (c *Controller) send(ctx context.Context, cmd engine.Command) error {
	select {
	case c.commands <- cmd:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sending %s: %w", cmd.Op, ctx.Err())
	}
}

// Enqueue sends the current snapshot. A full queue is retried every
// RetryDelay up to RetryCap times, after which ErrQueueFull is returned and
// the update is dropped; the next snapshot carries it anyway.
func (c *Controller) Enqueue(ctx context.Context) error {
	return c.update(ctx, nil)
}

// update applies fn to the snapshot under mu, then sends a copy of the
// result. Only the copy is held across retries, so other calls are not
// blocked by a full queue. Snapshots reach the queue in update order.
func (c *Controller) update(ctx context.Context, fn func() error) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if fn != nil {
		if err := fn(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	w := c.writer
	copy(c.outgoing, c.global)
	c.mu.Unlock()

	if w == nil {
		return ErrNotConnected
	}
	for attempt := 0; ; attempt++ {
		if w.AvailableWrite() >= len(c.outgoing) {
			w.Enqueue(c.outgoing)
			return nil
		}
		if attempt >= c.opts.RetryCap {
			applog.Warnf("Controller: Parameter queue full after %d retries, dropping update", attempt)
			return ErrQueueFull
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.RetryDelay):
		}
	}
}

// AddSynth activates the next synth slot and returns its index.
func (c *Controller) AddSynth(ctx context.Context) (int, error) {
	return c.add(ctx, params.Synth, engine.OpAddSynth)
}

// AddSampler activates the next sampler slot and returns its index.
func (c *Controller) AddSampler(ctx context.Context) (int, error) {
	return c.add(ctx, params.Sampler, engine.OpAddSampler)
}

func (c *Controller) add(ctx context.Context, kind params.Kind, op engine.Op) (int, error) {
	c.mu.Lock()
	index := c.counts[kind]
	if index >= c.layout.Count(kind) {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: all %d %s slots in use", params.ErrIndexRange, c.layout.Count(kind), kind)
	}
	c.counts[kind]++
	c.mu.Unlock()

	if err := c.send(ctx, engine.Command{Op: op}); err != nil {
		return 0, err
	}
	applog.Debugf("Controller: Added %s %d", kind, index)
	return index, nil
}

// Count returns how many instruments of kind have been added.
func (c *Controller) Count(kind params.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[kind]
}

func (c *Controller) checkInstrument(kind params.Kind, index int) error {
	if kind >= params.NumKinds {
		return fmt.Errorf("%w: %v", params.ErrUnknownKind, kind)
	}
	c.mu.Lock()
	n := c.counts[kind]
	c.mu.Unlock()
	if index < 0 || index >= n {
		return fmt.Errorf("%w: %s %d", ErrNoInstrument, kind, index)
	}
	return nil
}

// SetParam sets a parameter in physical units and sends the snapshot.
// Negative values are clamped to 0.
func (c *Controller) SetParam(ctx context.Context, kind params.Kind, index int, name string, value float64) error {
	return c.SetParams(ctx, kind, index, map[string]float64{name: value})
}

// SetParams sets several parameters of one instrument and sends one
// snapshot. Unknown names are rejected before anything changes.
func (c *Controller) SetParams(ctx context.Context, kind params.Kind, index int, values map[string]float64) error {
	offsets := make(map[string]int, len(values))
	for name := range values {
		off, err := c.layout.Offset(kind, index, name)
		if err != nil {
			return err
		}
		offsets[name] = off
	}
	return c.update(ctx, func() error {
		for name, v := range values {
			pos, _ := c.layout.Position(kind, name)
			c.global[offsets[name]] = float32(c.defs[kind][pos].Raw(max(v, 0)))
		}
		return nil
	})
}

func (c *Controller) setRawLocked(kind params.Kind, index int, name string, raw float64) error {
	off, err := c.layout.Offset(kind, index, name)
	if err != nil {
		return err
	}
	c.global[off] = float32(raw)
	return nil
}

// Param returns a parameter in physical units.
func (c *Controller) Param(kind params.Kind, index int, name string) (float64, error) {
	off, err := c.layout.Offset(kind, index, name)
	if err != nil {
		return 0, err
	}
	pos, _ := c.layout.Position(kind, name)
	c.mu.Lock()
	raw := float64(c.global[off])
	c.mu.Unlock()
	return c.defs[kind][pos].Value(raw), nil
}

// Def returns the definition of a named parameter.
func (c *Controller) Def(kind params.Kind, name string) (params.Def, error) {
	pos, err := c.layout.Position(kind, name)
	if err != nil {
		return params.Def{}, err
	}
	return c.defs[kind][pos], nil
}

// SetSequence flattens notes and hands them to the instrument's transport.
// Sampler pitches are slot numbers and are passed through unconverted.
func (c *Controller) SetSequence(ctx context.Context, kind params.Kind, index int, notes []sequence.Note, opts sequence.Options) error {
	if err := c.checkInstrument(kind, index); err != nil {
		return err
	}
	opts.RawPitch = kind == params.Sampler
	events := sequence.Flatten(notes, opts)
	return c.send(ctx, engine.Command{Op: engine.OpSequence, Kind: kind, Index: index, Events: events})
}

// noteFreq converts a MIDI pitch for kind.
func noteFreq(kind params.Kind, pitch float64) float64 {
	if kind == params.Sampler {
		return pitch
	}
	return sequence.MIDIToFreq(pitch)
}

// NoteOn plays a MIDI pitch (a slot number for samplers) outside the
// sequence. velocity is MIDI 0..127.
func (c *Controller) NoteOn(ctx context.Context, kind params.Kind, index int, pitch, velocity float64) error {
	if err := c.checkInstrument(kind, index); err != nil {
		return err
	}
	return c.send(ctx, engine.Command{Op: engine.OpNoteOn, Kind: kind, Index: index, Freq: noteFreq(kind, pitch), Velocity: velocity})
}

// NoteOff releases a MIDI pitch started by NoteOn.
func (c *Controller) NoteOff(ctx context.Context, kind params.Kind, index int, pitch float64) error {
	if err := c.checkInstrument(kind, index); err != nil {
		return err
	}
	return c.send(ctx, engine.Command{Op: engine.OpNoteOff, Kind: kind, Index: index, Freq: noteFreq(kind, pitch)})
}

// Loop sets one instrument's loop. start and end are counted at
// ticksPerBeat; loops always restart at tick 0, so start only has to be
// before end.
func (c *Controller) Loop(ctx context.Context, kind params.Kind, index int, start, end, ticksPerBeat float64) error {
	if err := c.checkInstrument(kind, index); err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("control: loop end %v not after start %v", end, start)
	}
	return c.send(ctx, engine.Command{
		Op:    engine.OpLoop,
		Kind:  kind,
		Index: index,
		Start: int64(sequence.ScaleTicks(start, ticksPerBeat)),
		End:   int64(sequence.ScaleTicks(end, ticksPerBeat)),
	})
}

// LoopAll sets every active instrument's loop to end, counted at
// ticksPerBeat.
func (c *Controller) LoopAll(ctx context.Context, end, ticksPerBeat float64) error {
	return c.send(ctx, engine.Command{Op: engine.OpLoopAll, End: int64(sequence.ScaleTicks(end, ticksPerBeat))})
}

// SetTempo changes the clock tempo in BPM.
func (c *Controller) SetTempo(ctx context.Context, bpm float64) error {
	if bpm <= 0 {
		return fmt.Errorf("control: tempo must be positive, got %v", bpm)
	}
	if err := c.send(ctx, engine.Command{Op: engine.OpTempo, Tempo: bpm}); err != nil {
		return err
	}
	c.mu.Lock()
	c.tempo = bpm
	c.mu.Unlock()
	return nil
}

// Tempo returns the last tempo sent to the engine.
func (c *Controller) Tempo() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tempo
}

// Playing reports the transport state as last toggled by this controller.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// TogglePlaying starts or stops the clock. Stopping releases every voice.
func (c *Controller) TogglePlaying(ctx context.Context) error {
	if err := c.send(ctx, engine.Command{Op: engine.OpTogglePlaying}); err != nil {
		return err
	}
	c.mu.Lock()
	c.playing = !c.playing
	c.mu.Unlock()
	return nil
}

// Rewind moves every playhead to zero.
func (c *Controller) Rewind(ctx context.Context) error {
	return c.send(ctx, engine.Command{Op: engine.OpRewind})
}

// SendTick asks the engine to publish its playheads now.
func (c *Controller) SendTick(ctx context.Context) error {
	return c.send(ctx, engine.Command{Op: engine.OpSendTick})
}

// SampleAudio loads samples into a sampler slot. The engine takes
// ownership of data.
func (c *Controller) SampleAudio(ctx context.Context, index, slot int, data []float64) error {
	if slot < 0 || slot >= c.layout.ParamCount(params.Sampler)/params.NumSamplerCoreParams {
		return fmt.Errorf("%w: sample slot %d", params.ErrIndexRange, slot)
	}
	if index < 0 || index >= c.layout.Count(params.Sampler) {
		return fmt.Errorf("%w: sampler %d", params.ErrIndexRange, index)
	}
	return c.send(ctx, engine.Command{Op: engine.OpSampleAudio, Kind: params.Sampler, Index: index, Slot: slot, Samples: data})
}
