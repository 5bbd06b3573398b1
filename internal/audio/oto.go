// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/oto/v3"

	applog "instruments/internal/log"
)

const bytesPerSample = 4

// OtoBackend is a pull-style output: oto reads rendered float32 frames
// through io.Reader. Only one oto context may exist per process.
type OtoBackend struct {
	renderer Renderer
	opts     OutputOptions
	samples  []float32

	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
}

func NewOtoBackend(r Renderer, opts OutputOptions) (*OtoBackend, error) {
	op := &oto.NewContextOptions{
		SampleRate:   int(opts.SampleRate),
		ChannelCount: opts.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   opts.latency(),
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedPlatform, err)
	}
	<-ready

	b := &OtoBackend{
		renderer: r,
		opts:     opts,
		samples:  make([]float32, opts.FramesPerBuffer*opts.Channels),
		ctx:      ctx,
	}
	b.player = ctx.NewPlayer(b)
	return b, nil
}

func (b *OtoBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.player == nil {
		return fmt.Errorf("oto: backend closed")
	}
	b.player.Play()
	applog.Infof("Oto: Output started (%d ch, %.0f Hz)", b.opts.Channels, b.opts.SampleRate)
	return nil
}

func (b *OtoBackend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.player != nil && b.player.IsPlaying() {
		b.player.Pause()
	}
	return nil
}

func (b *OtoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.player == nil {
		return nil
	}
	err := b.player.Close()
	b.player = nil
	return err
}

// Read renders whole frames into p. A partial trailing frame is left for
// the next call.
func (b *OtoBackend) Read(p []byte) (int, error) {
	frameBytes := b.opts.Channels * bytesPerSample
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	if limit := len(b.samples) / b.opts.Channels; frames > limit {
		frames = limit
	}

	samples := b.samples[:frames*b.opts.Channels]
	render(b.renderer, b.opts.Taps, samples, b.opts.Channels)

	n := len(samples) * bytesPerSample
	copy(p, unsafe.Slice((*byte)(unsafe.Pointer(&samples[0])), n))
	return n, nil
}
