// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/gordonklaus/portaudio"

	applog "instruments/internal/log"
)

// PortAudioBackend pushes blocks from a PortAudio output callback.
// Initialize must have been called.
type PortAudioBackend struct {
	renderer Renderer
	opts     OutputOptions
	device   *portaudio.DeviceInfo

	mu     sync.Mutex
	stream *portaudio.Stream
}

func NewPortAudioBackend(r Renderer, opts OutputOptions) (*PortAudioBackend, error) {
	device, err := OutputDevice(opts.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedPlatform, err)
	}
	if opts.Channels > device.MaxOutputChannels {
		return nil, fmt.Errorf("device %s supports %d output channels, %d requested",
			device.Name, device.MaxOutputChannels, opts.Channels)
	}

	return &PortAudioBackend{
		renderer: r,
		opts:     opts,
		device:   device,
	}, nil
}

// Device returns the selected output device.
func (b *PortAudioBackend) Device() *portaudio.DeviceInfo { return b.device }

func (b *PortAudioBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stream != nil {
		return nil
	}

	latency := b.device.DefaultHighOutputLatency
	if b.opts.LowLatency {
		latency = b.device.DefaultLowOutputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 0, // No input device
			Device:   nil,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: b.opts.Channels,
			Device:   b.device,
			Latency:  latency,
		},
		FramesPerBuffer: b.opts.FramesPerBuffer,
		SampleRate:      b.opts.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, b.processOutputStream)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedPlatform, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: %w", ErrUnsupportedPlatform, err)
	}
	b.stream = stream

	applog.Infof("PortAudio: Output started on %s (%d ch, %.0f Hz, %d frames, latency %v)",
		b.device.Name, b.opts.Channels, b.opts.SampleRate, b.opts.FramesPerBuffer, latency)
	return nil
}

func (b *PortAudioBackend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stream == nil {
		return nil
	}
	if err := b.stream.Stop(); err != nil {
		return err
	}
	if err := b.stream.Close(); err != nil {
		return err
	}
	b.stream = nil

	return nil
}

func (b *PortAudioBackend) Close() error { return b.Stop() }

// processOutputStream is the device callback. It runs on a PortAudio
// thread and must not allocate.
func (b *PortAudioBackend) processOutputStream(out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	render(b.renderer, b.opts.Taps, out, b.opts.Channels)
}
