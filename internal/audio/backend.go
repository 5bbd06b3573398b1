// SPDX-License-Identifier: MIT
/*
Package audio moves rendered blocks to the outside world:
- PortAudio and oto output backends driving a Renderer from the device callback
- An offline renderer writing straight to WAV
- WAV recording of the live output
- WAV loading for sampler slots

Thread Safety:
- Renderer.Process runs on the device's callback goroutine, locked to its OS thread
- Recorder.Write never blocks; a block is skipped while Stop holds the recorder
*/
package audio

import (
	"errors"
	"time"
)

// ErrUnsupportedPlatform wraps every failure to bring up a real-time
// output. It is fatal to the session, not the process.
var ErrUnsupportedPlatform = errors.New("audio: real-time output unavailable on this platform")

// Renderer fills an interleaved block. *engine.Engine satisfies it.
type Renderer interface {
	Process(out []float32, channels int)
}

// Tap observes every rendered block after it is produced. Implementations
// run on the audio callback and must not block.
type Tap interface {
	Write(block []float32)
}

// Backend is a running output.
type Backend interface {
	Start() error
	Stop() error
	Close() error
}

// OutputOptions describes the output stream.
type OutputOptions struct {
	DeviceID        int // PortAudio only
	SampleRate      float64
	Channels        int
	FramesPerBuffer int
	LowLatency      bool
	Taps            []Tap
}

func (o OutputOptions) latency() time.Duration {
	return time.Duration(float64(o.FramesPerBuffer) / o.SampleRate * float64(time.Second))
}

// render calls r then every tap.
func render(r Renderer, taps []Tap, out []float32, channels int) {
	r.Process(out, channels)
	for _, t := range taps {
		t.Write(out)
	}
}
