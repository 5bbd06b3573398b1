// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "instruments/internal/log"
)

var ErrAlreadyRecording = errors.New("audio: already recording")

const wavFormatPCM = 1

// Recorder writes rendered blocks to a PCM WAV file. It is a Tap.
type Recorder struct {
	sampleRate int
	channels   int
	bitDepth   int
	scale      float64

	mu        sync.Mutex // held by Stop; Write skips rather than wait
	recording atomic.Bool
	file      *os.File
	encoder   *wav.Encoder
	buf       *audio.IntBuffer

	frames  atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder sizes the conversion buffer for blocks of framesPerBuffer.
func NewRecorder(sampleRate, channels, bitDepth, framesPerBuffer int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("audio: unsupported bit depth %d", bitDepth)
	}
	if sampleRate <= 0 || channels <= 0 || framesPerBuffer <= 0 {
		return nil, fmt.Errorf("audio: invalid recorder format %d Hz, %d channels, %d frames", sampleRate, channels, framesPerBuffer)
	}

	return &Recorder{
		sampleRate: sampleRate,
		channels:   channels,
		bitDepth:   bitDepth,
		scale:      math.Exp2(float64(bitDepth-1)) - 1,
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			Data:           make([]int, framesPerBuffer*channels),
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Start opens filename and begins capturing.
func (r *Recorder) Start(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording.Load() {
		return ErrAlreadyRecording
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	r.file = file
	r.encoder = wav.NewEncoder(file, r.sampleRate, r.bitDepth, r.channels, wavFormatPCM)
	r.frames.Store(0)

	r.recording.Store(true)
	applog.Infof("Recorder: Recording %d-bit %d Hz to %s", r.bitDepth, r.sampleRate, filename)

	return nil
}

// Stop finalises the WAV header and closes the file. Stopping an idle
// recorder is a no-op.
func (r *Recorder) Stop() error {
	if !r.recording.Load() {
		return nil
	}
	r.recording.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.encoder != nil {
		errs = append(errs, r.encoder.Close())
		r.encoder = nil
	}
	if r.file != nil {
		errs = append(errs, r.file.Close())
		r.file = nil
	}

	applog.Infof("Recorder: Stopped after %d frames", r.frames.Load())
	return errors.Join(errs...)
}

// Close is Stop.
func (r *Recorder) Close() error { return r.Stop() }

// Recording reports whether blocks are being captured.
func (r *Recorder) Recording() bool { return r.recording.Load() }

// Frames returns the number of frames written since Start.
func (r *Recorder) Frames() uint64 { return r.frames.Load() }

// Skipped returns the number of blocks dropped while Stop held the file.
func (r *Recorder) Skipped() uint64 { return r.skipped.Load() }

// Write encodes block, clamped to [-1, 1]. Runs on the audio callback.
func (r *Recorder) Write(block []float32) {
	if !r.recording.Load() {
		return
	}
	if !r.mu.TryLock() {
		r.skipped.Add(1)
		return
	}
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}

	if cap(r.buf.Data) < len(block) {
		r.buf.Data = make([]int, len(block))
	}
	r.buf.Data = r.buf.Data[:len(block)]
	for i, s := range block {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		r.buf.Data[i] = int(math.Round(v * r.scale))
	}

	if err := r.encoder.Write(r.buf); err != nil {
		// Logged once; the callback cannot afford a log line per block.
		if r.failed.Add(1) == 1 {
			applog.Errorf("Recorder: Error writing to WAV file: %v", err)
		}
		return
	}
	r.frames.Add(uint64(len(block) / r.channels))
}
