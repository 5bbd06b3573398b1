// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrInvalidWAV = errors.New("audio: not a valid WAV file")

// LoadSample decodes a PCM WAV file into mono float32 in [-1, 1],
// resampled to sampleRate.
func LoadSample(path string, sampleRate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	mono := mixdown(buf, int(d.BitDepth))
	return convertRate(mono, buf.Format.SampleRate, sampleRate)
}

// mixdown averages interleaved channels and scales to [-1, 1].
func mixdown(buf *audio.IntBuffer, bitDepth int) []float32 {
	channels := max(buf.Format.NumChannels, 1)
	scale := 1 / math.Exp2(float64(bitDepth-1))

	out := make([]float32, len(buf.Data)/channels)
	for i := range out {
		var sum int
		for c := range channels {
			sum += buf.Data[i*channels+c]
		}
		out[i] = float32(float64(sum) / float64(channels) * scale)
	}
	return out
}

// convertRate resamples with a polyphase FIR. The filter delay is flushed
// and trimmed so the output lines up with in. Equal rates return in as is.
func convertRate(in []float32, from, to int) ([]float32, error) {
	if from == to || len(in) == 0 {
		return in, nil
	}
	r, err := resample.NewForRates(float64(from), float64(to), resample.WithQuality(resample.QualityBalanced))
	if err != nil {
		return nil, fmt.Errorf("resample %d Hz to %d Hz: %w", from, to, err)
	}

	_, down := r.Ratio()
	want := r.PredictOutputLen(len(in))
	delay := (len(r.Prototype()) - 1) / (2 * down)

	src := make([]float64, len(in)+r.TapsPerPhase())
	for i, v := range in {
		src[i] = float64(v)
	}
	y := r.Process(src)
	y = y[min(delay, len(y)):min(delay+want, len(y))]

	out := make([]float32, len(y))
	for i, v := range y {
		out[i] = float32(v)
	}
	return out, nil
}
