// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math/cmplx"
	"strings"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	applog "instruments/internal/log"
	"instruments/pkg/bitint"
)

var ErrSizeMismatch = errors.New("analysis: destination length does not match bin count")

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

var windowNames = [...]string{"bartletthann", "blackman", "blackmannuttall", "hann", "hamming", "lanczos", "nuttall"}

func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

// FFTProcessor keeps the magnitude spectrum of the most recent fftSize
// mono samples of output. Write runs on the audio callback; readers take
// the read lock from any goroutine.
type FFTProcessor struct {
	fft        *fourier.FFT
	fftSize    int
	channels   int
	sampleRate float64
	window     []float64

	history []float64 // mono ring of the last fftSize samples
	pos     int
	input   []float64
	coeffs  []complex128

	mu        sync.RWMutex // guards magnitude
	magnitude []float64
	frames    atomic.Uint64
	skipped   atomic.Uint64
}

var _ BlockProcessor = (*FFTProcessor)(nil)
var _ SpectrumProvider = (*FFTProcessor)(nil)

// NewFFTProcessor analyses interleaved blocks of the given channel count.
// fftSize must be a power of two.
func NewFFTProcessor(fftSize, channels int, sampleRate float64, windowType WindowFunc) (*FFTProcessor, error) {
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	coeffs := make([]float64, fftSize)
	applyWindow(coeffs, windowType)

	// Real input yields N/2 + 1 complex values.
	bins := fftSize/2 + 1

	applog.Infof("Analysis: Initializing FFTProcessor (Size: %d, SampleRate: %.1f Hz, Window: %v)", fftSize, sampleRate, windowType)

	return &FFTProcessor{
		fft:        fourier.NewFFT(fftSize),
		fftSize:    fftSize,
		channels:   channels,
		sampleRate: sampleRate,
		window:     coeffs,
		history:    make([]float64, fftSize),
		input:      make([]float64, fftSize),
		coeffs:     make([]complex128, bins),
		magnitude:  make([]float64, bins),
	}, nil
}

// Write mixes block to mono into the history and recomputes the spectrum.
// If a reader holds the lock the spectrum update is skipped; the history
// still advances.
func (p *FFTProcessor) Write(block []float32) {
	frames := len(block) / p.channels
	scale := 1 / float64(p.channels)
	for f := range frames {
		var sum float64
		for c := range p.channels {
			sum += float64(block[f*p.channels+c])
		}
		p.history[p.pos] = sum * scale
		p.pos = (p.pos + 1) & (p.fftSize - 1)
	}
	p.frames.Add(uint64(frames))

	// Oldest sample first.
	for i := range p.fftSize {
		p.input[i] = p.history[(p.pos+i)&(p.fftSize-1)] * p.window[i]
	}
	p.fft.Coefficients(p.coeffs, p.input)

	if !p.mu.TryLock() {
		p.skipped.Add(1)
		return
	}
	norm := 2 / float64(p.fftSize)
	for i, c := range p.coeffs {
		p.magnitude[i] = cmplx.Abs(c) * norm
	}
	p.mu.Unlock()
}

// Magnitudes returns a copy of the latest magnitude spectrum.
func (p *FFTProcessor) Magnitudes() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]float64, len(p.magnitude))
	copy(out, p.magnitude)
	return out
}

// MagnitudesInto copies the latest spectrum into dest, which must have
// Bins() elements.
func (p *FFTProcessor) MagnitudesInto(dest []float64) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(dest) != len(p.magnitude) {
		return fmt.Errorf("%w: %d != %d", ErrSizeMismatch, len(dest), len(p.magnitude))
	}
	copy(dest, p.magnitude)
	return nil
}

// FrequencyForBin returns the center frequency (Hz) of bin, 0 when out of range.
func (p *FFTProcessor) FrequencyForBin(bin int) float64 {
	if bin < 0 || bin >= len(p.coeffs) {
		return 0
	}
	return float64(bin) * p.sampleRate / float64(p.fftSize)
}

func (p *FFTProcessor) Bins() int           { return len(p.coeffs) }
func (p *FFTProcessor) Size() int           { return p.fftSize }
func (p *FFTProcessor) SampleRate() float64 { return p.sampleRate }
func (p *FFTProcessor) Frames() uint64      { return p.frames.Load() }

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch n := strings.ToLower(name); n {
	case "hanning":
		return Hann, nil
	default:
		for i, w := range windowNames {
			if w == n {
				return WindowFunc(i), nil
			}
		}
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window, Hann when unknown.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// The gonum windows scale in place.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		applog.Warnf("Analysis: Unknown window function type %d, defaulting to Hann", windowType)
		window.Hann(coeffs)
	}
}
