// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"testing"

	"instruments/pkg/utils"
)

const (
	testSampleRate = 44100.0
	testFFTSize    = 1024
)

// sine is a full-scale stereo tone.
func sine(freq float64, frames int) []float32 {
	return utils.GenerateSineWave(frames, 2, testSampleRate, freq, 1)
}

func TestNewFFTProcessor_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		channels int
		rate     float64
	}{
		{"NotPowerOfTwo", 1000, 2, testSampleRate},
		{"ZeroRate", testFFTSize, 2, 0},
		{"ZeroChannels", testFFTSize, 0, testSampleRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFFTProcessor(tt.size, tt.channels, tt.rate, Hann); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFFTProcessor_PeakBin(t *testing.T) {
	p, err := NewFFTProcessor(testFFTSize, 2, testSampleRate, Hann)
	if err != nil {
		t.Fatal(err)
	}

	// Exactly on bin 40.
	freq := p.FrequencyForBin(40)
	p.Write(sine(freq, testFFTSize))

	mags := p.Magnitudes()
	if len(mags) != testFFTSize/2+1 {
		t.Fatalf("len = %d, want %d", len(mags), testFFTSize/2+1)
	}
	if peak := utils.FindPeakBin(mags, 0, len(mags)-1); peak != 40 {
		t.Errorf("peak bin = %d, want 40", peak)
	}
	if p.Frames() != testFFTSize {
		t.Errorf("Frames() = %d, want %d", p.Frames(), testFFTSize)
	}
}

func TestFFTProcessor_MagnitudesInto(t *testing.T) {
	p, err := NewFFTProcessor(testFFTSize, 1, testSampleRate, Blackman)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.MagnitudesInto(make([]float64, 3)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("err = %v, want ErrSizeMismatch", err)
	}
	if err := p.MagnitudesInto(make([]float64, p.Bins())); err != nil {
		t.Error(err)
	}
}

func TestFFTProcessor_FrequencyForBin(t *testing.T) {
	p, err := NewFFTProcessor(testFFTSize, 1, testSampleRate, Hann)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		bin  int
		want float64
	}{
		{-1, 0},
		{0, 0},
		{1, testSampleRate / testFFTSize},
		{testFFTSize / 2, testSampleRate / 2},
		{testFFTSize/2 + 1, 0},
	}
	for _, tt := range tests {
		if got := p.FrequencyForBin(tt.bin); got != tt.want {
			t.Errorf("FrequencyForBin(%d) = %v, want %v", tt.bin, got, tt.want)
		}
	}
}

func TestFFTProcessor_WriteZeroAllocs(t *testing.T) {
	p, err := NewFFTProcessor(testFFTSize, 2, testSampleRate, Hann)
	if err != nil {
		t.Fatal(err)
	}
	block := sine(440, 256)
	allocs := testing.AllocsPerRun(50, func() {
		p.Write(block)
	})
	if allocs != 0 {
		t.Errorf("Write allocated %.0f times", allocs)
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		in      string
		want    WindowFunc
		wantErr bool
	}{
		{"Hann", Hann, false},
		{"hanning", Hann, false},
		{"BLACKMAN", Blackman, false},
		{"nuttall", Nuttall, false},
		{"rectangular", Hann, true},
	}
	for _, tt := range tests {
		got, err := ParseWindowFunc(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseWindowFunc(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func BenchmarkFFTProcessor_Write(b *testing.B) {
	p, err := NewFFTProcessor(2048, 2, testSampleRate, Hann)
	if err != nil {
		b.Fatal(err)
	}
	block := sine(440, 512)
	b.ReportAllocs()
	for b.Loop() {
		p.Write(block)
	}
}
