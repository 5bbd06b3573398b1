// SPDX-License-Identifier: MIT
// Package analysis monitors the rendered output: a windowed magnitude
// spectrum and coarse band energies for the browser and UDP surfaces.
package analysis

// BlockProcessor consumes interleaved rendered blocks on the audio
// callback. Implementations must not block or allocate.
type BlockProcessor interface {
	Write(block []float32)
}

// SpectrumProvider decouples consumers (BandEnergy, the publishers) from
// the FFT implementation.
type SpectrumProvider interface {
	MagnitudesInto(dest []float64) error
	FrequencyForBin(bin int) float64
	Bins() int
	SampleRate() float64
}
