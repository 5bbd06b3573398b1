// SPDX-License-Identifier: MIT
package analysis

import "math"

// FrequencyBand names a frequency range.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the spectrum up to Nyquist.
func DefaultBands(sampleRate float64) []FrequencyBand {
	return []FrequencyBand{
		{Name: "sub", LowHz: 20, HighHz: 60},
		{Name: "bass", LowHz: 60, HighHz: 250},
		{Name: "lowMid", LowHz: 250, HighHz: 500},
		{Name: "mid", LowHz: 500, HighHz: 2000},
		{Name: "highMid", LowHz: 2000, HighHz: 4000},
		{Name: "treble", LowHz: 4000, HighHz: sampleRate / 2},
	}
}

// BandEnergy reduces a spectrum to per-band RMS magnitudes in [0, 1].
// Not safe for concurrent use; each publisher owns one.
type BandEnergy struct {
	provider SpectrumProvider
	bands    []FrequencyBand
	binBand  []int // band index per bin, -1 outside every band
	counts   []int
	mags     []float64
	energy   []float64
}

func NewBandEnergy(provider SpectrumProvider, bands []FrequencyBand) *BandEnergy {
	b := &BandEnergy{
		provider: provider,
		bands:    bands,
		binBand:  make([]int, provider.Bins()),
		counts:   make([]int, len(bands)),
		mags:     make([]float64, provider.Bins()),
		energy:   make([]float64, len(bands)),
	}
	for i := range b.binBand {
		b.binBand[i] = -1
		freq := provider.FrequencyForBin(i)
		for j, band := range bands {
			if freq >= band.LowHz && freq < band.HighHz {
				b.binBand[i] = j
				b.counts[j]++
				break
			}
		}
	}
	return b
}

func (b *BandEnergy) Bands() []FrequencyBand { return b.bands }

// Compute returns the energy of each band, in Bands order. The slice is
// reused by the next call.
func (b *BandEnergy) Compute() ([]float64, error) {
	if err := b.provider.MagnitudesInto(b.mags); err != nil {
		return nil, err
	}

	clear(b.energy)
	for i, m := range b.mags {
		if j := b.binBand[i]; j >= 0 {
			b.energy[j] += m * m
		}
	}
	for j := range b.energy {
		if b.counts[j] > 0 {
			b.energy[j] = math.Min(1, math.Sqrt(b.energy[j]/float64(b.counts[j])))
		}
	}
	return b.energy, nil
}

// Map returns the energies keyed by band name.
func (b *BandEnergy) Map() (map[string]float64, error) {
	energy, err := b.Compute()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(energy))
	for j, e := range energy {
		out[b.bands[j].Name] = e
	}
	return out, nil
}
