// SPDX-License-Identifier: MIT
// Package transport publishes engine state (playheads, tempo, spectrum
// bands) to out-of-process observers.
package transport

import "errors"

var ErrClosed = errors.New("transport: closed")

// Transport defines a generic interface for sending state snapshots.
// Implementations must be safe for concurrent use and must not block the
// caller; a full transport drops.
type Transport interface {
	Send(data any) error
	Close() error
}

// Message types on the wire.
const (
	TypePlayheads = "playheads"
	TypeBands     = "band_energy"
)

// Playheads is the JSON form of one playhead snapshot.
type Playheads struct {
	Type      string    `json:"type"`
	Playheads []float32 `json:"playheads"`
	Tempo     float64   `json:"tempo"`
	Playing   bool      `json:"playing"`
}

// NewPlayheads copies playheads; tick callbacks reuse their slice.
func NewPlayheads(playheads []float32, tempo float64, playing bool) Playheads {
	return Playheads{
		Type:      TypePlayheads,
		Playheads: append([]float32(nil), playheads...),
		Tempo:     tempo,
		Playing:   playing,
	}
}

// Bands is the JSON form of the output band energies.
type Bands struct {
	Type  string             `json:"type"`
	Bands map[string]float64 `json:"bands"`
}

func NewBands(bands map[string]float64) Bands {
	return Bands{Type: TypeBands, Bands: bands}
}

// Multi fans a message out to several transports.
type Multi []Transport

func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		errs = append(errs, t.Send(data))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
