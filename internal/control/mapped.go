// SPDX-License-Identifier: MIT
package control

import (
	"context"
	"errors"
	"math/rand/v2"

	"instruments/internal/params"
)

// MappedParam names one parameter a model drives.
type MappedParam struct {
	Kind  params.Kind
	Index int
	Name  string
}

// SetMapped replaces the list of model-driven parameters of one
// instrument. Unknown names are rejected before anything changes.
func (c *Controller) SetMapped(kind params.Kind, index int, names []string) error {
	for _, n := range names {
		if _, err := c.layout.Offset(kind, index, n); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := instrumentKey{kind, index}
	if len(names) == 0 {
		delete(c.mapped, k)
		return nil
	}
	c.mapped[k] = append([]string(nil), names...)
	return nil
}

// Mapped returns every mapped parameter: synths before samplers, then by
// index, then in the order given to SetMapped.
func (c *Controller) Mapped() []MappedParam {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mappedLocked()
}

func (c *Controller) mappedLocked() []MappedParam {
	var out []MappedParam
	for kind := range params.Kind(params.NumKinds) {
		for index := range c.layout.Count(kind) {
			for _, n := range c.mapped[instrumentKey{kind, index}] {
				out = append(out, MappedParam{Kind: kind, Index: index, Name: n})
			}
		}
	}
	return out
}

// MappedOutputs returns the raw values of the mapped parameters, in
// Mapped order. These are the training targets for a model.
func (c *Controller) MappedOutputs() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	mapped := c.mappedLocked()
	out := make([]float64, len(mapped))
	for i, m := range mapped {
		off, _ := c.layout.Offset(m.Kind, m.Index, m.Name)
		out[i] = float64(c.global[off])
	}
	return out
}

// ApplyMapped writes raw values onto the mapped parameters, in Mapped
// order, and sends one snapshot. Extra values are ignored; missing ones
// leave their parameters unchanged.
func (c *Controller) ApplyMapped(ctx context.Context, values []float64) error {
	if len(c.Mapped()) == 0 {
		return nil
	}
	return c.update(ctx, func() error {
		mapped := c.mappedLocked()
		for i, m := range mapped[:min(len(mapped), len(values))] {
			if err := c.setRawLocked(m.Kind, m.Index, m.Name, max(values[i], 0)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Randomise sets every mapped parameter to a uniform random raw value in
// its [Min, Max] range and sends one snapshot.
func (c *Controller) Randomise(ctx context.Context, rng *rand.Rand) error {
	return c.update(ctx, func() error {
		mapped := c.mappedLocked()
		if len(mapped) == 0 {
			return errors.New("control: no mapped parameters to randomise")
		}
		for _, m := range mapped {
			pos, err := c.layout.Position(m.Kind, m.Name)
			if err != nil {
				return err
			}
			d := c.defs[m.Kind][pos]
			if err := c.setRawLocked(m.Kind, m.Index, m.Name, d.Min+rng.Float64()*(d.Max-d.Min)); err != nil {
				return err
			}
		}
		return nil
	})
}
