// SPDX-License-Identifier: MIT
package params

import "fmt"

// Table holds one instrument's parameter values in raw space. It is owned
// by a single goroutine.
type Table struct {
	defs []Def
	raw  []float64
}

// NewTable returns a table seeded with each definition's default.
func NewTable(defs []Def) *Table {
	t := &Table{defs: defs, raw: make([]float64, len(defs))}
	t.Reset()
	return t
}

// Reset restores every parameter to its default.
func (t *Table) Reset() {
	for i, d := range t.defs {
		t.raw[i] = d.Raw(d.Default)
	}
}

// Len returns the number of parameters.
func (t *Table) Len() int { return len(t.defs) }

// Def returns the definition at position.
func (t *Table) Def(position int) Def { return t.defs[position] }

// Raw returns the raw value at position.
func (t *Table) Raw(position int) float64 { return t.raw[position] }

// Value returns the physical value at position.
func (t *Table) Value(position int) float64 {
	return t.defs[position].Value(t.raw[position])
}

// SetRaw stores a raw value. Out-of-range positions are ignored.
func (t *Table) SetRaw(position int, raw float64) {
	if position < 0 || position >= len(t.raw) {
		return
	}
	t.raw[position] = raw
}

// SetValue stores a physical value, clamping negatives to zero.
func (t *Table) SetValue(position int, value float64) {
	if position < 0 || position >= len(t.raw) {
		return
	}
	if value < 0 {
		value = 0
	}
	t.raw[position] = t.defs[position].Raw(value)
}

// Lookup finds the position of name.
func (t *Table) Lookup(name string) (int, error) {
	for i, d := range t.defs {
		if d.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownParam, name)
}
