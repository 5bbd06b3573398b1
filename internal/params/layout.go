// SPDX-License-Identifier: MIT
package params

import (
	"fmt"
	"slices"
)

// Layout maps (kind, instrument index, parameter) onto a flat offset and
// back. Synths occupy the front of the array, samplers follow:
//
//	offset = base(kind) + index*count(kind) + position(name)
//	base(Synth) = 0, base(Sampler) = synthCount*count(Synth)
//
// A Layout is immutable once built and safe for concurrent readers.
type Layout struct {
	counts [NumKinds]int
	keys   [NumKinds][]string
	pos    [NumKinds]map[string]int
}

// NewLayout builds a Layout for synthCount synths and samplerCount
// samplers with the given ordered key lists. Keys must be unique per kind.
func NewLayout(synthCount, samplerCount int, synthKeys, samplerKeys []string) (*Layout, error) {
	if synthCount < 0 || samplerCount < 0 {
		return nil, fmt.Errorf("%w: negative instrument count", ErrIndexRange)
	}

	l := &Layout{counts: [NumKinds]int{synthCount, samplerCount}}
	for k, keys := range [NumKinds][]string{synthKeys, samplerKeys} {
		l.keys[k] = slices.Clone(keys)
		l.pos[k] = make(map[string]int, len(keys))
		for i, key := range keys {
			if _, dup := l.pos[k][key]; dup {
				return nil, fmt.Errorf("params: duplicate %s key %q", Kind(k), key)
			}
			l.pos[k][key] = i
		}
	}
	return l, nil
}

// DefaultLayout builds a Layout from the built-in definitions.
func DefaultLayout(synthCount, samplerCount, samplerSlots int) (*Layout, error) {
	return NewLayout(synthCount, samplerCount, Keys(SynthDefs()), Keys(SamplerDefs(samplerSlots)))
}

// Count returns the number of instruments of kind.
func (l *Layout) Count(kind Kind) int {
	if kind >= NumKinds {
		return 0
	}
	return l.counts[kind]
}

// ParamCount returns the number of parameters per instrument of kind.
func (l *Layout) ParamCount(kind Kind) int {
	if kind >= NumKinds {
		return 0
	}
	return len(l.keys[kind])
}

// Keys returns the ordered key list for kind. Callers must not modify it.
func (l *Layout) Keys(kind Kind) []string {
	if kind >= NumKinds {
		return nil
	}
	return l.keys[kind]
}

// Base returns the first offset used by kind.
func (l *Layout) Base(kind Kind) int {
	if kind == Sampler {
		return l.counts[Synth] * len(l.keys[Synth])
	}
	return 0
}

// Size is the number of slots the layout addresses.
func (l *Layout) Size() int {
	return l.Base(Sampler) + l.counts[Sampler]*len(l.keys[Sampler])
}

// Position returns the index of name in kind's ordered key list.
func (l *Layout) Position(kind Kind, name string) (int, error) {
	if kind >= NumKinds {
		return 0, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	p, ok := l.pos[kind][name]
	if !ok {
		return 0, fmt.Errorf("%w: %s has no %q", ErrUnknownParam, kind, name)
	}
	return p, nil
}

// Offset returns the flat offset of name on instrument index of kind.
func (l *Layout) Offset(kind Kind, index int, name string) (int, error) {
	p, err := l.Position(kind, name)
	if err != nil {
		return 0, err
	}
	return l.OffsetAt(kind, index, p)
}

// OffsetAt is Offset with a known position.
func (l *Layout) OffsetAt(kind Kind, index, position int) (int, error) {
	if kind >= NumKinds {
		return 0, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	if index < 0 || index >= l.counts[kind] {
		return 0, fmt.Errorf("%w: %s index %d of %d", ErrIndexRange, kind, index, l.counts[kind])
	}
	if position < 0 || position >= len(l.keys[kind]) {
		return 0, fmt.Errorf("%w: %s position %d", ErrIndexRange, kind, position)
	}
	return l.Base(kind) + index*len(l.keys[kind]) + position, nil
}

// Slot is the inverse of OffsetAt. It does not allocate and reports false
// for offsets outside the layout.
func (l *Layout) Slot(offset int) (kind Kind, index, position int, ok bool) {
	if offset < 0 {
		return 0, 0, 0, false
	}
	synthSpan := l.Base(Sampler)
	if offset < synthSpan {
		n := len(l.keys[Synth])
		return Synth, offset / n, offset % n, true
	}
	rel := offset - synthSpan
	n := len(l.keys[Sampler])
	if n == 0 || rel >= l.counts[Sampler]*n {
		return 0, 0, 0, false
	}
	return Sampler, rel / n, rel % n, true
}

// Locate is the inverse of Offset.
func (l *Layout) Locate(offset int) (Kind, int, string, error) {
	kind, index, position, ok := l.Slot(offset)
	if !ok {
		return 0, 0, "", fmt.Errorf("%w: offset %d of %d", ErrIndexRange, offset, l.Size())
	}
	return kind, index, l.keys[kind][position], nil
}

// Matches reports whether keys is exactly kind's ordered key list.
func (l *Layout) Matches(kind Kind, keys []string) bool {
	if kind >= NumKinds {
		return false
	}
	return slices.Equal(l.keys[kind], keys)
}
