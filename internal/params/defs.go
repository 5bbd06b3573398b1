// SPDX-License-Identifier: MIT
//
// Package params describes instrument parameters and the flat address space
// they share across the control/render boundary. Both sides build the same
// Layout from the same ordered key lists; offsets are pure arithmetic over
// those lists and never change after construction.
package params

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownKind  = errors.New("params: unknown instrument kind")
	ErrUnknownParam = errors.New("params: unknown parameter")
	ErrIndexRange   = errors.New("params: index out of range")
	ErrKeyMismatch  = errors.New("params: parameter keys do not match")
)

// Kind identifies an instrument type.
type Kind uint8

const (
	Synth Kind = iota
	Sampler

	NumKinds = 2
)

func (k Kind) String() string {
	switch k {
	case Synth:
		return "synth"
	case Sampler:
		return "sampler"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind converts "synth" or "sampler" (case-insensitive) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "synth":
		return Synth, nil
	case "sampler":
		return Sampler, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Def describes one parameter. Value is the physical unit the engine works
// in; raw is the slider space carried in the flat array:
//
//	raw   = (value - Translate) / Scale
//	value = raw*Scale + Translate
//
// Min and Max bound the raw space (used for randomising and UI ranges).
type Def struct {
	Name      string
	Scale     float64
	Translate float64
	Default   float64
	Min       float64
	Max       float64
}

// Raw converts a physical value to raw space.
func (d Def) Raw(value float64) float64 {
	if d.Scale == 0 {
		return 0
	}
	return (value - d.Translate) / d.Scale
}

// Value converts a raw value back to physical units.
func (d Def) Value(raw float64) float64 {
	return raw*d.Scale + d.Translate
}

// Synth parameter positions. The order is part of the wire contract.
const (
	SynthGain = iota
	SynthPan
	SynthAttack
	SynthDecay
	SynthSustain
	SynthRelease
	SynthLFOFrequency
	SynthLFOPitchMod
	SynthLFOFilterMod
	SynthLFOAmpMod
	SynthADSRPitchMod
	SynthCutoff
	SynthReverbMix
	SynthRoomSize
	SynthDelay
	SynthDelayMix
	SynthFrequency
	SynthFrequency2
	SynthPoly
	SynthOscFn
	SynthLFOOscFn

	NumSynthParams
)

func synthDef(name string, scale, translate, value float64) Def {
	return Def{Name: name, Scale: scale, Translate: translate, Default: value, Min: 0, Max: 1}
}

var synthDefs = [NumSynthParams]Def{
	SynthGain:         synthDef("gain", 1, 0, 1),
	SynthPan:          synthDef("pan", 1, 0, 0.5),
	SynthAttack:       synthDef("attack", 1500, 0, 1000),
	SynthDecay:        synthDef("decay", 1500, 0, 1000),
	SynthSustain:      synthDef("sustain", 1, 0, 1),
	SynthRelease:      synthDef("release", 1500, 0, 1000),
	SynthLFOFrequency: synthDef("lfoFrequency", 10, 0, 0),
	SynthLFOPitchMod:  synthDef("lfoPitchMod", 20, 0, 0),
	SynthLFOFilterMod: synthDef("lfoFilterMod", 1000, 0, 0),
	SynthLFOAmpMod:    synthDef("lfoAmpMod", 1, 0, 0),
	SynthADSRPitchMod: synthDef("adsrPitchMod", 100, 0, 0),
	SynthCutoff:       synthDef("cutoff", 3000, 40, 3000),
	SynthReverbMix:    synthDef("reverbMix", 1, 0, 0),
	SynthRoomSize:     synthDef("roomSize", 1.5, 0, 0),
	SynthDelay:        synthDef("delay", 44100, 0, 0),
	SynthDelayMix:     synthDef("delayMix", 1, 0, 0),
	SynthFrequency:    synthDef("frequency", 1000, 0, 440),
	SynthFrequency2:   synthDef("frequency2", 1000, 0, 440),
	SynthPoly:         synthDef("poly", 1, 0, 1),
	SynthOscFn:        synthDef("oscFn", 1, 0, 0),
	SynthLFOOscFn:     synthDef("lfoOscFn", 1, 0, 0),
}

// SynthDefs returns the synth parameter definitions in wire order.
func SynthDefs() []Def {
	out := make([]Def, len(synthDefs))
	copy(out, synthDefs[:])
	return out
}

// Sampler per-slot parameter keys, in wire order. Each expands to
// <key>_<slot> for every slot, key-major.
const (
	SamplerGain = iota
	SamplerRate
	SamplerPan
	SamplerEnd
	SamplerStart

	NumSamplerCoreParams
)

var samplerCore = [NumSamplerCoreParams]Def{
	SamplerGain:  {Name: "gain", Scale: 1, Min: 0, Max: 1, Default: 0.5},
	SamplerRate:  {Name: "rate", Scale: 1, Min: 0, Max: 4, Default: 1},
	SamplerPan:   {Name: "pan", Scale: 1, Min: 0, Max: 1, Default: 0.5},
	SamplerEnd:   {Name: "end", Scale: 1, Min: 0, Max: 1, Default: 1},
	SamplerStart: {Name: "start", Scale: 1, Min: 0, Max: 1, Default: 0},
}

// SamplerPos returns the position of core parameter key for slot in a
// sampler table with the given slot count.
func SamplerPos(key, slot, slots int) int {
	return key*slots + slot
}

// SamplerDefs returns the sampler parameter definitions for the given slot
// count in wire order.
func SamplerDefs(slots int) []Def {
	out := make([]Def, 0, NumSamplerCoreParams*slots)
	for _, core := range samplerCore {
		for i := range slots {
			d := core
			d.Name = core.Name + "_" + strconv.Itoa(i)
			out = append(out, d)
		}
	}
	return out
}

// Keys returns the ordered names of defs.
func Keys(defs []Def) []string {
	keys := make([]string, len(defs))
	for i, d := range defs {
		keys[i] = d.Name
	}
	return keys
}
