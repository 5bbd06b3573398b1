// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/delay"
	"github.com/cwbudde/algo-dsp/dsp/effects"
	"github.com/cwbudde/algo-dsp/dsp/filter/moog"

	"instruments/internal/params"
	"instruments/internal/sequence"
	"instruments/internal/voice"
)

const (
	minCutoffHz      = 40
	maxCutoffHz      = 3000
	filterResonance  = 0.5
	delayFeedback    = 0.5
	delayWetGain     = 3.5
	reverbThreshold  = 0.01
	reverbDamp       = 0.2
	monoNormalise    = 4.0
	maxDelaySamples  = 44100
	reverbBaseFeed   = 0.7
	reverbFeedSpread = 0.28
)

// Synth is a subtractive polysynth: a pool of oscillators with per-voice
// envelopes, a shared LFO, and a delay -> lowpass -> reverb post chain.
type Synth struct {
	sampleRate float64
	loaded     bool

	table     *params.Table
	voices    *voice.Allocator
	transport *sequence.Transport

	dco []Oscillator
	lfo Oscillator

	line   *delay.Line
	filter *moog.Filter
	cutoff float64
	reverb *effects.Reverb
	room   float64
}

// NewSynth builds a synth with the given voice count.
func NewSynth(sampleRate float64, voices int) (*Synth, error) {
	line, err := delay.New(maxDelaySamples + 2)
	if err != nil {
		return nil, fmt.Errorf("failed to create delay line: %w", err)
	}
	filter, err := moog.New(sampleRate,
		moog.WithCutoffHz(maxCutoffHz),
		moog.WithResonance(filterResonance),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lowpass filter: %w", err)
	}
	reverb := effects.NewReverb()
	reverb.SetDamp(reverbDamp)

	return &Synth{
		sampleRate: sampleRate,
		table:      params.NewTable(params.SynthDefs()),
		voices:     voice.NewAllocator(voices, sampleRate),
		transport:  sequence.NewTransport(),
		dco:        make([]Oscillator, voices),
		line:       line,
		filter:     filter,
		cutoff:     maxCutoffHz,
		reverb:     reverb,
		room:       -1,
	}, nil
}

func (s *Synth) Kind() params.Kind { return params.Synth }
func (s *Synth) Table() *params.Table { return s.table }
func (s *Synth) Transport() *sequence.Transport { return s.transport }
func (s *Synth) Loaded() bool { return s.loaded }
func (s *Synth) SetLoaded(v bool) { s.loaded = v }
func (s *Synth) Voices() *voice.Allocator { return s.voices }

func (s *Synth) poly() bool {
	return s.table.Value(params.SynthPoly) >= 0.5
}

func (s *Synth) voiceParams() voice.Params {
	t := s.table
	return voice.Params{
		Poly: s.poly(),
		Envelope: voice.ADSR{
			Attack:  t.Value(params.SynthAttack),
			Decay:   t.Value(params.SynthDecay),
			Sustain: t.Value(params.SynthSustain),
			Release: t.Value(params.SynthRelease),
		},
		Frequency:  t.Value(params.SynthFrequency),
		Frequency2: t.Value(params.SynthFrequency2),
	}
}

func (s *Synth) release() float64 {
	return s.table.Value(params.SynthRelease)
}

// NoteOn starts freq unless it is already held.
func (s *Synth) NoteOn(freq, velocity float64) {
	if s.loaded {
		s.voices.NoteOn(freq, velocity, s.voiceParams())
	}
}

// NoteOff releases freq. In mono mode it releases everything.
func (s *Synth) NoteOff(freq float64) {
	if s.loaded {
		s.voices.NoteOff(freq, s.voiceParams())
	}
}

// Dispatch handles a sequenced event.
func (s *Synth) Dispatch(e sequence.Event) {
	if !s.loaded {
		return
	}
	switch e.Cmd {
	case sequence.NoteOn:
		s.voices.Play(e.Freq, e.Velocity, s.voiceParams())
	case sequence.NoteOff:
		s.voices.NoteOff(e.Freq, s.voiceParams())
	}
}

// Wrap folds release times into the next loop and releases held notes.
func (s *Synth) Wrap(loopSamples int64) {
	s.voices.Wrap(loopSamples, s.release())
}

// ReleaseAll sends every held voice into its release.
func (s *Synth) ReleaseAll() {
	s.voices.ReleaseAll(s.release())
}

// OnSample reclaims finished voices.
func (s *Synth) OnSample() {
	s.voices.OnSample()
}

// Signal renders one stereo frame.
func (s *Synth) Signal() (float64, float64) {
	if !s.loaded {
		return 0, 0
	}
	t := s.table
	poly := s.poly()

	lfo := s.lfo.Next(WaveformFor(t.Value(params.SynthLFOOscFn)), t.Value(params.SynthLFOFrequency), s.sampleRate)
	wave := WaveformFor(t.Value(params.SynthOscFn))

	normalise := monoNormalise
	if poly {
		normalise = float64(len(s.dco))
	}

	var (
		adsrPitch = t.Value(params.SynthADSRPitchMod)
		lfoPitch  = t.Value(params.SynthLFOPitchMod)
		lfoAmp    = t.Value(params.SynthLFOAmpMod)
		gain      = t.Value(params.SynthGain)
		freq1     = t.Value(params.SynthFrequency)
		freq2     = t.Value(params.SynthFrequency2)
		ampOsc    = (lfo + 1) / 2
	)

	var out float64
	render := func(vs []voice.Voice) {
		for i := range vs {
			v := &vs[i]
			env := s.voices.Envelope(v.Index).Next()
			v.LastOut = env

			pitchMod := adsrPitch*env + lfo*lfoPitch
			ampMod := ((1-lfoAmp)*env + lfoAmp*ampOsc*env) / normalise

			f := v.Freq
			if !poly {
				f = freq1
				if v.Index%2 == 1 {
					f = freq2
				}
			}
			out += s.dco[v.Index].Next(wave, f+pitchMod, s.sampleRate) * ampMod * gain * v.Velocity
		}
	}
	render(s.voices.Triggered())
	render(s.voices.Released())

	// Feedback delay, length in samples.
	d := min(max(int(t.Value(params.SynthDelay)), 1), s.line.Len()-1)
	delayed := s.line.Read(d)
	s.line.Write(out + delayed*delayFeedback)
	mix := t.Value(params.SynthDelayMix)
	sig := delayed*mix*delayWetGain + out*(1-mix)

	cutoff := min(max(t.Value(params.SynthCutoff)+ampOsc*t.Value(params.SynthLFOFilterMod), minCutoffHz), maxCutoffHz)
	if cutoff != s.cutoff && s.filter.SetCutoffHz(cutoff) == nil {
		s.cutoff = cutoff
	}
	sig = s.filter.ProcessSample(sig)

	if wet := t.Value(params.SynthReverbMix); wet > reverbThreshold {
		if room := t.Value(params.SynthRoomSize); room != s.room {
			s.reverb.SetRoomSize(reverbBaseFeed + reverbFeedSpread*min(max(room, 0), 1))
			s.room = room
		}
		s.reverb.SetWet(wet)
		s.reverb.SetDry(1 - wet)
		sig = s.reverb.ProcessSample(sig)
	}

	pan := t.Value(params.SynthPan)
	return sig * (1 - pan), sig * pan
}
