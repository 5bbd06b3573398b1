// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"instruments/internal/analysis"
	"instruments/internal/audio"
	"instruments/internal/config"
	"instruments/internal/control"
	"instruments/internal/engine"
	applog "instruments/internal/log"
	"instruments/internal/params"
	"instruments/internal/sequence"
)

// session is one engine with its controller and render-side taps.
type session struct {
	cfg    *config.Config
	engine *engine.Engine
	ctrl   *control.Controller
	store  control.Store
	docID  string
	save   bool
	loop   float64 // loop length in engine ticks

	recorder *audio.Recorder
	meter    *audio.Meter
	fft      *analysis.FFTProcessor
	bands    *analysis.BandEnergy
}

func engineOptions(cfg *config.Config) engine.Options {
	e := cfg.Engine
	return engine.Options{
		SampleRate:         cfg.Audio.SampleRate,
		Synths:             e.Synths,
		Samplers:           e.Samplers,
		SynthVoices:        e.SynthVoices,
		SamplerSlots:       e.SamplerSlots,
		ParamQueueCapacity: e.ParamQueueCapacity,
		PayloadSize:        e.PayloadSize,
		LoopQueueCapacity:  e.LoopQueueCapacity,
		LoopSlots:          e.LoopSlots,
		CommandBuffer:      e.CommandBuffer,
	}
}

func controlOptions(cfg *config.Config) control.Options {
	return control.Options{
		RetryDelay:   cfg.Control.RetryDelay,
		RetryCap:     cfg.Control.RetryCap,
		PollInterval: cfg.Control.PollInterval,
	}
}

// newSession builds the engine, connects a controller, adds every
// configured instrument and loads the sequence, samples and saved
// parameters. Nothing is rendered yet.
func newSession(ctx context.Context, cfg *config.Config, o *options) (*session, error) {
	e, err := engine.New(engineOptions(cfg))
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, engine: e, ctrl: control.New(e, controlOptions(cfg)), save: o.save}

	if err := s.ctrl.Connect(ctx); err != nil {
		return nil, err
	}
	for range cfg.Engine.Synths {
		if _, err := s.ctrl.AddSynth(ctx); err != nil {
			return nil, err
		}
	}
	for range cfg.Engine.Samplers {
		if _, err := s.ctrl.AddSampler(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.ctrl.SetTempo(ctx, cfg.Engine.Tempo); err != nil {
		return nil, err
	}

	if err := s.loadSequence(ctx, o.midiFile); err != nil {
		return nil, err
	}
	if err := s.loadSamples(ctx, o.samples); err != nil {
		return nil, err
	}
	if err := s.loadParams(ctx, o.docID); err != nil {
		return nil, err
	}

	if err := s.buildTaps(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadSequence gives synth 0 the notes of path, or the demo when path is
// empty. Samplers get the demo beat.
func (s *session) loadSequence(ctx context.Context, path string) error {
	if s.ctrl.Count(params.Synth) == 0 {
		return nil
	}

	notes, end := demoMelody()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open MIDI file: %w", err)
		}
		defer f.Close()

		var length int64
		notes, length, err = sequence.ReadSMF(f, sequence.SMFOptions{Track: -1, Channel: -1})
		if err != nil {
			return err
		}
		end = float64(length)
		applog.Infof("Session: Loaded %d notes from %s", len(notes), path)
	}

	opts := sequence.Options{TicksPerBeat: sequence.TicksPerBeat, MuteDrums: true}
	if err := s.ctrl.SetSequence(ctx, params.Synth, 0, notes, opts); err != nil {
		return err
	}
	if s.ctrl.Count(params.Sampler) > 0 && path == "" {
		beat := sequence.Options{TicksPerBeat: sequence.TicksPerBeat, RawPitch: true}
		if err := s.ctrl.SetSequence(ctx, params.Sampler, 0, demoBeat(), beat); err != nil {
			return err
		}
	}
	s.loop = end
	return s.ctrl.LoopAll(ctx, end, sequence.TicksPerBeat)
}

// loadSamples decodes every slot=path spec into sampler 0.
func (s *session) loadSamples(ctx context.Context, specs []string) error {
	if len(specs) > 0 && s.ctrl.Count(params.Sampler) == 0 {
		return errors.New("samples given but no sampler is configured")
	}
	for _, spec := range specs {
		slotStr, path, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("invalid sample %q, want slot=path", spec)
		}
		slot, err := strconv.Atoi(slotStr)
		if err != nil {
			return fmt.Errorf("invalid sample slot %q: %w", slotStr, err)
		}

		pcm, err := audio.LoadSample(path, int(s.cfg.Audio.SampleRate))
		if err != nil {
			return err
		}
		data := make([]float64, len(pcm))
		for i, v := range pcm {
			data[i] = float64(v)
		}
		if err := s.ctrl.SampleAudio(ctx, 0, slot, data); err != nil {
			return err
		}
		applog.Infof("Session: Loaded %s into sampler 0 slot %d (%d frames)", path, slot, len(data))
	}
	return nil
}

// loadParams restores docID from the store and sends the first
// parameter snapshot. An empty docID gets a fresh one.
func (s *session) loadParams(ctx context.Context, docID string) error {
	s.docID = docID
	if s.docID == "" {
		s.docID = uuid.NewString()
	}

	if s.cfg.Control.StoreDir != "" && (docID != "" || s.save) {
		store, err := control.NewFileStore(s.cfg.Control.StoreDir)
		if err != nil {
			return err
		}
		s.store = store
	}

	if docID != "" && s.store != nil {
		if err := s.ctrl.Load(ctx, s.store, docID); err != nil {
			return err
		}
		applog.Infof("Session: Loaded parameters for %s", docID)
		return nil
	}
	return s.ctrl.Enqueue(ctx)
}

// saveParams writes the current parameters under the session's docID
// when saving was requested.
func (s *session) saveParams(ctx context.Context) error {
	if s.store == nil || !s.save {
		return nil
	}
	if err := s.ctrl.Save(ctx, s.store, s.docID); err != nil {
		return err
	}
	applog.Infof("Session: Saved parameters as %s (reload with --doc %s)", s.docID, s.docID)
	return nil
}

// buildTaps creates the recorder and the meter, which feeds the spectrum
// monitor when analysis is enabled.
func (s *session) buildTaps() error {
	a := s.cfg.Audio
	var next audio.Tap
	if s.cfg.Analysis.Enabled {
		window, err := analysis.ParseWindowFunc(s.cfg.Analysis.FFTWindow)
		if err != nil {
			return err
		}
		fft, err := analysis.NewFFTProcessor(s.cfg.Analysis.FFTSize, a.OutputChannels, a.SampleRate, window)
		if err != nil {
			return err
		}
		s.fft = fft
		s.bands = analysis.NewBandEnergy(fft, analysis.DefaultBands(a.SampleRate))
		next = fft
	}
	s.meter = audio.NewMeter(next)

	rec, err := audio.NewRecorder(int(a.SampleRate), a.OutputChannels, s.cfg.Recording.BitDepth, a.FramesPerBuffer)
	if err != nil {
		return err
	}
	s.recorder = rec
	return nil
}

func (s *session) taps() []audio.Tap {
	return []audio.Tap{s.recorder, s.meter}
}

// spectrum returns the monitor as a provider, or nil without analysis.
func (s *session) spectrum() analysis.SpectrumProvider {
	if s.fft == nil {
		return nil
	}
	return s.fft
}

// startRecording opens output, or a timestamped file in the recording
// directory when output is empty.
func (s *session) startRecording(output string) (string, error) {
	if output == "" {
		dir := s.cfg.Recording.OutputDir
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create recording directory: %w", err)
		}
		output = filepath.Join(dir, "recording-"+time.Now().UTC().Format("01-02-2006-150405")+".wav")
	}
	if err := s.recorder.Start(output); err != nil {
		return "", err
	}
	return output, nil
}

// close stops recording, saves parameters and logs the render counters.
func (s *session) close(ctx context.Context) error {
	var errs []error
	if s.recorder.Recording() {
		errs = append(errs, s.recorder.Stop())
		applog.Infof("Session: Recorded %d frames (%d blocks skipped)", s.recorder.Frames(), s.recorder.Skipped())
	}
	errs = append(errs, s.saveParams(ctx))
	s.logStats()
	return errors.Join(errs...)
}

func (s *session) logStats() {
	if !applog.Enabled(applog.LevelDebug) {
		return
	}
	st := s.engine.Stats()
	applog.Debugf("Engine: blocks=%d payloads=%d discarded=%d mismatched=%d stolen=%d dropped=%d overruns=%d",
		st.Blocks.Load(),
		st.PayloadsApplied.Load(),
		st.PayloadsDiscarded.Load(),
		st.KeyMismatches.Load(),
		st.VoicesStolen.Load(),
		st.NotesDropped.Load(),
		st.Overruns.Load(),
	)
}

// loopDuration is the playing time of one loop at the session tempo.
func (s *session) loopDuration() time.Duration {
	beats := s.loop / sequence.TicksPerBeat
	return time.Duration(beats * 60 / s.cfg.Engine.Tempo * float64(time.Second))
}

// labels names every playhead slot in engine order.
func (s *session) labels() []string {
	var out []string
	for kind := range params.Kind(params.NumKinds) {
		for i := range s.ctrl.Count(kind) {
			out = append(out, fmt.Sprintf("%s %d", kind, i))
		}
	}
	return out
}
