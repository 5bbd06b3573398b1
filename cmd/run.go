// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"instruments/internal/audio"
	"instruments/internal/config"
	applog "instruments/internal/log"
	"instruments/internal/mcpserver"
	"instruments/internal/midiin"
	"instruments/internal/params"
	"instruments/internal/transport"
	"instruments/internal/transport/udp"
	"instruments/internal/tui"
	"instruments/pkg/build"
)

func newRunCmd(o *options) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Play the engine live on an audio output",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLive(cmd, o, nil)
		},
	}

	flags := runCmd.Flags()
	flags.BoolVar(&o.tui, "tui", false,
		"Show the transport view (logs go to --log-file)")
	flags.BoolVar(&o.paused, "paused", false,
		"Start with the transport stopped")
	flags.BoolVar(&o.midi, "midi", false,
		"Play synth notes from a MIDI input")
	flags.StringVar(&o.midiPort, "midi-port", "",
		"MIDI input name substring (default: first port)")
	flags.BoolVar(&o.udp, "udp", false,
		"Publish playheads and spectrum over UDP")
	flags.BoolVar(&o.analysis, "analysis", false,
		"Run the output spectrum monitor")
	return runCmd
}

func newMCPCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdio controlling a live engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLive(cmd, o, func(ctx context.Context, s *session) error {
				return mcpserver.New(s.ctrl, build.Get().Version).ServeStdio()
			})
		},
	}
}

// runLive plays a session on the configured backend. front owns the
// foreground; nil waits for ctx or runs the TUI when requested.
func runLive(cmd *cobra.Command, o *options, front func(context.Context, *session) error) error {
	if o.tui && o.logFile == "" {
		o.logFile = build.Get().Name + ".log"
	}
	restore, err := redirectLog(o)
	if err != nil {
		return err
	}
	defer restore()

	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// ==================== STARTUP PHASE (Cold Path) ====================

	s, err := newSession(ctx, cfg, o)
	if err != nil {
		return err
	}

	backend, err := openBackend(cfg, s.engine, s.taps())
	if err != nil {
		return err
	}
	defer backend.Close()

	// CRITICAL: Start of real-time audio processing
	if err := backend.Start(); err != nil {
		return err
	}

	if cfg.Recording.Enabled {
		file, err := s.startRecording(o.output)
		if err != nil {
			return err
		}
		applog.Infof("Session: Recording to %s", file)
	}

	if !o.paused {
		if err := s.ctrl.TogglePlaying(ctx); err != nil {
			return err
		}
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ctrl.Run(gctx) })

	surf, err := startSurfaces(gctx, g, cfg, s)
	if err != nil {
		cancel()
		return errors.Join(err, g.Wait(), surf.close(), backend.Stop())
	}

	g.Go(func() error {
		defer cancel()
		switch {
		case front != nil:
			return front(gctx, s)
		case o.tui:
			model := tui.NewTransportModel(s.ctrl, s.labels(), s.meter.Peak)
			if err := tui.Run(gctx, model); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		default:
			<-gctx.Done()
			return nil
		}
	})

	runErr := g.Wait()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	errs := []error{runErr, surf.close(), backend.Stop(), s.close(context.Background())}
	if err := errors.Join(errs...); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openBackend(cfg *config.Config, r audio.Renderer, taps []audio.Tap) (audio.Backend, error) {
	opts := audio.OutputOptions{
		DeviceID:        cfg.Audio.OutputDevice,
		SampleRate:      cfg.Audio.SampleRate,
		Channels:        cfg.Audio.OutputChannels,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
		Taps:            taps,
	}

	switch cfg.Audio.Backend {
	case config.BackendPortAudio:
		if err := audio.Initialize(); err != nil {
			return nil, err
		}
		b, err := audio.NewPortAudioBackend(r, opts)
		if err != nil {
			audio.Terminate()
			return nil, err
		}
		return &terminating{b}, nil
	case config.BackendOto:
		b, err := audio.NewOtoBackend(r, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("backend %q cannot play live, use the render command", cfg.Audio.Backend)
	}
}

// terminating shuts PortAudio down after its backend closes.
type terminating struct {
	audio.Backend
}

func (t *terminating) Close() error {
	return errors.Join(t.Backend.Close(), audio.Terminate())
}

// surfaces are the outputs observing a live session.
type surfaces struct {
	ws        *transport.WebSocketTransport
	logging   *transport.LoggingTransport
	publisher *udp.UDPPublisher
	sender    *udp.UDPSender
	listener  *midiin.Listener
}

func startSurfaces(ctx context.Context, g *errgroup.Group, cfg *config.Config, s *session) (*surfaces, error) {
	surf := &surfaces{logging: transport.NewLoggingTransport()}
	out := transport.Multi{surf.logging}

	if addr := cfg.Transport.WebSocketAddr; addr != "" {
		surf.ws = transport.NewWebSocketTransport(addr)
		if err := surf.ws.Start(); err != nil {
			return surf, fmt.Errorf("failed to start WebSocket server: %w", err)
		}
		out = append(out, surf.ws)
	}

	s.ctrl.OnTick(func(playheads []float32) {
		if err := out.Send(transport.NewPlayheads(playheads, s.ctrl.Tempo(), s.ctrl.Playing())); err != nil {
			applog.Debugf("Session: Playhead send failed: %v", err)
		}
	})

	if s.bands != nil {
		g.Go(func() error { return publishBands(ctx, cfg.Transport.UDPSendInterval, s, out) })
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return surf, err
		}
		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, s.ctrl, s.spectrum())
		if err != nil {
			sender.Close()
			return surf, err
		}
		surf.publisher, surf.sender = pub, sender
		pub.Start()
	}

	if cfg.MIDI.Enabled {
		l := midiin.NewListener(s.ctrl, midiin.Options{
			Channel: cfg.MIDI.Channel,
			Kind:    params.Synth,
			Index:   cfg.MIDI.Synth,
		})
		if err := l.Open(cfg.MIDI.Port); err != nil {
			return surf, err
		}
		surf.listener = l
	}
	return surf, nil
}

// publishBands sends the band energies of the output spectrum every
// interval.
func publishBands(ctx context.Context, interval time.Duration, s *session, out transport.Transport) error {
	if interval <= 0 {
		interval = udp.DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			bands, err := s.bands.Map()
			if err != nil {
				applog.Debugf("Session: Band energy unavailable: %v", err)
				continue
			}
			if err := out.Send(transport.NewBands(bands)); err != nil {
				applog.Debugf("Session: Band send failed: %v", err)
			}
		}
	}
}

func (surf *surfaces) close() error {
	var errs []error
	if surf.listener != nil {
		errs = append(errs, surf.listener.Close())
	}
	if surf.publisher != nil {
		errs = append(errs, surf.publisher.Close(), surf.sender.Close())
	}
	if surf.ws != nil {
		errs = append(errs, surf.ws.Close())
	}
	applog.Debugf("Session: %d transport messages sent", surf.logging.Sent())
	return errors.Join(errs...)
}
