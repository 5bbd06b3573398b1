// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"instruments/internal/audio"
	applog "instruments/internal/log"
)

func newRenderCmd(o *options) *cobra.Command {
	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render the sequence offline to a WAV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderOffline(cmd, o)
		},
	}
	renderCmd.Flags().Float64Var(&o.duration, "duration", 0,
		"Seconds to render (default: one loop)")
	return renderCmd
}

func renderOffline(cmd *cobra.Command, o *options) error {
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	s, err := newSession(ctx, cfg, o)
	if err != nil {
		return err
	}
	if err := s.ctrl.TogglePlaying(ctx); err != nil {
		return err
	}

	length := s.loopDuration()
	if o.duration > 0 {
		length = time.Duration(o.duration * float64(time.Second))
	}
	if length <= 0 {
		return errors.New("nothing to render, set --duration")
	}
	frames := int(length.Seconds() * cfg.Audio.SampleRate)

	file, err := s.startRecording(o.output)
	if err != nil {
		return err
	}

	start := time.Now()
	renderErr := audio.RenderOffline(ctx, s.engine, s.taps(), frames, cfg.Audio.OutputChannels, cfg.Audio.FramesPerBuffer)
	if err := errors.Join(renderErr, s.close(context.WithoutCancel(ctx))); err != nil {
		return err
	}

	applog.Infof("Render: Wrote %v of audio to %s in %v", length.Round(time.Millisecond), file, time.Since(start).Round(time.Millisecond))
	return nil
}
