// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"instruments/internal/audio"
	"instruments/internal/config"
	applog "instruments/internal/log"
	"instruments/internal/midiin"
	"instruments/pkg/build"
)

// options holds the command line flags. Flags left unset keep the value
// from the loaded configuration.
type options struct {
	configPath string
	logFile    string
	verbose    bool

	backend         string
	deviceID        int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool

	record bool
	output string

	tempo    float64
	paused   bool
	midiFile string
	samples  []string
	docID    string
	save     bool

	tui      bool
	midi     bool
	midiPort string
	udp      bool
	analysis bool

	duration float64 // render only
}

// Execute runs the command line against os.Args until ctx is done.
func Execute(ctx context.Context) error {
	root := newRootCmd(&options{})
	root.SetArgs(os.Args[1:])
	return root.ExecuteContext(ctx)
}

func newRootCmd(o *options) *cobra.Command {
	buildInfo := build.Get()

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(
		newRunCmd(o),
		newRenderCmd(o),
		newMCPCmd(o),
		newListCmd(),
		newMIDIPortsCmd(),
	)

	flags := rootCmd.PersistentFlags()

	// Configuration
	flags.StringVar(&o.configPath, "config", "",
		"Path to a YAML configuration file (default: ./config.yaml when present)")
	flags.StringVar(&o.logFile, "log-file", "",
		"Append log output to this file instead of stderr")
	flags.BoolVarP(&o.verbose, "verbose", "v", false,
		"Show verbose output")

	// Audio Device Configuration
	flags.StringVar(&o.backend, "backend", config.DefaultBackend,
		"Output backend (portaudio, oto)")
	flags.IntVarP(&o.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify output device ID. Use 'list' command to see available devices.")
	flags.IntVarP(&o.channels, "channels", "c", config.DefaultOutputChannels,
		"Number of output channels (1=mono, 2=stereo)")
	flags.Float64VarP(&o.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	flags.IntVarP(&o.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	flags.BoolVarP(&o.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")

	// Recording Configuration
	flags.BoolVarP(&o.record, "record", "r", false,
		"Record the rendered output")
	flags.StringVarP(&o.output, "output", "o", "",
		"Output file name. Default is recording-MM-DD-YYYY-HHMMSS.wav")

	// Sequencing
	flags.Float64Var(&o.tempo, "tempo", config.DefaultTempo,
		"Tempo in BPM")
	flags.StringVar(&o.midiFile, "midi-file", "",
		"Standard MIDI file played by synth 0 (default: built-in demo)")
	flags.StringArrayVar(&o.samples, "sample", nil,
		"Load a WAV into sampler 0 as slot=path (repeatable)")
	flags.StringVar(&o.docID, "doc", "",
		"Parameter document to load from the store")
	flags.BoolVar(&o.save, "save", false,
		"Save parameters to the store on exit")

	return rootCmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available audio output devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()
			return audio.ListDevices(cmd.OutOrStdout())
		},
	}
}

func newMIDIPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "midi-ports",
		Short: "List available MIDI input ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports := midiin.Ports()
			if len(ports) == 0 {
				return midiin.ErrNoPorts
			}
			for i, name := range ports {
				fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s\n", i, name)
			}
			return nil
		},
	}
}

// loadConfig reads the configuration file and applies every flag the
// user set on top of it.
func loadConfig(cmd *cobra.Command, o *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("backend") {
		cfg.Audio.Backend = o.backend
	}
	if f.Changed("device") {
		cfg.Audio.OutputDevice = o.deviceID
	}
	if f.Changed("channels") {
		cfg.Audio.OutputChannels = o.channels
	}
	if f.Changed("sample-rate") {
		cfg.Audio.SampleRate = o.sampleRate
	}
	if f.Changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = o.framesPerBuffer
	}
	if f.Changed("low-latency") {
		cfg.Audio.LowLatency = o.lowLatency
	}
	if f.Changed("record") {
		cfg.Recording.Enabled = o.record
	}
	if f.Changed("tempo") {
		cfg.Engine.Tempo = o.tempo
	}
	if f.Changed("midi") {
		cfg.MIDI.Enabled = o.midi
	}
	if f.Changed("midi-port") {
		cfg.MIDI.Port = o.midiPort
	}
	if f.Changed("udp") {
		cfg.Transport.UDPEnabled = o.udp
	}
	if f.Changed("analysis") {
		cfg.Analysis.Enabled = o.analysis
	}
	if o.verbose || cfg.Debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !applog.SetLevelString(cfg.LogLevel) {
		applog.Warnf("Config: Unknown log level %q, keeping %s", cfg.LogLevel, applog.GetLevel())
	}
	return cfg, nil
}

// redirectLog sends log output to o.logFile. The returned function
// restores the previous writer.
func redirectLog(o *options) (func(), error) {
	if o.logFile == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	prev := applog.Writer()
	applog.SetOutput(f)
	return func() {
		applog.SetOutput(prev)
		f.Close()
	}, nil
}
