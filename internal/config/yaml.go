// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"instruments/pkg/bitint"
)

var ErrInvalid = errors.New("invalid configuration")

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (verbose logging).
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Output device settings.
	Engine    EngineConfig    `yaml:"engine"`    // Render engine sizing.
	Control   ControlConfig   `yaml:"control"`   // Control side timing and persistence.
	Recording RecordingConfig `yaml:"recording"` // Recording of the rendered output.
	Transport TransportConfig `yaml:"transport"` // Playhead and spectrum publishing.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Output spectrum monitor.
	MIDI      MIDIConfig      `yaml:"midi"`      // MIDI note input.
}

// AudioConfig holds settings related to audio output.
type AudioConfig struct {
	Backend         string  `yaml:"backend"`           // "portaudio", "oto" or "offline".
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per render block.
	OutputChannels  int     `yaml:"output_channels"`   // 1 for mono, 2 for stereo; extra channels are silent.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio.
}

// EngineConfig sizes the render engine. Everything is allocated at start.
type EngineConfig struct {
	Synths             int     `yaml:"synths"`
	Samplers           int     `yaml:"samplers"`
	SynthVoices        int     `yaml:"synth_voices"`
	SamplerSlots       int     `yaml:"sampler_slots"`
	TicksPerBeat       int     `yaml:"ticks_per_beat"` // Resolution of sequences handed to the engine.
	Tempo              float64 `yaml:"tempo"`          // BPM at start.
	ParamQueueCapacity int     `yaml:"param_queue_capacity"`
	PayloadSize        int     `yaml:"payload_size"`
	LoopQueueCapacity  int     `yaml:"loop_queue_capacity"`
	LoopSlots          int     `yaml:"loop_slots"`
	CommandBuffer      int     `yaml:"command_buffer"`
}

// ControlConfig holds control side timing and persistence.
type ControlConfig struct {
	RetryDelay   time.Duration `yaml:"retry_delay"`   // Wait between full-queue retries.
	RetryCap     int           `yaml:"retry_cap"`     // Retries before an update is dropped.
	PollInterval time.Duration `yaml:"poll_interval"` // Playhead queue polling.
	StoreDir     string        `yaml:"store_dir"`     // Directory of the file-backed parameter store.
}

// RecordingConfig holds settings related to recording the rendered output.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record the output to a WAV file.
	OutputDir string `yaml:"output_dir"` // Directory to save recordings.
	BitDepth  int    `yaml:"bit_depth"`  // 16, 24 or 32.
}

// TransportConfig holds settings related to sending data to other processes.
type TransportConfig struct {
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address for the WebSocket broadcast ("" disables).
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending spectrum packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
}

// AnalysisConfig holds settings for the output spectrum monitor.
type AnalysisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	FFTSize   int    `yaml:"fft_size"`   // Power of two.
	FFTWindow string `yaml:"fft_window"` // Any analysis.ParseWindowFunc name.
}

// MIDIConfig holds settings for MIDI note input.
type MIDIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`    // Input port name substring ("" for the first port).
	Channel int    `yaml:"channel"` // MIDI channel to follow (-1 for all).
	Synth   int    `yaml:"synth"`   // Synth index notes are sent to.
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return &cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	a := c.Audio
	switch a.Backend {
	case BackendPortAudio, BackendOto, BackendOffline:
	default:
		return fmt.Errorf("%w: audio.backend %q", ErrInvalid, a.Backend)
	}
	if a.OutputDevice < MinDeviceID {
		return fmt.Errorf("%w: audio.output_device %d", ErrInvalid, a.OutputDevice)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: audio.sample_rate %v outside [%d, %d]", ErrInvalid, a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("%w: audio.frames_per_buffer %d outside [1, %d]", ErrInvalid, a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.OutputChannels < 1 || a.OutputChannels > MaxChannels {
		return fmt.Errorf("%w: audio.output_channels %d outside [1, %d]", ErrInvalid, a.OutputChannels, MaxChannels)
	}

	e := c.Engine
	if e.Synths < 0 || e.Samplers < 0 || e.Synths+e.Samplers == 0 {
		return fmt.Errorf("%w: engine needs at least one instrument slot", ErrInvalid)
	}
	if e.LoopSlots < e.Synths+e.Samplers {
		return fmt.Errorf("%w: engine.loop_slots %d below %d instruments", ErrInvalid, e.LoopSlots, e.Synths+e.Samplers)
	}
	if e.TicksPerBeat <= 0 || e.Tempo <= 0 {
		return fmt.Errorf("%w: engine.ticks_per_beat and engine.tempo must be positive", ErrInvalid)
	}

	if c.Control.RetryDelay <= 0 || c.Control.RetryCap < 0 || c.Control.PollInterval <= 0 {
		return fmt.Errorf("%w: control timing must be positive", ErrInvalid)
	}

	switch c.Recording.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: recording.bit_depth %d", ErrInvalid, c.Recording.BitDepth)
	}

	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			return fmt.Errorf("%w: transport.udp_target_address %q appears invalid (missing port?)", ErrInvalid, c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("%w: transport.udp_send_interval must be positive when UDP is enabled", ErrInvalid)
		}
		if !c.Analysis.Enabled {
			return fmt.Errorf("%w: transport.udp_enabled needs analysis.enabled", ErrInvalid)
		}
	}

	if c.Analysis.Enabled && !bitint.IsPowerOfTwo(c.Analysis.FFTSize) {
		return fmt.Errorf("%w: analysis.fft_size %d is not a power of two (try %d)",
			ErrInvalid, c.Analysis.FFTSize, bitint.NextPowerOfTwo(c.Analysis.FFTSize))
	}
	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the loaded values.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	// ENV_AUDIO_BACKEND
	if val, ok := os.LookupEnv("ENV_AUDIO_BACKEND"); ok {
		c.Audio.Backend = val
	}
	// ENV_SAMPLE_RATE
	if val, ok := os.LookupEnv("ENV_SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Audio.SampleRate = f
		}
	}
	// ENV_TEMPO
	if val, ok := os.LookupEnv("ENV_TEMPO"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Engine.Tempo = f
		}
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
		}
	}
	// ENV_WEBSOCKET_ADDR
	if val, ok := os.LookupEnv("ENV_WEBSOCKET_ADDR"); ok {
		c.Transport.WebSocketAddr = val
	}
}
