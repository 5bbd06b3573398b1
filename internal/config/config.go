// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults and limits for the instrument host.
const (
	DefaultBackend         = BackendPortAudio
	DefaultDeviceID        = MinDeviceID // system default output
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 512
	DefaultOutputChannels  = 2

	DefaultSynths             = 6
	DefaultSamplers           = 6
	DefaultSynthVoices        = 12
	DefaultSamplerSlots       = 8
	DefaultTicksPerBeat       = 24
	DefaultTempo              = 80
	DefaultParamQueueCapacity = 512
	DefaultPayloadSize        = 512
	DefaultLoopQueueCapacity  = 31
	DefaultLoopSlots          = 16
	DefaultCommandBuffer      = 256

	DefaultRetryDelay   = 30 * time.Millisecond
	DefaultRetryCap     = 20
	DefaultPollInterval = 10 * time.Millisecond

	DefaultFFTSize = 2048

	MinDeviceID     = -1     // -1 represents the system default device
	MinSampleRate   = 8000   // Hz
	MaxSampleRate   = 192000 // Hz
	MaxBufferFrames = 8192   // power of 2
	MaxChannels     = 8
)

// Output backends.
const (
	BackendPortAudio = "portaudio"
	BackendOto       = "oto"
	BackendOffline   = "offline"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Backend:         DefaultBackend,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			OutputChannels:  DefaultOutputChannels,
		},
		Engine: EngineConfig{
			Synths:             DefaultSynths,
			Samplers:           DefaultSamplers,
			SynthVoices:        DefaultSynthVoices,
			SamplerSlots:       DefaultSamplerSlots,
			TicksPerBeat:       DefaultTicksPerBeat,
			Tempo:              DefaultTempo,
			ParamQueueCapacity: DefaultParamQueueCapacity,
			PayloadSize:        DefaultPayloadSize,
			LoopQueueCapacity:  DefaultLoopQueueCapacity,
			LoopSlots:          DefaultLoopSlots,
			CommandBuffer:      DefaultCommandBuffer,
		},
		Control: ControlConfig{
			RetryDelay:   DefaultRetryDelay,
			RetryCap:     DefaultRetryCap,
			PollInterval: DefaultPollInterval,
			StoreDir:     "./store",
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: "./recordings",
			BitDepth:  16,
		},
		Transport: TransportConfig{
			WebSocketAddr:    ":8080",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // ~30Hz
		},
		Analysis: AnalysisConfig{
			Enabled:   false,
			FFTSize:   DefaultFFTSize,
			FFTWindow: "Hann",
		},
		MIDI: MIDIConfig{
			Enabled: false,
			Channel: -1,
		},
	}
}
