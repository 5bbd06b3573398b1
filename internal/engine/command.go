// SPDX-License-Identifier: MIT
package engine

import (
	"instruments/internal/params"
	"instruments/internal/sequence"
	"instruments/pkg/ringbuf"
)

// Op is a control-to-render command type.
type Op uint8

const (
	OpAddSynth Op = iota + 1
	OpAddSampler
	OpParameterKeys
	OpSequence
	OpNoteOn
	OpNoteOff
	OpLoop
	OpLoopAll
	OpTempo
	OpTogglePlaying
	OpRewind
	OpSampleAudio
	OpSendTick
)

var opNames = [...]string{
	OpAddSynth:      "addSynth",
	OpAddSampler:    "addSampler",
	OpParameterKeys: "parameterKeys",
	OpSequence:      "sequence",
	OpNoteOn:        "noteOn",
	OpNoteOff:       "noteOff",
	OpLoop:          "loop",
	OpLoopAll:       "loopAll",
	OpTempo:         "tempo",
	OpTogglePlaying: "togglePlaying",
	OpRewind:        "rewind",
	OpSampleAudio:   "sampleAudio",
	OpSendTick:      "sendTick",
}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return "unknown"
}

// Command is one control-to-render message. Only the fields relevant to
// Op are read. Slices are handed over: the sender must not touch Keys,
// Events or Samples after sending.
type Command struct {
	Op    Op
	Kind  params.Kind
	Index int

	Keys    []string         // OpParameterKeys
	Events  []sequence.Event // OpSequence
	Samples []float64        // OpSampleAudio
	Slot    int              // OpSampleAudio

	Freq     float64 // OpNoteOn, OpNoteOff
	Velocity float64 // OpNoteOn, MIDI 0..127
	Start    int64   // OpLoop, ticks
	End      int64   // OpLoop, OpLoopAll, ticks
	Tempo    float64 // OpTempo, BPM
}

// MessageType is a render-to-control message type.
type MessageType uint8

const (
	// ParamQueueReady carries the parameter queue region.
	ParamQueueReady MessageType = iota + 1
	// LoopQueueReady carries the playhead queue region.
	LoopQueueReady
	// KeysRejected reports a parameter key handshake that did not match.
	KeysRejected
)

func (t MessageType) String() string {
	switch t {
	case ParamQueueReady:
		return "recv-param-queue-ready"
	case LoopQueueReady:
		return "recv-loop-queue-ready"
	case KeysRejected:
		return "keys-rejected"
	default:
		return "unknown"
	}
}

// Message is one render-to-control message.
type Message struct {
	Type   MessageType
	Region ringbuf.Region // ParamQueueReady, LoopQueueReady
	Kind   params.Kind    // KeysRejected
}
