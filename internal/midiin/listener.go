// SPDX-License-Identifier: MIT
// Package midiin turns MIDI note input into controller note commands.
// A driver must be registered by the main package, e.g.
//
//	import _ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
package midiin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	applog "instruments/internal/log"
	"instruments/internal/params"
)

// AllChannels follows every MIDI channel.
const AllChannels = -1

// sendTimeout bounds how long one note may wait on a full command queue.
const sendTimeout = 50 * time.Millisecond

var ErrNoPorts = errors.New("midiin: no MIDI input ports")

// Notes receives note commands. *control.Controller satisfies it.
type Notes interface {
	NoteOn(ctx context.Context, kind params.Kind, index int, pitch, velocity float64) error
	NoteOff(ctx context.Context, kind params.Kind, index int, pitch float64) error
}

// Options selects what the listener forwards and where.
type Options struct {
	Channel int // AllChannels or 0-15
	Kind    params.Kind
	Index   int
}

// Listener forwards note messages from one input port.
type Listener struct {
	notes Notes
	opts  Options

	mu   sync.Mutex
	in   drivers.In
	stop func()
}

func NewListener(notes Notes, opts Options) *Listener {
	return &Listener{notes: notes, opts: opts}
}

// Ports lists the names of the available MIDI inputs.
func Ports() []string {
	return portNames(midi.GetInPorts())
}

func portNames(ins midi.InPorts) []string {
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names
}

// matchPort returns the index of the first name containing want
// (case-insensitive). An empty want selects the first port.
func matchPort(names []string, want string) (int, error) {
	if len(names) == 0 {
		return -1, ErrNoPorts
	}
	if want == "" {
		return 0, nil
	}
	want = strings.ToLower(want)
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), want) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("midiin: MIDI input %q not found in %v", want, names)
}

// Open starts listening on the first input whose name contains port.
func (l *Listener) Open(port string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.in != nil {
		return fmt.Errorf("midiin: already listening on %s", l.in)
	}

	ins := midi.GetInPorts()
	idx, err := matchPort(portNames(ins), port)
	if err != nil {
		return err
	}
	in := ins[idx]

	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		l.Handle(msg)
	}, midi.HandleError(func(err error) {
		applog.Warnf("MIDI: Listener error on %s: %v", in, err)
	}))
	if err != nil {
		return fmt.Errorf("midiin: listening to %s: %w", in, err)
	}

	l.in, l.stop = in, stop
	applog.Infof("MIDI: Listening on %s (channel %d) -> %s %d", in, l.opts.Channel, l.opts.Kind, l.opts.Index)
	return nil
}

// Close stops the listener and closes the port.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.in == nil {
		return nil
	}
	l.stop()
	err := l.in.Close()
	l.in, l.stop = nil, nil
	return err
}

// Handle forwards a note start or end. Other messages are ignored.
func (l *Listener) Handle(msg midi.Message) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		if !l.follows(ch) {
			return
		}
		l.forward(func(ctx context.Context) error {
			return l.notes.NoteOn(ctx, l.opts.Kind, l.opts.Index, float64(key), float64(vel))
		})
	case msg.GetNoteEnd(&ch, &key):
		if !l.follows(ch) {
			return
		}
		l.forward(func(ctx context.Context) error {
			return l.notes.NoteOff(ctx, l.opts.Kind, l.opts.Index, float64(key))
		})
	default:
		applog.Debugf("MIDI: Unhandled message %s", msg)
	}
}

func (l *Listener) follows(ch uint8) bool {
	return l.opts.Channel == AllChannels || int(ch) == l.opts.Channel
}

func (l *Listener) forward(send func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := send(ctx); err != nil {
		applog.Warnf("MIDI: Dropping note: %v", err)
	}
}
