// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"instruments/internal/analysis"
	applog "instruments/internal/log"
)

// DefaultInterval is ~60 Hz.
const DefaultInterval = 16 * time.Millisecond

// PacketSender sends one datagram. *UDPSender satisfies it.
type PacketSender interface {
	Send(data []byte) error
}

// State is the transport state published on every tick.
// *control.Controller satisfies it.
type State interface {
	Playheads() []float32
	Tempo() float64
	Playing() bool
}

// UDPPublisher periodically packs the transport state, and optionally the
// output spectrum, into a binary packet and sends it.
// It runs in a separate goroutine managed by Start and Stop methods.
type UDPPublisher struct {
	sender   PacketSender
	state    State
	spectrum analysis.SpectrumProvider // may be nil
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32

	magBuffer    []float64
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
	failures     int
}

// NewUDPPublisher creates a publisher. spectrum may be nil, in which case
// packets carry no magnitudes. An interval <= 0 defaults to DefaultInterval.
func NewUDPPublisher(interval time.Duration, sender PacketSender, state State, spectrum analysis.SpectrumProvider) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if state == nil {
		return nil, fmt.Errorf("UDPPublisher: state source cannot be nil")
	}

	if interval <= 0 {
		interval = DefaultInterval
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	bins := 0
	if spectrum != nil {
		bins = spectrum.Bins()
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s, FFT Bins: %d)", interval, bins)

	return &UDPPublisher{
		sender:       sender,
		state:        state,
		spectrum:     spectrum,
		interval:     interval,
		magBuffer:    make([]float64, bins),
		f32Buffer:    make([]float32, bins),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins the periodic publishing process.
// Subsequent calls are no-ops while running.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it.
// Safe to call multiple times.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Stopped after %d packets", p.sequenceNum)
	return nil
}

/*
UDP Packet Structure (BigEndian)

+------------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description              |
|-------------------|----------------|--------------|--------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing |
| Timestamp         | int64          | 8            | Nanoseconds since epoch  |
| Tempo             | float32        | 4            | BPM                      |
| Playing           | uint8          | 1            | 1 while the clock runs   |
| Playhead Count    | uint16         | 2            | Number of playheads (P)  |
| Playheads         | []float32      | P * 4        | Ticks per instrument     |
| Magnitude Count   | uint16         | 2            | Number of bins (N)       |
| Magnitudes        | []float32      | N * 4        | Output spectrum          |
+------------------------------------------------------------------------------+
*/

// Packet header: sequence, timestamp, tempo, playing, playhead count.
const headerSize = 4 + 8 + 4 + 1 + 2

func (p *UDPPublisher) buildPacket(now time.Time) ([]byte, error) {
	playheads := p.state.Playheads()

	if p.spectrum != nil {
		if err := p.spectrum.MagnitudesInto(p.magBuffer); err != nil {
			return nil, fmt.Errorf("getting magnitudes: %w", err)
		}
		for i, v := range p.magBuffer {
			p.f32Buffer[i] = float32(v)
		}
	}

	var playing uint8
	if p.state.Playing() {
		playing = 1
	}

	p.sequenceNum++
	p.packetBuffer.Reset()

	fields := []any{
		p.sequenceNum,
		now.UnixNano(),
		float32(p.state.Tempo()),
		playing,
		uint16(len(playheads)),
		playheads,
		uint16(len(p.f32Buffer)),
		p.f32Buffer,
	}
	for _, f := range fields {
		if err := binary.Write(p.packetBuffer, binary.BigEndian, f); err != nil {
			return nil, fmt.Errorf("packing data into binary buffer: %w", err)
		}
	}
	return p.packetBuffer.Bytes(), nil
}

func (p *UDPPublisher) buildAndSendPacket() {
	packet, err := p.buildPacket(time.Now())
	if err != nil {
		applog.Errorf("UDPPublisher: %v", err)
		return
	}

	if err := p.sender.Send(packet); err != nil {
		// First failure and then every 100th, so a missing listener does not flood the log.
		if p.failures%100 == 0 {
			applog.Warnf("UDPPublisher: Error sending packet %d: %v", p.sequenceNum, err)
		}
		p.failures++
		return
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(packet))
}

// Close stops the publisher goroutine.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
