// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"net"
	"sync"
	"testing"
	"time"
)

type fakeState struct {
	playheads []float32
	tempo     float64
	playing   bool
}

func (f fakeState) Playheads() []float32 { return f.playheads }
func (f fakeState) Tempo() float64       { return f.tempo }
func (f fakeState) Playing() bool        { return f.playing }

type fakeSpectrum struct{ mags []float64 }

func (f fakeSpectrum) MagnitudesInto(dest []float64) error {
	copy(dest, f.mags)
	return nil
}
func (f fakeSpectrum) FrequencyForBin(int) float64 { return 0 }
func (f fakeSpectrum) Bins() int                   { return len(f.mags) }
func (f fakeSpectrum) SampleRate() float64         { return 44100 }

type captureSender struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
}

func (c *captureSender) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, append([]byte(nil), data...))
	return c.err
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func TestNewUDPPublisher_Validation(t *testing.T) {
	if _, err := NewUDPPublisher(time.Millisecond, nil, fakeState{}, nil); err == nil {
		t.Error("expected error for nil sender")
	}
	if _, err := NewUDPPublisher(time.Millisecond, &captureSender{}, nil, nil); err == nil {
		t.Error("expected error for nil state")
	}
	p, err := NewUDPPublisher(0, &captureSender{}, fakeState{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultInterval)
	}
}

func TestUDPPublisher_PacketLayout(t *testing.T) {
	state := fakeState{playheads: []float32{3, 7}, tempo: 120, playing: true}
	p, err := NewUDPPublisher(time.Millisecond, &captureSender{}, state, fakeSpectrum{mags: []float64{0.5, 0.25, 0}})
	if err != nil {
		t.Fatal(err)
	}

	now := time.Unix(0, 1234)
	packet, err := p.buildPacket(now)
	if err != nil {
		t.Fatal(err)
	}
	if want := headerSize + 2*4 + 2 + 3*4; len(packet) != want {
		t.Fatalf("len = %d, want %d", len(packet), want)
	}

	r := bytes.NewReader(packet)
	var (
		seq      uint32
		ts       int64
		tempo    float32
		playing  uint8
		phCount  uint16
		magCount uint16
	)
	read := func(v any) {
		t.Helper()
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	read(&seq)
	read(&ts)
	read(&tempo)
	read(&playing)
	read(&phCount)
	playheads := make([]float32, phCount)
	read(playheads)
	read(&magCount)
	mags := make([]float32, magCount)
	read(mags)

	if seq != 1 || ts != 1234 || tempo != 120 || playing != 1 {
		t.Errorf("header = %d %d %v %d", seq, ts, tempo, playing)
	}
	if phCount != 2 || playheads[1] != 7 {
		t.Errorf("playheads = %v", playheads)
	}
	if magCount != 3 || mags[0] != 0.5 || mags[1] != 0.25 {
		t.Errorf("mags = %v", mags)
	}

	packet, _ = p.buildPacket(now)
	if got := binary.BigEndian.Uint32(packet); got != 2 {
		t.Errorf("second sequence = %d, want 2", got)
	}
}

func TestUDPPublisher_NoSpectrum(t *testing.T) {
	p, err := NewUDPPublisher(time.Millisecond, &captureSender{}, fakeState{tempo: 80}, nil)
	if err != nil {
		t.Fatal(err)
	}
	packet, err := p.buildPacket(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(packet) != headerSize+2 {
		t.Errorf("len = %d, want %d", len(packet), headerSize+2)
	}
	tempo := math.Float32frombits(binary.BigEndian.Uint32(packet[12:]))
	if tempo != 80 {
		t.Errorf("tempo = %v", tempo)
	}
}

func TestUDPPublisher_StartStop(t *testing.T) {
	sender := &captureSender{err: errors.New("no listener")}
	p, err := NewUDPPublisher(time.Millisecond, sender, fakeState{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	p.Start()
	p.Start() // no-op
	deadline := time.Now().Add(time.Second)
	for sender.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("publisher sent nothing")
		}
		time.Sleep(time.Millisecond)
	}
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	n := sender.count()
	time.Sleep(5 * time.Millisecond)
	if sender.count() != n {
		t.Error("packets sent after Stop")
	}
	if err := p.Close(); err != nil {
		t.Error(err)
	}
}

func TestUDPSender_RoundTrip(t *testing.T) {
	ln, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no loopback UDP: %v", err)
	}
	defer ln.Close()

	s, err := NewUDPSender(ln.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Send([]byte("ping")); err != nil {
		t.Fatal(err)
	}

	ln.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, _, err := ln.ReadFrom(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "ping" {
		t.Errorf("got %q", buf[:n])
	}
	if packets, sent := s.Stats(); packets != 1 || sent != 4 {
		t.Errorf("stats = %d packets, %d bytes; want 1, 4", packets, sent)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if err := s.Send([]byte("x")); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send after Close = %v", err)
	}
}

func TestNewUDPSender_BadAddress(t *testing.T) {
	if _, err := NewUDPSender("not an address"); err == nil {
		t.Error("expected resolve error")
	}
}
