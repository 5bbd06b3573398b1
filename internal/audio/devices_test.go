// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

var mockDevices = []*portaudio.DeviceInfo{
	{Name: "Mic", MaxInputChannels: 2, DefaultSampleRate: 48000},
	{
		Name:                     "Speakers",
		MaxOutputChannels:        2,
		DefaultSampleRate:        44100,
		DefaultLowOutputLatency:  5 * time.Millisecond,
		DefaultHighOutputLatency: 20 * time.Millisecond,
	},
}

func mockPortAudio(t *testing.T, devices []*portaudio.DeviceInfo, err error) {
	t.Helper()
	origDevices, origDefault := paLibDevicesFunc, paLibDefaultOutputDeviceFunc
	t.Cleanup(func() {
		paLibDevicesFunc = origDevices
		paLibDefaultOutputDeviceFunc = origDefault
	})
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return devices, err }
	paLibDefaultOutputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		if err != nil {
			return nil, err
		}
		return devices[1], nil
	}
}

func TestInitialize_Error(t *testing.T) {
	orig := paLibInitialize
	defer func() { paLibInitialize = orig }()
	paLibInitialize = func() error { return fmt.Errorf("mock error") }

	err := Initialize()
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Errorf("Initialize() = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestHostDevices(t *testing.T) {
	mockPortAudio(t, mockDevices, nil)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	for i, d := range devices {
		if d.ID != i {
			t.Errorf("Device ID mismatch: got %d, want %d", d.ID, i)
		}
	}
	if devices[1].Name != "Speakers" || devices[1].MaxOutputChannels != 2 {
		t.Errorf("device 1 = %+v", devices[1])
	}
}

func TestHostDevices_NilSlice(t *testing.T) {
	mockPortAudio(t, nil, nil)

	devices, err := HostDevices()
	if err != nil {
		t.Fatal(err)
	}
	if devices == nil || len(devices) != 0 {
		t.Errorf("HostDevices() = %#v, want empty non-nil", devices)
	}
}

func TestHostDevices_paDevicesError(t *testing.T) {
	mockPortAudio(t, nil, fmt.Errorf("mock error"))

	_, err := HostDevices()
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestOutputDevice(t *testing.T) {
	mockPortAudio(t, mockDevices, nil)

	if dev, err := OutputDevice(DefaultDeviceID); err != nil || dev.Name != "Speakers" {
		t.Errorf("OutputDevice(default) = %v, %v", dev, err)
	}
	if dev, err := OutputDevice(1); err != nil || dev.Name != "Speakers" {
		t.Errorf("OutputDevice(1) = %v, %v", dev, err)
	}

	tests := []struct {
		name   string
		id     int
		substr string
	}{
		{"Negative ID", -2, "invalid device ID"},
		{"Too high ID", 12, "invalid device ID"},
		{"Non-output device", 0, "does not support output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OutputDevice(tt.id)
			if err == nil {
				t.Errorf("Expected error for ID %d", tt.id)
			} else if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("Error = %q, want substring %q", err.Error(), tt.substr)
			}
		})
	}
}

func TestOutputDevice_NoDefault(t *testing.T) {
	mockPortAudio(t, nil, fmt.Errorf("no host"))

	if _, err := OutputDevice(DefaultDeviceID); err == nil || !strings.Contains(err.Error(), "no default output device") {
		t.Errorf("err = %v", err)
	}
}

func TestListDevices(t *testing.T) {
	mockPortAudio(t, mockDevices, nil)

	var buf bytes.Buffer
	if err := ListDevices(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "Mic") {
		t.Errorf("input-only device listed:\n%s", out)
	}
	for _, want := range []string{"[1] Speakers", "Output channels: 2", "Low=5.00ms, High=20.00ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
