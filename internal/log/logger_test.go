// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevLevel := Writer(), GetLevel()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(prevOut)
		SetLevel(prevLevel)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"Error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelWarn)

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Error("error 4")

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below WARN were logged:\n%s", out)
	}
	if !strings.Contains(out, "[WARN]  warn 3") {
		t.Errorf("missing warn line:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("missing error line:\n%s", out)
	}
}

func TestSetLevelString(t *testing.T) {
	capture(t)
	SetLevel(LevelInfo)

	if SetLevelString("nope") {
		t.Error("unknown level accepted")
	}
	if GetLevel() != LevelInfo {
		t.Errorf("level changed to %v on bad input", GetLevel())
	}
	if !SetLevelString("debug") || GetLevel() != LevelDebug {
		t.Errorf("level = %v, want DEBUG", GetLevel())
	}
}

func TestEnabled(t *testing.T) {
	capture(t)
	SetLevel(LevelInfo)
	if Enabled(LevelDebug) {
		t.Error("debug should be disabled at INFO")
	}
	if !Enabled(LevelInfo) || !Enabled(LevelError) {
		t.Error("info and error should be enabled at INFO")
	}
}

func TestTagsLineUp(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelDebug)

	Debug("a")
	Info("a")
	Warn("a")

	want := []string{"[DEBUG] a", "[INFO]  a", "[WARN]  a"}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, expected %d", len(lines), len(want))
	}
	for i, line := range lines {
		if !strings.HasSuffix(line, " "+want[i]) {
			t.Errorf("line %q, expected suffix %q", line, want[i])
		}
	}
}
