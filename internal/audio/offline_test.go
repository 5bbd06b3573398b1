// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"testing"
)

type rampRenderer struct {
	frames int
}

func (r *rampRenderer) Process(out []float32, channels int) {
	for f := range len(out) / channels {
		for c := range channels {
			out[f*channels+c] = float32(r.frames%100) / 100
		}
		r.frames++
	}
}

type collectTap struct{ samples int }

func (c *collectTap) Write(block []float32) { c.samples += len(block) }

func TestRenderOffline(t *testing.T) {
	tests := []struct {
		name   string
		frames int
		fpb    int
	}{
		{"Exact", 1024, 256},
		{"PartialLastBlock", 1000, 256},
		{"Zero", 0, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &rampRenderer{}
			tap := &collectTap{}
			if err := RenderOffline(context.Background(), r, []Tap{tap}, tt.frames, 2, tt.fpb); err != nil {
				t.Fatal(err)
			}
			if r.frames != tt.frames {
				t.Errorf("rendered %d frames, want %d", r.frames, tt.frames)
			}
			if tap.samples != tt.frames*2 {
				t.Errorf("tap saw %d samples, want %d", tap.samples, tt.frames*2)
			}
		})
	}
}

func TestRenderOffline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RenderOffline(ctx, &rampRenderer{}, nil, 1024, 2, 256)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRenderOffline_InvalidFormat(t *testing.T) {
	if err := RenderOffline(context.Background(), &rampRenderer{}, nil, 10, 0, 256); err == nil {
		t.Error("expected error for zero channels")
	}
}
