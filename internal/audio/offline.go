// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"
)

// RenderOffline drives r for frames frames in blocks of framesPerBuffer,
// handing every block to taps. It stops early when ctx is done.
func RenderOffline(ctx context.Context, r Renderer, taps []Tap, frames, channels, framesPerBuffer int) error {
	if channels <= 0 || framesPerBuffer <= 0 {
		return fmt.Errorf("audio: invalid offline format %d channels, %d frames per buffer", channels, framesPerBuffer)
	}

	block := make([]float32, framesPerBuffer*channels)
	for done := 0; done < frames; done += framesPerBuffer {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(framesPerBuffer, frames-done)
		render(r, taps, block[:n*channels], channels)
	}
	return nil
}
