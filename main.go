// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // MIDI input ports

	"instruments/cmd"
	applog "instruments/internal/log"
	"instruments/pkg/build"
)

// main is the entry point for the instrument host.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Configure runtime settings
//   - Parse command line arguments and load configuration
//   - Build the engine, connect the controller, load sequences
//
// 2. Concurrent Phase (Hot Path):
//   - Start the output stream driving the render loop
//   - Poll playheads and publish them to the TUI, WebSocket and UDP
//   - Forward MIDI and MCP input to the controller
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop recording if active
//   - Clean up resources
//
// The phases live in the cmd package; main only prepares the process.
func main() {
	// Initialize build information including version, commit hash, and build time
	if err := build.Initialize(false); err != nil {
		applog.Fatalf("%v", err)
	}

	// Limit OS threads to optimize for real-time audio processing:
	// - One thread dedicated to the audio callback (time-critical)
	// - One thread for control, UI and I/O operations
	runtime.GOMAXPROCS(2)

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", build.Get().Name, err)
		stop()
		os.Exit(1)
	}
}
