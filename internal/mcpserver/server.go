// SPDX-License-Identifier: MIT
// Package mcpserver exposes the controller's commands as MCP tools over
// stdio, so an agent can play and edit a running engine.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	applog "instruments/internal/log"
	"instruments/internal/params"
	"instruments/internal/sequence"
)

const (
	serverName          = "instruments"
	defaultVelocity     = 127
	defaultTicksPerBeat = 24
)

// Controller is the subset of *control.Controller the tools drive.
type Controller interface {
	NoteOn(ctx context.Context, kind params.Kind, index int, pitch, velocity float64) error
	NoteOff(ctx context.Context, kind params.Kind, index int, pitch float64) error
	SetParam(ctx context.Context, kind params.Kind, index int, name string, value float64) error
	Param(kind params.Kind, index int, name string) (float64, error)
	SetSequence(ctx context.Context, kind params.Kind, index int, notes []sequence.Note, opts sequence.Options) error
	SetTempo(ctx context.Context, bpm float64) error
	TogglePlaying(ctx context.Context) error
	Rewind(ctx context.Context) error
	LoopAll(ctx context.Context, end, ticksPerBeat float64) error
	Playheads() []float32
	Tempo() float64
	Playing() bool
}

// Server owns the MCP tool registry.
type Server struct {
	ctrl Controller
	mcp  *server.MCPServer
}

// Status is the status tool's JSON result.
type Status struct {
	Tempo     float64   `json:"tempo"`
	Playing   bool      `json:"playing"`
	Playheads []float32 `json:"playheads"`
}

func New(ctrl Controller, version string) *Server {
	s := &Server{
		ctrl: ctrl,
		mcp: server.NewMCPServer(
			serverName,
			version,
			server.WithToolCapabilities(false),
		),
	}
	s.register()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	applog.Infof("MCP: Serving tools over stdio")
	return server.ServeStdio(s.mcp)
}

func kindArg() mcp.ToolOption {
	return mcp.WithString("kind", mcp.Required(), mcp.Enum("synth", "sampler"), mcp.Description("Instrument kind."))
}

func indexArg() mcp.ToolOption {
	return mcp.WithNumber("index", mcp.Required(), mcp.Description("Instrument index, from 0."))
}

func (s *Server) register() {
	s.mcp.AddTool(mcp.NewTool("note_on",
		mcp.WithDescription("Starts a note. Synth pitches are MIDI notes; sampler pitches are slot numbers."),
		kindArg(), indexArg(),
		mcp.WithNumber("pitch", mcp.Required(), mcp.Description("MIDI note number or sampler slot.")),
		mcp.WithNumber("velocity", mcp.Description("0-127, default 127.")),
	), s.handleNoteOn)

	s.mcp.AddTool(mcp.NewTool("note_off",
		mcp.WithDescription("Releases a held note."),
		kindArg(), indexArg(),
		mcp.WithNumber("pitch", mcp.Required(), mcp.Description("MIDI note number or sampler slot.")),
	), s.handleNoteOff)

	s.mcp.AddTool(mcp.NewTool("set_param",
		mcp.WithDescription("Sets one instrument parameter, e.g. cutoff or gain_3. Negative values clamp to 0."),
		kindArg(), indexArg(),
		mcp.WithString("name", mcp.Required(), mcp.Description("Parameter name.")),
		mcp.WithNumber("value", mcp.Required(), mcp.Description("Value in the parameter's own units.")),
	), s.handleSetParam)

	s.mcp.AddTool(mcp.NewTool("get_param",
		mcp.WithDescription("Returns the current value of one instrument parameter."),
		kindArg(), indexArg(),
		mcp.WithString("name", mcp.Required(), mcp.Description("Parameter name.")),
	), s.handleGetParam)

	s.mcp.AddTool(mcp.NewTool("set_sequence",
		mcp.WithDescription("Replaces an instrument's sequence. Notes are a JSON array of {pitch, start, end|length, velocity}; short keys p, s, e, l, v also work."),
		kindArg(), indexArg(),
		mcp.WithString("notes", mcp.Required(), mcp.Description("JSON array of notes.")),
		mcp.WithNumber("ticks_per_beat", mcp.Description("Resolution of note times, default 24.")),
		mcp.WithNumber("transpose", mcp.Description("Semitones added to every synth pitch.")),
	), s.handleSetSequence)

	s.mcp.AddTool(mcp.NewTool("set_tempo",
		mcp.WithDescription("Sets the clock tempo."),
		mcp.WithNumber("bpm", mcp.Required(), mcp.Description("Beats per minute, > 0.")),
	), s.handleSetTempo)

	s.mcp.AddTool(mcp.NewTool("toggle_playing",
		mcp.WithDescription("Starts or stops the clock. Stopping releases every voice."),
	), s.handleTogglePlaying)

	s.mcp.AddTool(mcp.NewTool("rewind",
		mcp.WithDescription("Moves every playhead back to the start."),
	), s.handleRewind)

	s.mcp.AddTool(mcp.NewTool("loop_all",
		mcp.WithDescription("Loops every instrument over [0, end). end <= 0 disables looping."),
		mcp.WithNumber("end", mcp.Required(), mcp.Description("Loop end in ticks_per_beat units.")),
		mcp.WithNumber("ticks_per_beat", mcp.Description("Default 24.")),
	), s.handleLoopAll)

	s.mcp.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Returns tempo, playing state and every playhead as JSON."),
	), s.handleStatus)
}

// instrument reads the kind and index arguments.
func instrument(req mcp.CallToolRequest) (params.Kind, int, error) {
	name, err := req.RequireString("kind")
	if err != nil {
		return 0, 0, err
	}
	kind, err := params.ParseKind(name)
	if err != nil {
		return 0, 0, err
	}
	index, err := req.RequireInt("index")
	if err != nil {
		return 0, 0, err
	}
	return kind, index, nil
}

func done(format string, args ...any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(fmt.Sprintf(format, args...)), nil
}

func failed(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func (s *Server) handleNoteOn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, index, err := instrument(req)
	if err != nil {
		return failed(err)
	}
	pitch, err := req.RequireFloat("pitch")
	if err != nil {
		return failed(err)
	}
	velocity := req.GetFloat("velocity", defaultVelocity)

	if err := s.ctrl.NoteOn(ctx, kind, index, pitch, velocity); err != nil {
		return failed(err)
	}
	return done("%s %d: note on %g velocity %g", kind, index, pitch, velocity)
}

func (s *Server) handleNoteOff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, index, err := instrument(req)
	if err != nil {
		return failed(err)
	}
	pitch, err := req.RequireFloat("pitch")
	if err != nil {
		return failed(err)
	}

	if err := s.ctrl.NoteOff(ctx, kind, index, pitch); err != nil {
		return failed(err)
	}
	return done("%s %d: note off %g", kind, index, pitch)
}

func (s *Server) handleSetParam(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, index, err := instrument(req)
	if err != nil {
		return failed(err)
	}
	name, err := req.RequireString("name")
	if err != nil {
		return failed(err)
	}
	value, err := req.RequireFloat("value")
	if err != nil {
		return failed(err)
	}

	if err := s.ctrl.SetParam(ctx, kind, index, name, value); err != nil {
		return failed(err)
	}
	got, _ := s.ctrl.Param(kind, index, name)
	return done("%s %d: %s = %g", kind, index, name, got)
}

func (s *Server) handleGetParam(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, index, err := instrument(req)
	if err != nil {
		return failed(err)
	}
	name, err := req.RequireString("name")
	if err != nil {
		return failed(err)
	}

	v, err := s.ctrl.Param(kind, index, name)
	if err != nil {
		return failed(err)
	}
	return done("%g", v)
}

func (s *Server) handleSetSequence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, index, err := instrument(req)
	if err != nil {
		return failed(err)
	}
	raw, err := req.RequireString("notes")
	if err != nil {
		return failed(err)
	}

	var notes []sequence.Note
	if err := json.Unmarshal([]byte(raw), &notes); err != nil {
		return failed(fmt.Errorf("invalid notes JSON: %w", err))
	}
	opts := sequence.Options{
		TicksPerBeat: req.GetFloat("ticks_per_beat", defaultTicksPerBeat),
		Transpose:    req.GetFloat("transpose", 0),
	}

	if err := s.ctrl.SetSequence(ctx, kind, index, notes, opts); err != nil {
		return failed(err)
	}
	return done("%s %d: sequence of %d notes", kind, index, len(notes))
}

func (s *Server) handleSetTempo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bpm, err := req.RequireFloat("bpm")
	if err != nil {
		return failed(err)
	}
	if err := s.ctrl.SetTempo(ctx, bpm); err != nil {
		return failed(err)
	}
	return done("tempo %g bpm", bpm)
}

func (s *Server) handleTogglePlaying(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ctrl.TogglePlaying(ctx); err != nil {
		return failed(err)
	}
	if s.ctrl.Playing() {
		return done("playing")
	}
	return done("stopped")
}

func (s *Server) handleRewind(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ctrl.Rewind(ctx); err != nil {
		return failed(err)
	}
	return done("rewound")
}

func (s *Server) handleLoopAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	end, err := req.RequireFloat("end")
	if err != nil {
		return failed(err)
	}
	tpb := req.GetFloat("ticks_per_beat", defaultTicksPerBeat)
	if err := s.ctrl.LoopAll(ctx, end, tpb); err != nil {
		return failed(err)
	}
	return done("looping every instrument over %g/%g beats", end, tpb)
}

func (s *Server) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := Status{
		Tempo:     s.ctrl.Tempo(),
		Playing:   s.ctrl.Playing(),
		Playheads: s.ctrl.Playheads(),
	}
	out, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}
