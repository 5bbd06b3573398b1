// SPDX-License-Identifier: MIT
// Package tui is the live terminal view of a running engine: playing
// state, tempo, output level and one playhead per instrument.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = 33 * time.Millisecond
	commandTimeout  = 100 * time.Millisecond
	ticksPerBeat    = 24
	beatsPerBar     = 4
	barWidth        = 32
	tempoStep       = 1
	minTempo        = 20
	maxTempo        = 300
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))
)

// Transport is what the view reads and drives. *control.Controller
// satisfies it.
type Transport interface {
	TogglePlaying(ctx context.Context) error
	Rewind(ctx context.Context) error
	SetTempo(ctx context.Context, bpm float64) error
	Tempo() float64
	Playing() bool
	Playheads() []float32
}

type keyMap struct {
	Toggle    key.Binding
	Rewind    key.Binding
	TempoUp   key.Binding
	TempoDown key.Binding
	Quit      key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Rewind, k.TempoUp, k.TempoDown, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Toggle:    key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "play/stop")),
	Rewind:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rewind")),
	TempoUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "tempo up")),
	TempoDown: key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "tempo down")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type refreshMsg time.Time

type errMsg struct {
	err error
}

// TransportModel is the Bubble Tea model for the transport view.
type TransportModel struct {
	transport Transport
	labels    []string
	peak      func() float64 // nil hides the meter
	help      help.Model

	playheads []float32
	playing   bool
	tempo     float64
	level     float64
	err       error
}

// NewTransportModel shows one row per label; labels[i] names playhead
// slot i. peak may be nil.
func NewTransportModel(t Transport, labels []string, peak func() float64) TransportModel {
	return TransportModel{
		transport: t,
		labels:    labels,
		peak:      peak,
		help:      help.New(),
		tempo:     t.Tempo(),
		playing:   t.Playing(),
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

// run wraps a transport call as a command.
func run(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m TransportModel) Init() tea.Cmd {
	return refresh()
}

func (m TransportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case refreshMsg:
		m.playheads = m.transport.Playheads()
		m.playing = m.transport.Playing()
		m.tempo = m.transport.Tempo()
		if m.peak != nil {
			m.level = m.peak()
		}
		return m, refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Toggle):
			m.err = nil
			return m, run(m.transport.TogglePlaying)

		case key.Matches(msg, keys.Rewind):
			m.err = nil
			return m, run(m.transport.Rewind)

		case key.Matches(msg, keys.TempoUp), key.Matches(msg, keys.TempoDown):
			step := float64(tempoStep)
			if key.Matches(msg, keys.TempoDown) {
				step = -step
			}
			bpm := min(max(m.tempo+step, minTempo), maxTempo)
			m.tempo = bpm
			m.err = nil
			return m, run(func(ctx context.Context) error { return m.transport.SetTempo(ctx, bpm) })
		}
	}

	return m, nil
}

func (m TransportModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Instruments"))
	sb.WriteString("\n\n")

	state := dimStyle.Render("■ Stopped")
	if m.playing {
		state = highlightStyle.Render("▶ Playing")
	}
	fmt.Fprintf(&sb, "%s  %s", state, infoStyle.Render(fmt.Sprintf("%.0f BPM", m.tempo)))
	if m.peak != nil {
		fmt.Fprintf(&sb, "  %s", renderMeter(m.level))
	}
	sb.WriteString("\n\n")

	for i, label := range m.labels {
		var ph float32
		if i < len(m.playheads) {
			ph = m.playheads[i]
		}
		fmt.Fprintf(&sb, "%-10s %s %s\n", label, renderBar(ph), dimStyle.Render(position(ph)))
	}

	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.help.View(keys))
	return sb.String()
}

// position renders a playhead as bar.beat.tick, counted from 1.
func position(ticks float32) string {
	t := int(ticks)
	bar := t / (ticksPerBeat * beatsPerBar)
	beat := (t / ticksPerBeat) % beatsPerBar
	return fmt.Sprintf("%3d.%d.%02d", bar+1, beat+1, t%ticksPerBeat)
}

// renderBar draws the position within the current bar.
func renderBar(ticks float32) string {
	perBar := ticksPerBeat * beatsPerBar
	filled := int(ticks) % perBar * barWidth / perBar
	return highlightStyle.Render(strings.Repeat("█", filled)) +
		dimStyle.Render(strings.Repeat("░", barWidth-filled))
}

// renderMeter draws the output peak on a 10-cell scale.
func renderMeter(peak float64) string {
	cells := int(min(max(peak, 0), 1) * 10)
	return highlightStyle.Render(strings.Repeat("▮", cells)) + dimStyle.Render(strings.Repeat("▯", 10-cells))
}

// Run blocks until the user quits or ctx is done.
func Run(ctx context.Context, m TransportModel) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	return err
}
