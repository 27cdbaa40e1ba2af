// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
	"github.com/ShinnosukeUesaka/opt-com/pkg/viz"
)

// =============================================================================
// Model
// =============================================================================

// ExchangeModel is the bubbletea model for a live two-agent exchange.
//
// # Description
//
// Folds stream events into a viz.ExchangeState and renders the newest
// message in each direction plus the running communication total. The
// final answer replaces the message slots when it arrives.
type ExchangeModel struct {
	state    *viz.ExchangeState
	spin     spinner.Model
	width    int
	quitting bool
	closed   bool
	transErr error
}

// NewExchangeModel creates an exchange view over a fresh reducer.
func NewExchangeModel() ExchangeModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	return ExchangeModel{
		state: viz.NewExchangeState(),
		spin:  s,
		width: defaultViewWidth,
	}
}

// State returns the underlying reducer. Valid after the program exits.
func (m ExchangeModel) State() *viz.ExchangeState {
	return m.state
}

// Init implements tea.Model.
func (m ExchangeModel) Init() tea.Cmd {
	return m.spin.Tick
}

// Update implements tea.Model.
func (m ExchangeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case EventMsg:
		m.state.Apply(msg.Event)
		if msg.Event.IsTerminal() {
			return m, tea.Quit
		}

	case StreamErrorMsg:
		m.transErr = msg.Err
		return m, tea.Quit

	case StreamClosedMsg:
		m.closed = true
		if m.state.Status() == viz.RunActive {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m ExchangeModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Agent exchange"))
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	if slot, ok := m.renderSlot(stream.DirectionOutbound); ok {
		b.WriteString(slot)
		b.WriteString("\n")
	}
	if slot, ok := m.renderSlot(stream.DirectionReturn); ok {
		b.WriteString(slot)
		b.WriteString("\n")
	}

	if m.state.Status() == viz.RunComplete {
		b.WriteString(finalPanelStyle.Width(m.panelWidth()).Render(m.state.FinalText()))
		b.WriteString("\n")
	}

	if m.transErr != nil {
		b.WriteString(errorStyle.Render("stream error: " + m.transErr.Error()))
		b.WriteString("\n")
	} else if m.state.Status() == viz.RunFailed {
		b.WriteString(errorStyle.Render("failed: " + m.state.ErrorMessage()))
		b.WriteString("\n")
	}

	if !m.quitting && m.state.Status() == viz.RunActive && m.transErr == nil {
		b.WriteString(helpStyle.Render("q quit"))
		b.WriteString("\n")
	}

	return b.String()
}

func (m ExchangeModel) renderStatus() string {
	tokens := tokenStyle.Render(fmt.Sprintf("%d tok", m.currentTokens()))

	switch m.state.Status() {
	case viz.RunComplete:
		return statusStyle.Render("done · communication ") + tokens
	case viz.RunFailed:
		return statusStyle.Render("failed")
	default:
		return m.spin.View() + statusStyle.Render(" exchanging · communication ") + tokens
	}
}

// renderSlot draws the newest message in one direction.
func (m ExchangeModel) renderSlot(direction stream.Direction) (string, bool) {
	event, ok := m.state.Latest(direction)
	if !ok {
		return "", false
	}

	arrow := "→"
	if direction == stream.DirectionReturn {
		arrow = "←"
	}
	header := slotHeaderStyle.Render(fmt.Sprintf("%s %s to %s", arrow, event.From, event.To))

	return header + "\n" + slotStyle.Width(m.panelWidth()).Render(event.Message), true
}

// currentTokens is the running communication total: the newest message in
// either direction carries the cumulative count.
func (m ExchangeModel) currentTokens() int {
	tokens := m.state.FinalTokens()
	if event, ok := m.state.Latest(stream.DirectionOutbound); ok && event.Tokens > tokens {
		tokens = event.Tokens
	}
	if event, ok := m.state.Latest(stream.DirectionReturn); ok && event.Tokens > tokens {
		tokens = event.Tokens
	}
	return tokens
}

func (m ExchangeModel) panelWidth() int {
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	return width
}

// =============================================================================
// Runner
// =============================================================================

// RunExchange drives the exchange view over one exchange stream.
//
// Blocks until the run finishes, fails, or the user quits. The returned
// reducer holds whatever state accumulated; callers distinguish an early
// quit by its RunActive status. Context cancellation is reported as
// context.Canceled.
func RunExchange(ctx context.Context, sess *stream.Session, path string, payload any) (*viz.ExchangeState, error) {
	m := NewExchangeModel()

	finalModel, err := runProgram(ctx, m, func(p *tea.Program) stream.CancelFunc {
		return openStream(ctx, sess, path, payload, p)
	})
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
			return m.state, context.Canceled
		}
		return m.state, err
	}

	result, ok := finalModel.(ExchangeModel)
	if !ok {
		return m.state, fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}
	if result.transErr != nil {
		return result.state, result.transErr
	}
	return result.state, nil
}

// =============================================================================
// Slot Styles
// =============================================================================

var (
	slotHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	slotStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1)

	finalPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("42")).
			Padding(0, 1)
)
