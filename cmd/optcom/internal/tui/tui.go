// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui provides the terminal views for live exchange and
// optimization runs.
//
// # Description
//
// This package implements the interactive stream views using bubbletea.
// Each view wraps one of the pkg/viz reducers: stream events arrive as
// tea.Msg, are folded into the reducer, and the view re-renders from the
// reduced state. The tree view recomputes the layout engine's geometry on
// every change instead of patching positions.
//
// Views render to stderr so stdout stays clean for the final result.
//
// # Thread Safety
//
// Models are driven entirely by the bubbletea event loop. Do not access
// model state from other goroutines; deliver everything as a message.
package tui

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
)

// =============================================================================
// Messages
// =============================================================================

// EventMsg delivers one decoded stream event to a view.
type EventMsg struct {
	Event stream.Event
}

// StreamErrorMsg reports a transport or decode failure. Domain errors
// arrive as EventMsg with an error event instead.
type StreamErrorMsg struct {
	Err error
}

// StreamClosedMsg signals that the stream is finished and no further
// events will arrive.
type StreamClosedMsg struct{}

// =============================================================================
// Stream Wiring
// =============================================================================

// openStream connects a session stream to a running program.
//
// Callbacks only forward messages; once the program exits, Send becomes a
// no-op and the returned cancel tears the stream down.
func openStream(ctx context.Context, sess *stream.Session, path string, payload any, p *tea.Program) stream.CancelFunc {
	return sess.Open(ctx, path, payload, stream.Callbacks{
		OnEvent: func(event stream.Event) { p.Send(EventMsg{Event: event}) },
		OnError: func(err error) { p.Send(StreamErrorMsg{Err: err}) },
		OnClose: func() { p.Send(StreamClosedMsg{}) },
	})
}

// runProgram runs a view inline on stderr until it quits, then cancels
// the stream.
//
// Cancellation is deliberately sequenced after Run returns: the session
// serializes callbacks under a lock, and a blocked Send inside a callback
// only unblocks once the program is gone.
func runProgram(ctx context.Context, m tea.Model, open func(*tea.Program) stream.CancelFunc) (tea.Model, error) {
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithContext(ctx))
	cancel := open(p)
	defer cancel()
	return p.Run()
}

// =============================================================================
// Shared Styles
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	tokenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	finalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
)

// truncate shortens s to max runes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}
