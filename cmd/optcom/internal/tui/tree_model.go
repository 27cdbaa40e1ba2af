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

// defaultViewWidth is used until the first WindowSizeMsg arrives.
const defaultViewWidth = 80

// ruleSnippetLen bounds the rule text shown inside a node card.
const ruleSnippetLen = 20

// =============================================================================
// Model
// =============================================================================

// TreeModel is the bubbletea model for a live optimization run.
//
// # Description
//
// Folds stream events into a viz.TreeState and renders the layout
// engine's geometry as rows of node cards, one row per refinement round,
// best-path members highlighted. The model quits itself on the terminal
// done or error event; `q` and ctrl+c quit early.
type TreeModel struct {
	state    *viz.TreeState
	spin     spinner.Model
	width    int
	quitting bool
	closed   bool
	transErr error
}

// NewTreeModel creates a tree view over a fresh reducer.
func NewTreeModel() TreeModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	return TreeModel{
		state: viz.NewTreeState(),
		spin:  s,
		width: defaultViewWidth,
	}
}

// State returns the underlying reducer. Valid after the program exits.
func (m TreeModel) State() *viz.TreeState {
	return m.state
}

// Init implements tea.Model.
func (m TreeModel) Init() tea.Cmd {
	return m.spin.Tick
}

// Update implements tea.Model.
func (m TreeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
		// A close without a terminal event means the stream ended early.
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
func (m TreeModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Protocol optimization"))
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	if m.state.Len() > 0 {
		b.WriteString(m.renderTree())
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

func (m TreeModel) renderStatus() string {
	best := ""
	if node, ok := m.state.BestNode(); ok {
		best = " · best " + tokenStyle.Render(fmt.Sprintf("%.1f tok", node.CommunicationTokens))
	}

	switch m.state.Status() {
	case viz.RunComplete:
		return statusStyle.Render(fmt.Sprintf("done · %d nodes", m.state.Len())) + best
	case viz.RunFailed:
		return statusStyle.Render(fmt.Sprintf("failed · %d nodes", m.state.Len()))
	default:
		return m.spin.View() + statusStyle.Render(
			fmt.Sprintf(" round %d · %d nodes", m.state.Round(), m.state.Len())) + best
	}
}

// renderTree draws the current layout, one centered card row per round.
func (m TreeModel) renderTree() string {
	layout := m.state.Layout()
	if len(layout.Nodes) == 0 {
		return ""
	}

	// Edges whose child end sits on the best path. Used to mark the
	// connector stepping into a row.
	bestInto := make(map[int]bool)
	for _, e := range layout.Edges {
		if !e.OnBestPath {
			continue
		}
		if child, ok := lookupPlaced(layout.Nodes, e.ToID); ok {
			bestInto[child.RoundIndex] = true
		}
	}

	var rows []string
	var cards []string
	currentRound := layout.Nodes[0].RoundIndex

	flush := func() {
		if len(cards) == 0 {
			return
		}
		row := lipgloss.JoinHorizontal(lipgloss.Top, cards...)
		rows = append(rows, lipgloss.PlaceHorizontal(m.width, lipgloss.Center, row))
		cards = cards[:0]
	}

	for _, pn := range layout.Nodes {
		if pn.RoundIndex != currentRound {
			flush()
			rows = append(rows, m.renderConnector(bestInto[pn.RoundIndex]))
			currentRound = pn.RoundIndex
		}
		cards = append(cards, renderNodeCard(pn))
	}
	flush()

	return strings.Join(rows, "\n")
}

// renderConnector draws the link line between two rounds.
func (m TreeModel) renderConnector(onBestPath bool) string {
	link := edgeStyle.Render("│")
	if onBestPath {
		link = bestEdgeStyle.Render("┃")
	}
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, link)
}

func lookupPlaced(nodes []viz.PlacedNode, id string) (viz.PlacedNode, bool) {
	for _, pn := range nodes {
		if pn.ID == id {
			return pn, true
		}
	}
	return viz.PlacedNode{}, false
}

// renderNodeCard draws one node as a bordered card.
func renderNodeCard(pn viz.PlacedNode) string {
	label := truncate(pn.Rule, ruleSnippetLen)
	if pn.IsRoot() {
		label = "base · " + truncate(pn.Rule, ruleSnippetLen-7)
	}
	body := label + "\n" + fmt.Sprintf("%.1f tok", pn.CommunicationTokens)

	if pn.OnBestPath {
		return bestCardStyle.Render(body)
	}
	return cardStyle.Render(body)
}

// =============================================================================
// Runner
// =============================================================================

// RunTree drives the tree view over one optimization stream.
//
// Blocks until the run finishes, fails, or the user quits. The returned
// reducer holds whatever state accumulated; callers distinguish an early
// quit by its RunActive status. Context cancellation is reported as
// context.Canceled.
func RunTree(ctx context.Context, sess *stream.Session, path string, payload any) (*viz.TreeState, error) {
	m := NewTreeModel()

	finalModel, err := runProgram(ctx, m, func(p *tea.Program) stream.CancelFunc {
		return openStream(ctx, sess, path, payload, p)
	})
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
			return m.state, context.Canceled
		}
		return m.state, err
	}

	result, ok := finalModel.(TreeModel)
	if !ok {
		return m.state, fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}
	if result.transErr != nil {
		return result.state, result.transErr
	}
	return result.state, nil
}

// =============================================================================
// Card Styles
// =============================================================================

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1).
			Width(24)

	bestCardStyle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("42")).
			Foreground(lipgloss.Color("42")).
			Padding(0, 1).
			Width(24)

	edgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	bestEdgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))
)
