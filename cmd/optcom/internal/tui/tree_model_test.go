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
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShinnosukeUesaka/opt-com/pkg/protocol"
	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
	"github.com/ShinnosukeUesaka/opt-com/pkg/viz"
)

func baseEvent(id, rule string, tokens float64) EventMsg {
	return EventMsg{Event: stream.Event{
		Type:     stream.EventBaseEvaluated,
		Node:     &protocol.Node{ID: id, Rule: rule, CommunicationTokens: tokens},
		BestPath: []string{id},
	}}
}

func candidateEvent(id, parentID, rule string, round int, tokens float64) EventMsg {
	return EventMsg{Event: stream.Event{
		Type:       stream.EventCandidateEvaluated,
		Node:       &protocol.Node{ID: id, ParentID: parentID, RoundIndex: round, Rule: rule, CommunicationTokens: tokens},
		RoundIndex: round,
	}}
}

func applyTree(t *testing.T, m TreeModel, msgs ...tea.Msg) TreeModel {
	t.Helper()
	for _, msg := range msgs {
		updated, _ := m.Update(msg)
		next, ok := updated.(TreeModel)
		if !ok {
			t.Fatalf("Update returned %T, want TreeModel", updated)
		}
		m = next
	}
	return m
}

func quits(t *testing.T, m tea.Model, msg tea.Msg) bool {
	t.Helper()
	_, cmd := m.Update(msg)
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestNewTreeModel(t *testing.T) {
	m := NewTreeModel()

	if m.state == nil {
		t.Fatal("state should be initialized")
	}
	if m.width != defaultViewWidth {
		t.Errorf("width = %d, want %d", m.width, defaultViewWidth)
	}
	if m.state.Status() != viz.RunActive {
		t.Errorf("initial status = %v, want RunActive", m.state.Status())
	}
}

func TestTreeModel_AppliesEvents(t *testing.T) {
	m := NewTreeModel()
	m = applyTree(t, m,
		tea.WindowSizeMsg{Width: 120, Height: 40},
		baseEvent("n0", "Base rule", 50),
		candidateEvent("n1", "n0", "Shorter rule", 1, 30),
	)

	if m.width != 120 {
		t.Errorf("width = %d, want 120", m.width)
	}
	if m.state.Len() != 2 {
		t.Errorf("state.Len() = %d, want 2", m.state.Len())
	}
	if m.state.Round() != 1 {
		t.Errorf("state.Round() = %d, want 1", m.state.Round())
	}
}

// TestTreeModel_RenderContainsEveryNodeOnce verifies the view renders
// each placed node exactly once.
func TestTreeModel_RenderContainsEveryNodeOnce(t *testing.T) {
	m := NewTreeModel()
	m = applyTree(t, m,
		tea.WindowSizeMsg{Width: 120, Height: 40},
		baseEvent("n0", "Base rule", 50),
		candidateEvent("n1", "n0", "Shorter rule", 1, 30),
		EventMsg{Event: stream.Event{
			Type:     stream.EventBestUpdated,
			Node:     &protocol.Node{ID: "n1", ParentID: "n0", RoundIndex: 1, Rule: "Shorter rule", CommunicationTokens: 30},
			BestPath: []string{"n0", "n1"},
		}},
	)

	view := m.View()
	if got := strings.Count(view, "Base rule"); got != 1 {
		t.Errorf("view contains %d copies of the root rule, want 1", got)
	}
	if got := strings.Count(view, "Shorter rule"); got != 1 {
		t.Errorf("view contains %d copies of the candidate rule, want 1", got)
	}
}

func TestTreeModel_DoneEventQuits(t *testing.T) {
	m := NewTreeModel()
	m = applyTree(t, m, baseEvent("n0", "Base rule", 50))

	done := EventMsg{Event: stream.Event{
		Type:     stream.EventDone,
		Tree:     []protocol.Node{{ID: "n0", Rule: "Base rule", CommunicationTokens: 50}},
		BestPath: []string{"n0"},
		BestNode: &protocol.Node{ID: "n0", Rule: "Base rule", CommunicationTokens: 50},
	}}
	if !quits(t, m, done) {
		t.Error("done event should quit the program")
	}

	m = applyTree(t, m, done)
	if m.state.Status() != viz.RunComplete {
		t.Errorf("status = %v, want RunComplete", m.state.Status())
	}
}

func TestTreeModel_ErrorEventShowsMessage(t *testing.T) {
	m := NewTreeModel()
	m = applyTree(t, m, baseEvent("n0", "Base rule", 50))

	errEvent := EventMsg{Event: stream.Event{Type: stream.EventError, Message: "rate limited"}}
	if !quits(t, m, errEvent) {
		t.Error("error event should quit the program")
	}

	m = applyTree(t, m, errEvent)
	if m.state.Status() != viz.RunFailed {
		t.Errorf("status = %v, want RunFailed", m.state.Status())
	}
	if view := m.View(); !strings.Contains(view, "rate limited") {
		t.Error("view should surface the error message verbatim")
	}
	// The tree accumulated before the failure stays visible.
	if view := m.View(); !strings.Contains(view, "Base rule") {
		t.Error("view should keep the accumulated tree after a failure")
	}
}

func TestTreeModel_QuitKeys(t *testing.T) {
	m := NewTreeModel()

	if !quits(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}) {
		t.Error("q should quit")
	}
	if !quits(t, m, tea.KeyMsg{Type: tea.KeyCtrlC}) {
		t.Error("ctrl+c should quit")
	}
	if quits(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}) {
		t.Error("unrelated keys should not quit")
	}
}

func TestTreeModel_StreamErrorQuits(t *testing.T) {
	m := NewTreeModel()

	_, cmd := m.Update(StreamErrorMsg{Err: errors.New("connection refused")})
	if cmd == nil {
		t.Fatal("stream error should quit the program")
	}

	m = applyTree(t, m, StreamErrorMsg{Err: errors.New("connection refused")})
	if view := m.View(); !strings.Contains(view, "connection refused") {
		t.Error("view should surface the transport error")
	}
}

func TestTreeModel_EarlyCloseQuits(t *testing.T) {
	m := NewTreeModel()
	m = applyTree(t, m, baseEvent("n0", "Base rule", 50))

	if !quits(t, m, StreamClosedMsg{}) {
		t.Error("a close without a terminal event should quit")
	}
}

func TestTreeModel_CloseAfterDoneDoesNotQuitAgain(t *testing.T) {
	m := NewTreeModel()
	m = applyTree(t, m,
		baseEvent("n0", "Base rule", 50),
		EventMsg{Event: stream.Event{
			Type:     stream.EventDone,
			Tree:     []protocol.Node{{ID: "n0", Rule: "Base rule"}},
			BestPath: []string{"n0"},
		}},
	)

	_, cmd := m.Update(StreamClosedMsg{})
	if cmd != nil {
		t.Error("close after the terminal event should be inert")
	}
}
