// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package viz derives renderable state from stream events.
//
// This file contains the tree reducer: the single holder of optimization
// run state. It accumulates nodes append-only, tracks the best path, and
// replaces everything wholesale when the authoritative done event lands.
// It never validates referential integrity; that is the producer's job,
// and the layout engine excludes whatever does not resolve.
package viz

import (
	"github.com/ShinnosukeUesaka/opt-com/pkg/protocol"
	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
)

// TreeState reduces optimization events into the current run's tree.
//
// State is owned by exactly one run. Create a fresh TreeState per run;
// nothing is shared or reused across runs. Methods are not safe for
// concurrent use: apply events and read snapshots from one goroutine.
type TreeState struct {
	nodes    []protocol.Node
	index    map[string]int
	bestPath []string
	bestNode *protocol.Node
	round    int
	status   RunStatus
	errText  string
	adopted  string
}

// NewTreeState creates an empty tree state.
func NewTreeState() *TreeState {
	return &TreeState{index: make(map[string]int)}
}

// Apply folds one event into the state.
//
// Exchange events pass through untouched; a tree state only reacts to
// the optimization subset.
func (s *TreeState) Apply(event stream.Event) {
	switch event.Type {
	case stream.EventBaseEvaluated:
		if event.Node == nil {
			return
		}
		s.nodes = []protocol.Node{*event.Node}
		s.index = map[string]int{event.Node.ID: 0}
		s.bestPath = append([]string(nil), event.BestPath...)
		node := *event.Node
		s.bestNode = &node
		s.round = 0
		s.status = RunActive

	case stream.EventCandidateEvaluated:
		if event.Node == nil {
			return
		}
		if _, ok := s.index[event.Node.ID]; !ok {
			s.index[event.Node.ID] = len(s.nodes)
		}
		s.nodes = append(s.nodes, *event.Node)
		s.round = event.RoundIndex

	case stream.EventBestUpdated:
		if event.Node == nil {
			return
		}
		s.bestPath = append([]string(nil), event.BestPath...)
		node := *event.Node
		s.bestNode = &node

	case stream.EventDone:
		s.nodes = append([]protocol.Node(nil), event.Tree...)
		s.index = make(map[string]int, len(s.nodes))
		for i, n := range s.nodes {
			if _, ok := s.index[n.ID]; !ok {
				s.index[n.ID] = i
			}
		}
		s.bestPath = append([]string(nil), event.BestPath...)
		if event.BestNode != nil {
			node := *event.BestNode
			s.bestNode = &node
			s.adopted = node.Rule
		}
		s.status = RunComplete

	case stream.EventError:
		// The message is surfaced and the run is failed. Accumulated
		// state is left exactly as it was.
		s.errText = event.Message
		s.status = RunFailed
	}
}

// Nodes returns a snapshot of the accumulated nodes in append order.
func (s *TreeState) Nodes() []protocol.Node {
	return append([]protocol.Node(nil), s.nodes...)
}

// Len returns the number of accumulated nodes.
func (s *TreeState) Len() int {
	return len(s.nodes)
}

// Lookup returns the node with the given id.
func (s *TreeState) Lookup(id string) (protocol.Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return protocol.Node{}, false
	}
	return s.nodes[i], true
}

// BestPath returns a snapshot of the current best path, root first.
func (s *TreeState) BestPath() []string {
	return append([]string(nil), s.bestPath...)
}

// BestNode returns the current best node, if any.
func (s *TreeState) BestNode() (protocol.Node, bool) {
	if s.bestNode == nil {
		return protocol.Node{}, false
	}
	return *s.bestNode, true
}

// Round returns the highest round index reported so far.
func (s *TreeState) Round() int {
	return s.round
}

// Status returns the run lifecycle state.
func (s *TreeState) Status() RunStatus {
	return s.status
}

// ErrorMessage returns the verbatim message of a failed run.
func (s *TreeState) ErrorMessage() string {
	return s.errText
}

// AdoptedRule returns the optimized rule text adopted when the run
// completed, or the empty string while the run is still in flight.
func (s *TreeState) AdoptedRule() string {
	return s.adopted
}

// Layout computes the pixel geometry for the current snapshot. The
// result is recomputed from scratch on every call; nothing is cached.
func (s *TreeState) Layout() Layout {
	return ComputeLayout(s.nodes, s.bestPath)
}
