// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package viz derives renderable state from stream events.
//
// This file contains the layout engine: a pure function from a flat node
// list plus a best path to pixel positions, edges, and a canvas size.
// Identical inputs produce byte-identical output, so callers recompute
// on every change instead of patching positions incrementally.
package viz

import (
	"sort"

	"github.com/ShinnosukeUesaka/opt-com/pkg/protocol"
)

// =============================================================================
// Layout Geometry
// =============================================================================

// Fixed geometry. Rows are laid out per round, top to bottom; within a
// row, nodes sit side by side and the row is centered on the widest row.
const (
	// NodeWidth and NodeHeight are the rendered card dimensions.
	NodeWidth  = 180
	NodeHeight = 80

	// NodeSpacing is the horizontal gap between neighboring cards.
	NodeSpacing = 40

	// LevelHeight is the vertical distance between consecutive rounds.
	LevelHeight = 150

	// TopMargin pads the first row down from the canvas edge.
	TopMargin = 40

	// CanvasMargin pads the canvas beyond the content extent.
	CanvasMargin = 100

	// MinCanvasWidth keeps narrow trees from producing a cramped canvas.
	MinCanvasWidth = 800

	// DefaultCanvasWidth and DefaultCanvasHeight are the canvas returned
	// for an empty or unresolvable input.
	DefaultCanvasWidth  = 800
	DefaultCanvasHeight = 600
)

// PlacedNode is a node with its rendered center position.
type PlacedNode struct {
	protocol.Node

	// X and Y are the card's center in canvas coordinates.
	X float64
	Y float64

	// OnBestPath reports membership in the best path.
	OnBestPath bool
}

// Edge connects a placed parent to a placed child.
type Edge struct {
	FromID string
	ToID   string

	// OnBestPath is set when both endpoints are best-path members. It is
	// a membership test, not an adjacency test: a grandparent link whose
	// endpoints are both on the path is flagged even though the path
	// never steps between them directly.
	OnBestPath bool
}

// Layout is the complete render geometry for one tree snapshot.
type Layout struct {
	Nodes  []PlacedNode `json:"nodes"`
	Edges  []Edge       `json:"edges"`
	Width  float64      `json:"width"`
	Height float64      `json:"height"`
}

// =============================================================================
// Layout Engine
// =============================================================================

// ComputeLayout places a flat node list on the canvas.
//
// The input is never mutated. Nodes whose parent chain does not reach
// the root are silently excluded; an input without a root yields the
// empty layout, which is the normal state early in a streaming run.
//
// Within a round, best-path members come first, then cheaper nodes
// before more expensive ones; ties keep the order nodes were appended
// in. The sort is stable, so repeated computation cannot shuffle ties.
func ComputeLayout(nodes []protocol.Node, bestPath []string) Layout {
	if len(nodes) == 0 {
		return emptyLayout()
	}

	// Arena order doubles as append order everywhere below.
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, ok := index[n.ID]; !ok {
			index[n.ID] = i
		}
	}

	rootIdx := -1
	for i, n := range nodes {
		if n.IsRoot() {
			rootIdx = i
			break
		}
	}
	if rootIdx == -1 {
		return emptyLayout()
	}

	// Children keyed by parent id, in append order. Nodes pointing at an
	// id that never arrived are dropped here.
	children := make(map[string][]int)
	for i, n := range nodes {
		if i == rootIdx || n.IsRoot() {
			continue
		}
		if _, ok := index[n.ParentID]; !ok {
			continue
		}
		children[n.ParentID] = append(children[n.ParentID], i)
	}

	// Placement is reachability from the root, so a child of an excluded
	// node is excluded with it.
	reachable := make([]bool, len(nodes))
	reachable[rootIdx] = true
	queue := []int{rootIdx}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[nodes[cur].ID] {
			if !reachable[child] {
				reachable[child] = true
				queue = append(queue, child)
			}
		}
	}

	bestSet := make(map[string]bool, len(bestPath))
	for _, id := range bestPath {
		bestSet[id] = true
	}

	// Group by round, keeping append order within each group.
	rows := make(map[int][]int)
	maxRound := 0
	total := 0
	for i, n := range nodes {
		if !reachable[i] {
			continue
		}
		rows[n.RoundIndex] = append(rows[n.RoundIndex], i)
		if n.RoundIndex > maxRound {
			maxRound = n.RoundIndex
		}
		total++
	}

	for _, row := range rows {
		sort.SliceStable(row, func(a, b int) bool {
			na, nb := nodes[row[a]], nodes[row[b]]
			aBest, bBest := bestSet[na.ID], bestSet[nb.ID]
			if aBest != bBest {
				return aBest
			}
			return na.CommunicationTokens < nb.CommunicationTokens
		})
	}

	maxRowWidth := 0.0
	for _, row := range rows {
		if w := rowWidth(len(row)); w > maxRowWidth {
			maxRowWidth = w
		}
	}

	placed := make([]PlacedNode, 0, total)
	for round := 0; round <= maxRound; round++ {
		row := rows[round]
		if len(row) == 0 {
			continue
		}
		offset := (maxRowWidth - rowWidth(len(row))) / 2
		for k, idx := range row {
			n := nodes[idx]
			placed = append(placed, PlacedNode{
				Node:       n,
				X:          float64(k)*(NodeWidth+NodeSpacing) + NodeWidth/2 + offset,
				Y:          float64(n.RoundIndex)*LevelHeight + NodeHeight/2 + TopMargin,
				OnBestPath: bestSet[n.ID],
			})
		}
	}

	edges := make([]Edge, 0, len(placed))
	for _, pn := range placed {
		if pn.IsRoot() {
			continue
		}
		edges = append(edges, Edge{
			FromID:     pn.ParentID,
			ToID:       pn.ID,
			OnBestPath: bestSet[pn.ParentID] && bestSet[pn.ID],
		})
	}

	width := maxRowWidth + CanvasMargin
	if width < MinCanvasWidth {
		width = MinCanvasWidth
	}
	height := float64(maxRound+1)*LevelHeight + CanvasMargin

	return Layout{Nodes: placed, Edges: edges, Width: width, Height: height}
}

// rowWidth is the content width of a row of n cards.
func rowWidth(n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n)*NodeWidth + float64(n-1)*NodeSpacing
}

func emptyLayout() Layout {
	return Layout{
		Nodes:  []PlacedNode{},
		Edges:  []Edge{},
		Width:  DefaultCanvasWidth,
		Height: DefaultCanvasHeight,
	}
}
