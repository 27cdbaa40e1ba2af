// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream provides the client-side event transport for optimizer
// and exchange runs: a strict SSE decoder for the closed event set and a
// cancellable session that delivers events through ordered callbacks.
//
// This file defines the wire event model. The same struct is used by the
// service when emitting events and by clients when decoding them, so the
// two sides cannot drift apart.
package stream

import (
	"github.com/ShinnosukeUesaka/opt-com/pkg/protocol"
)

// =============================================================================
// Event Types
// =============================================================================

// EventType identifies one member of the closed event set.
//
// The JSON "type" field is authoritative: a payload whose type is not one
// of these constants fails to decode and tears the stream down.
type EventType string

const (
	// Optimization stream events.

	// EventBaseEvaluated reports the scored base rule that roots the tree.
	EventBaseEvaluated EventType = "base_evaluated"

	// EventCandidateEvaluated reports one scored variation in a round.
	EventCandidateEvaluated EventType = "candidate_evaluated"

	// EventBestUpdated reports a new best node and the path leading to it.
	EventBestUpdated EventType = "best_updated"

	// EventDone carries the authoritative final tree, path, and best node.
	EventDone EventType = "done"

	// EventError reports a failed run. The message is surfaced verbatim.
	EventError EventType = "error"

	// Exchange stream events.

	// EventAgentMessage reports one message crossing the agent channel.
	EventAgentMessage EventType = "agent_message"

	// EventFinal carries the entry agent's answer and the token total.
	EventFinal EventType = "final"
)

// Valid reports whether t is a member of the closed event set.
func (t EventType) Valid() bool {
	switch t {
	case EventBaseEvaluated, EventCandidateEvaluated, EventBestUpdated,
		EventDone, EventError, EventAgentMessage, EventFinal:
		return true
	}
	return false
}

// Direction labels which way an agent message travelled.
type Direction string

const (
	// DirectionOutbound is a message from the entry agent to its counterpart.
	DirectionOutbound Direction = "outbound"

	// DirectionReturn is the counterpart's reply.
	DirectionReturn Direction = "return"
)

// =============================================================================
// Event
// =============================================================================

// Event is a single decoded stream event.
//
// Fields are populated according to Type; unrelated fields stay at their
// zero values and are omitted on the wire. Tokens on agent messages is the
// running communication total for the exchange, not a per-message count.
type Event struct {
	Type EventType `json:"type"`

	// Optimization fields.
	Node       *protocol.Node  `json:"node,omitempty"`
	BestPath   []string        `json:"best_path,omitempty"`
	RoundIndex int             `json:"round_index,omitempty"`
	Tree       []protocol.Node `json:"tree,omitempty"`
	BestNode   *protocol.Node  `json:"best_node,omitempty"`

	// Exchange fields. Message doubles as the error text on EventError.
	Message   string    `json:"message,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Tokens    int       `json:"tokens,omitempty"`

	// Index is the zero-based arrival position, assigned by the reader.
	Index int `json:"-"`
}

// IsTerminal reports whether no further events follow this one.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventDone, EventError, EventFinal:
		return true
	}
	return false
}
