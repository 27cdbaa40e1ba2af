// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package protocol defines the domain types shared between the optimizer
// service and its clients: protocol rule candidates and the evaluation
// records the optimizer produces for them.
package protocol

// RootParentID is the parent id of the root node of an optimization tree.
// Wire payloads may encode the missing parent as JSON null; null decodes
// into the zero string, so both spellings land on this sentinel.
const RootParentID = ""

// Node is one evaluated protocol rule in an optimization run.
//
// Nodes form a tree through ParentID. Each node belongs to the round in
// which it was evaluated; the root is round 0. CommunicationTokens is the
// average number of tokens the two agents exchanged while the rule was
// scored, lower is better.
type Node struct {
	ID                  string  `json:"id"`
	ParentID            string  `json:"parent_id"`
	RoundIndex          int     `json:"round_index"`
	Rule                string  `json:"rule"`
	CommunicationTokens float64 `json:"communication_tokens"`
	ResponseText        string  `json:"response_text,omitempty"`
}

// IsRoot reports whether the node has no parent.
func (n Node) IsRoot() bool {
	return n.ParentID == RootParentID
}
