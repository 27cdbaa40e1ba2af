// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes: optimization job request and response types.
package datatypes

import (
	"github.com/ShinnosukeUesaka/opt-com/pkg/protocol"
)

// OptimizeRequest describes one protocol optimization job.
//
// # Description
//
// OptimizeRequest extends the exchange setup with the evaluation prompt
// set and search bounds. It backs POST /api/optimize and
// POST /api/optimize/stream.
//
// # Fields
//
//   - InputPrompts: Required non-empty. Every candidate rule is scored
//     against all of these; the handler rejects an empty set before
//     validation so the error detail stays stable for clients.
//   - Rounds: Optional, 1-10, default 3.
//   - VariationCount: Optional, 1-20, default 5.
//   - EntryAgent: Optional. Selects the agent that receives each input
//     prompt, matched by agent name. Falls back to agent 1.
//
// # Validation
//
// Rounds and VariationCount are range checked after EnsureDefaults, so
// an omitted (zero) value never fails the gte bound.
type OptimizeRequest struct {
	Agent1Prompt   string   `json:"agent1_prompt" validate:"required,maxbytes"`
	Agent2Prompt   string   `json:"agent2_prompt" validate:"required,maxbytes"`
	Agent1Name     string   `json:"agent1_name" validate:"omitempty,maxbytes"`
	Agent2Name     string   `json:"agent2_name" validate:"omitempty,maxbytes"`
	Protocol       string   `json:"protocol" validate:"required,maxbytes"`
	InputPrompts   []string `json:"input_prompts" validate:"max=50,dive,required,maxbytes"`
	Rounds         int      `json:"rounds" validate:"gte=1,lte=10"`
	VariationCount int      `json:"variation_count" validate:"gte=1,lte=20"`
	EntryAgent     string   `json:"entry_agent" validate:"omitempty,maxbytes"`
}

// Validate validates the OptimizeRequest fields. Call after binding the
// JSON request and applying defaults.
func (r *OptimizeRequest) Validate() error {
	return requestValidate.Struct(r)
}

// EnsureDefaults populates names, rounds, and variation count when the
// client omits them. A zero Rounds or VariationCount is treated as
// omitted.
func (r *OptimizeRequest) EnsureDefaults() {
	if r.Agent1Name == "" {
		r.Agent1Name = DefaultAgent1Name
	}
	if r.Agent2Name == "" {
		r.Agent2Name = DefaultAgent2Name
	}
	if r.Rounds == 0 {
		r.Rounds = DefaultRounds
	}
	if r.VariationCount == 0 {
		r.VariationCount = DefaultVariationCount
	}
}

// OptimizeResponse is the non-streaming result of an optimization job.
type OptimizeResponse struct {
	BestNode protocol.Node   `json:"best_node"`
	BestPath []string        `json:"best_path"`
	Tree     []protocol.Node `json:"tree"`
	BestRule string          `json:"best_rule"`
}
