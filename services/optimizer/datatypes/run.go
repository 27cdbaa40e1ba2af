// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response types for the optimizer
// service.
//
// This file contains types for single exchange runs. For optimization job
// types, see optimize.go; for speech synthesis, see tts.go.
package datatypes

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
)

// =============================================================================
// Request Limits
// =============================================================================

const (
	// MaxPromptBytes is the maximum size of any single prompt field.
	// Checked in bytes, not runes, to bound request memory.
	MaxPromptBytes = 32 * 1024 // 32KB

	// MaxInputPrompts is the maximum number of evaluation prompts in an
	// optimization request.
	MaxInputPrompts = 50

	// MaxRounds caps refinement rounds per optimization request.
	MaxRounds = 10

	// MaxVariationCount caps rule candidates per round.
	MaxVariationCount = 20
)

// Defaults applied by EnsureDefaults when optional fields are omitted.
const (
	DefaultAgent1Name     = "Agent 1"
	DefaultAgent2Name     = "Agent 2"
	DefaultRounds         = 3
	DefaultVariationCount = 5
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// requestValidate is the validator instance for optimizer datatypes.
// Initialized in init() with custom validators.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()

	_ = requestValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = requestValidate.RegisterValidation("notblank", validateNotBlank)
}

// validateMaxBytes checks that a string field does not exceed
// MaxPromptBytes. Byte length, not rune count.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxPromptBytes
}

// validateNotBlank rejects strings that are empty after trimming
// whitespace. "required" alone accepts "   ".
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// =============================================================================
// Run Request Types
// =============================================================================

// RunRequest describes one two-agent exchange over a fixed protocol.
//
// # Description
//
// RunRequest carries the role prompts for both agents, the shared
// communication protocol, and the user input handed to the entry agent.
// It backs POST /api/run and POST /api/run/stream.
//
// # Fields
//
//   - Agent1Prompt: Required. Role prompt for the first agent.
//   - Agent2Prompt: Required. Role prompt for the second agent.
//   - Agent1Name: Optional. Display name, default "Agent 1".
//   - Agent2Name: Optional. Display name, default "Agent 2".
//   - UserInput: Required. The request the entry agent must answer.
//   - Protocol: Required. The communication rule both agents follow.
//
// # Validation
//
// Uses go-playground/validator. All prompt fields are limited to 32KB.
type RunRequest struct {
	Agent1Prompt string `json:"agent1_prompt" validate:"required,maxbytes"`
	Agent2Prompt string `json:"agent2_prompt" validate:"required,maxbytes"`
	Agent1Name   string `json:"agent1_name" validate:"omitempty,maxbytes"`
	Agent2Name   string `json:"agent2_name" validate:"omitempty,maxbytes"`
	UserInput    string `json:"user_input" validate:"required,maxbytes"`
	Protocol     string `json:"protocol" validate:"required,maxbytes"`
}

// Validate validates the RunRequest fields. Call after binding the JSON
// request and applying defaults.
func (r *RunRequest) Validate() error {
	return requestValidate.Struct(r)
}

// EnsureDefaults populates display names when the client omits them.
func (r *RunRequest) EnsureDefaults() {
	if r.Agent1Name == "" {
		r.Agent1Name = DefaultAgent1Name
	}
	if r.Agent2Name == "" {
		r.Agent2Name = DefaultAgent2Name
	}
}

// RunResponse is the non-streaming result of one exchange.
//
// Events is the full ordered event log the streaming endpoint would have
// delivered, agent messages first, final last.
type RunResponse struct {
	Final               string         `json:"final"`
	CommunicationTokens int            `json:"communication_tokens"`
	Events              []stream.Event `json:"events"`
}
