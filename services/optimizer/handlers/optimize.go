// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ShinnosukeUesaka/opt-com/services/llm"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/agent"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/datatypes"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/observability"
)

// optimizerConfigFrom maps a validated request onto the engine config.
func optimizerConfigFrom(req *datatypes.OptimizeRequest) agent.OptimizerConfig {
	return agent.OptimizerConfig{
		AgentOne:       agent.Agent{Name: req.Agent1Name, SystemPrompt: req.Agent1Prompt},
		AgentTwo:       agent.Agent{Name: req.Agent2Name, SystemPrompt: req.Agent2Prompt},
		Protocol:       req.Protocol,
		EntryAgent:     req.EntryAgent,
		InputPrompts:   req.InputPrompts,
		Rounds:         req.Rounds,
		VariationCount: req.VariationCount,
	}
}

// HandleOptimize runs a full optimization synchronously.
//
// # Description
//
// Handles POST /api/optimize. Evaluates the base rule, then iterates
// rounds of variation and evaluation, and returns the final search tree
// with the cheapest rule found. Long runs should prefer the streaming
// variant; this one holds the connection until the search finishes.
//
// # Outputs
//
//   - 200: datatypes.OptimizeResponse
//   - 400: {"detail": "input_prompts is required"} when the prompt list
//     is empty, {"detail": ...} on other validation failures
//   - 500: {"detail": ...} when the search fails
func HandleOptimize(client llm.LLMClient, counter agent.TokenCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := observability.EndpointOptimize

		var req datatypes.OptimizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Error("Failed to parse optimize request", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
				m.RecordRequest(endpoint, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
			return
		}
		if len(req.InputPrompts) == 0 {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
				m.RecordRequest(endpoint, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"detail": "input_prompts is required"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			slog.Error("Optimize request failed validation", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
				m.RecordRequest(endpoint, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}

		optimizer := agent.NewOptimizer(client, counter, optimizerConfigFrom(&req))

		best, tree, path, err := optimizer.Optimize(c.Request.Context())
		if err != nil {
			slog.Error("Optimization failed", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeLLMError)
				m.RecordRequest(endpoint, false)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(endpoint, true)
		}
		c.JSON(http.StatusOK, datatypes.OptimizeResponse{
			BestNode: best,
			BestPath: path,
			Tree:     tree,
			BestRule: best.Rule,
		})
	}
}
