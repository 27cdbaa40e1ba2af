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

	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
	"github.com/ShinnosukeUesaka/opt-com/services/llm"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/agent"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/datatypes"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/observability"
)

// exchangeConfigFromRun maps a validated request onto the engine config.
func exchangeConfigFromRun(req *datatypes.RunRequest) agent.ExchangeConfig {
	return agent.ExchangeConfig{
		AgentOne: agent.Agent{Name: req.Agent1Name, SystemPrompt: req.Agent1Prompt},
		AgentTwo: agent.Agent{Name: req.Agent2Name, SystemPrompt: req.Agent2Prompt},
		Protocol: req.Protocol,
	}
}

// HandleRun processes a single two-agent exchange synchronously.
//
// # Description
//
// Handles POST /api/run. Runs one exchange under the request's protocol
// rule and returns the final answer, the cumulative token count of the
// agent channel, and every event the run produced in order. The events
// list matches what the streaming variant would have emitted, so clients
// can replay it through the same reducers.
//
// # Outputs
//
//   - 200: datatypes.RunResponse
//   - 400: {"detail": ...} on malformed JSON or validation failure
//   - 500: {"detail": ...} when the exchange fails
func HandleRun(client llm.LLMClient, counter agent.TokenCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := observability.EndpointRun

		var req datatypes.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Error("Failed to parse run request", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
				m.RecordRequest(endpoint, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			slog.Error("Run request failed validation", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
				m.RecordRequest(endpoint, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}

		exchange := agent.NewExchange(client, counter, exchangeConfigFromRun(&req))

		var events []stream.Event
		final, tokens, err := exchange.Run(c.Request.Context(), req.UserInput, func(event stream.Event) error {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordEvent(endpoint, string(event.Type))
			}
			events = append(events, event)
			return nil
		})
		if err != nil {
			slog.Error("Exchange failed", "error", err)
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
		c.JSON(http.StatusOK, datatypes.RunResponse{
			Final:               final,
			CommunicationTokens: tokens,
			Events:              events,
		})
	}
}
