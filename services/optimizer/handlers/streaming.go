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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
	"github.com/ShinnosukeUesaka/opt-com/services/llm"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/agent"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/datatypes"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/observability"
)

const (
	// heartbeatInterval is the interval for sending keepalive pings.
	// Set to 15s to stay well under typical LB timeouts (60s for ALB/Nginx).
	heartbeatInterval = 15 * time.Second
)

// StreamingHandler serves the SSE variants of the run and optimize
// endpoints.
//
// # Description
//
// Both handlers follow the same shape: validate the request over plain
// HTTP, switch the connection to SSE, run the engine with an observer
// that frames each event onto the wire, and keep the connection alive
// with comment pings while the engine is between events. Engine
// failures after the SSE switch surface as an `error` event because the
// status line is already gone.
type StreamingHandler interface {
	// HandleRunStream streams one two-agent exchange.
	//
	// Handles POST /api/run/stream. Emits `agent_message` events as
	// messages cross the channel and a terminal `final` event with the
	// answer and the cumulative token count.
	HandleRunStream(c *gin.Context)

	// HandleOptimizeStream streams a full optimization.
	//
	// Handles POST /api/optimize/stream. Emits `base_evaluated`, then
	// per round `candidate_evaluated` events and a `best_updated`
	// event, and a terminal `done` event carrying the whole tree.
	HandleOptimizeStream(c *gin.Context)
}

// streamingHandler is the production StreamingHandler.
type streamingHandler struct {
	client  llm.LLMClient
	counter agent.TokenCounter
}

// NewStreamingHandler creates a StreamingHandler with the provided
// dependencies. Panics if either dependency is nil, which is a wiring
// error in the service assembly.
func NewStreamingHandler(client llm.LLMClient, counter agent.TokenCounter) StreamingHandler {
	if client == nil {
		panic("NewStreamingHandler: client must not be nil")
	}
	if counter == nil {
		panic("NewStreamingHandler: counter must not be nil")
	}
	return &streamingHandler{
		client:  client,
		counter: counter,
	}
}

func (h *streamingHandler) HandleRunStream(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointRunStream

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			duration := time.Since(startTime).Seconds()
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, duration, success)
		}
	}()

	var req datatypes.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error("Failed to parse run stream request", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		slog.Error("Run stream request failed validation", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		slog.Error("Failed to create SSE writer", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "streaming not supported"})
		return
	}

	ctx := c.Request.Context()

	heartbeatDone := make(chan struct{})
	go h.runHeartbeat(ctx, writer, endpoint, heartbeatDone)

	exchange := agent.NewExchange(h.client, h.counter, exchangeConfigFromRun(&req))
	_, _, runErr := exchange.Run(ctx, req.UserInput, func(event stream.Event) error {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordEvent(endpoint, string(event.Type))
		}
		return writer.WriteEvent(event)
	})

	close(heartbeatDone)

	if runErr != nil {
		h.finishStreamError(endpoint, writer, runErr, "Exchange stream failed")
		return
	}

	success = true
}

func (h *streamingHandler) HandleOptimizeStream(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointOptimizeStream

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			duration := time.Since(startTime).Seconds()
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, duration, success)
		}
	}()

	var req datatypes.OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error("Failed to parse optimize stream request", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	if len(req.InputPrompts) == 0 {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": "input_prompts is required"})
		return
	}
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		slog.Error("Optimize stream request failed validation", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		slog.Error("Failed to create SSE writer", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "streaming not supported"})
		return
	}

	ctx := c.Request.Context()

	heartbeatDone := make(chan struct{})
	go h.runHeartbeat(ctx, writer, endpoint, heartbeatDone)

	optimizer := agent.NewOptimizer(h.client, h.counter, optimizerConfigFrom(&req))
	runErr := optimizer.Run(ctx, func(event stream.Event) error {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordEvent(endpoint, string(event.Type))
			if event.Type == stream.EventCandidateEvaluated && event.Node != nil {
				m.RecordCandidateTokens(event.Node.CommunicationTokens)
			}
		}
		return writer.WriteEvent(event)
	})

	close(heartbeatDone)

	if runErr != nil {
		h.finishStreamError(endpoint, writer, runErr, "Optimize stream failed")
		return
	}

	success = true
}

// finishStreamError categorizes an engine failure after the SSE switch
// and relays it as an `error` event when the client is still connected.
func (h *streamingHandler) finishStreamError(endpoint observability.Endpoint, writer SSEWriter, runErr error, logMsg string) {
	if errors.Is(runErr, context.Canceled) {
		slog.Info("Client disconnected during stream", "endpoint", endpoint)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
			m.RecordClientDisconnect(endpoint)
		}
		return
	}

	slog.Error(logMsg, "error", runErr)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(endpoint, observability.ErrorCodeLLMError)
	}
	if err := writer.WriteEvent(stream.Event{Type: stream.EventError, Message: runErr.Error()}); err != nil {
		slog.Debug("Failed to write error event", "error", err)
	}
}

// runHeartbeat sends periodic keepalive pings to the SSE stream.
//
// Runs in a separate goroutine, sending SSE comments every
// heartbeatInterval so proxies do not cut the connection while the
// engine is waiting on the model. Stops when done is closed or the
// request context is cancelled.
func (h *streamingHandler) runHeartbeat(
	ctx context.Context,
	writer SSEWriter,
	endpoint observability.Endpoint,
	done <-chan struct{},
) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				slog.Debug("Failed to write keepalive", "error", err)
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(endpoint)
			}
		}
	}
}

// Compile-time interface check.
var _ StreamingHandler = (*streamingHandler)(nil)
