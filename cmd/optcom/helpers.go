// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/ShinnosukeUesaka/opt-com/cmd/optcom/config"
	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/datatypes"
)

// resolveServerURL returns the optimizer server address.
func resolveServerURL() string {
	// 1. Priority: the --server flag
	if serverURL != "" {
		return strings.TrimSuffix(serverURL, "/")
	}
	// 2. Environment variable (used by tests and container overrides)
	if url := os.Getenv("OPTCOM_SERVER_URL"); url != "" {
		return strings.TrimSuffix(url, "/")
	}
	// 3. User config
	if url := config.Global.Server.URL; url != "" {
		return strings.TrimSuffix(url, "/")
	}
	// 4. Default: standard host/port
	return stream.DefaultBaseURL
}

// firstNonEmpty returns the first value that is set.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// interactiveOutput reports whether the interactive view should be used.
// The view renders to stderr, so that is the stream that must be a TTY.
func interactiveOutput() bool {
	if plainOutput {
		return false
	}
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// commandContext returns a context cancelled by SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}

// buildRunRequest assembles an exchange request, flags over config.
func buildRunRequest(input string) datatypes.RunRequest {
	return datatypes.RunRequest{
		Agent1Prompt: firstNonEmpty(agent1Prompt, config.Global.Agents.Agent1Prompt),
		Agent2Prompt: firstNonEmpty(agent2Prompt, config.Global.Agents.Agent2Prompt),
		Agent1Name:   firstNonEmpty(agent1Name, config.Global.Agents.Agent1Name),
		Agent2Name:   firstNonEmpty(agent2Name, config.Global.Agents.Agent2Name),
		Protocol:     firstNonEmpty(protocolRule, config.Global.Protocol),
		UserInput:    input,
	}
}

// buildOptimizeRequest assembles an optimization request, flags over config.
func buildOptimizeRequest() datatypes.OptimizeRequest {
	return datatypes.OptimizeRequest{
		Agent1Prompt:   firstNonEmpty(agent1Prompt, config.Global.Agents.Agent1Prompt),
		Agent2Prompt:   firstNonEmpty(agent2Prompt, config.Global.Agents.Agent2Prompt),
		Agent1Name:     firstNonEmpty(agent1Name, config.Global.Agents.Agent1Name),
		Agent2Name:     firstNonEmpty(agent2Name, config.Global.Agents.Agent2Name),
		Protocol:       firstNonEmpty(protocolRule, config.Global.Protocol),
		InputPrompts:   inputPrompts,
		Rounds:         rounds,
		VariationCount: variations,
		EntryAgent:     entryAgent,
	}
}

// extractDetail pulls the detail field out of a server error body, falling
// back to the raw body when it is not the usual JSON shape.
func extractDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(body))
}
