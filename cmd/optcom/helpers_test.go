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
	"strings"
	"testing"

	"github.com/ShinnosukeUesaka/opt-com/cmd/optcom/config"
	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
)

func TestFirstNonEmpty(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"first set", []string{"a", "b"}, "a"},
		{"skips empty", []string{"", "b", "c"}, "b"},
		{"all empty", []string{"", ""}, ""},
		{"no values", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstNonEmpty(tt.values...); got != tt.want {
				t.Errorf("firstNonEmpty(%v) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}
}

func TestResolveServerURL(t *testing.T) {
	origFlag := serverURL
	origConfig := config.Global.Server.URL
	defer func() {
		serverURL = origFlag
		config.Global.Server.URL = origConfig
	}()

	serverURL = ""
	config.Global.Server.URL = ""
	t.Setenv("OPTCOM_SERVER_URL", "")

	if got := resolveServerURL(); got != stream.DefaultBaseURL {
		t.Errorf("unconfigured: got %q, want %q", got, stream.DefaultBaseURL)
	}

	config.Global.Server.URL = "http://config-host:4000/"
	if got := resolveServerURL(); got != "http://config-host:4000" {
		t.Errorf("config: got %q, want trailing slash trimmed", got)
	}

	t.Setenv("OPTCOM_SERVER_URL", "http://env-host:5000")
	if got := resolveServerURL(); got != "http://env-host:5000" {
		t.Errorf("env should override config: got %q", got)
	}

	serverURL = "http://flag-host:6000/"
	if got := resolveServerURL(); got != "http://flag-host:6000" {
		t.Errorf("flag should override env: got %q", got)
	}
}

func TestExtractDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"json detail", `{"detail":"Invalid request: rounds must be at least 1"}`, "Invalid request: rounds must be at least 1"},
		{"plain text", "upstream exploded\n", "upstream exploded"},
		{"json without detail", `{"error":"nope"}`, `{"error":"nope"}`},
		{"empty body", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractDetail([]byte(tt.body)); got != tt.want {
				t.Errorf("extractDetail(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestBuildRunRequest(t *testing.T) {
	origConfig := config.Global
	origAgent1, origAgent2 := agent1Prompt, agent2Prompt
	origName1, origName2 := agent1Name, agent2Name
	origProtocol := protocolRule
	defer func() {
		config.Global = origConfig
		agent1Prompt, agent2Prompt = origAgent1, origAgent2
		agent1Name, agent2Name = origName1, origName2
		protocolRule = origProtocol
	}()

	config.Global = config.DefaultConfig()
	agent1Prompt, agent2Prompt = "", ""
	agent1Name, agent2Name = "", ""
	protocolRule = ""

	req := buildRunRequest("What should I pack for Toronto?")
	if req.UserInput != "What should I pack for Toronto?" {
		t.Errorf("UserInput = %q", req.UserInput)
	}
	if req.Agent1Prompt != config.Global.Agents.Agent1Prompt {
		t.Errorf("Agent1Prompt should fall back to config, got %q", req.Agent1Prompt)
	}
	if req.Agent1Name != "Agent 1" || req.Agent2Name != "Agent 2" {
		t.Errorf("names should fall back to config, got %q / %q", req.Agent1Name, req.Agent2Name)
	}
	if req.Protocol == "" {
		t.Error("Protocol should fall back to the config default")
	}

	agent1Prompt = "You are a travel planner."
	agent2Name = "Forecaster"

	req = buildRunRequest("x")
	if req.Agent1Prompt != "You are a travel planner." {
		t.Errorf("flag should override config, got %q", req.Agent1Prompt)
	}
	if req.Agent2Name != "Forecaster" {
		t.Errorf("flag should override config, got %q", req.Agent2Name)
	}
	if req.Agent2Prompt != config.Global.Agents.Agent2Prompt {
		t.Errorf("untouched field should still fall back, got %q", req.Agent2Prompt)
	}
}

func TestBuildOptimizeRequest(t *testing.T) {
	origConfig := config.Global
	origPrompts := inputPrompts
	origRounds, origVariations := rounds, variations
	origEntry := entryAgent
	origProtocol := protocolRule
	defer func() {
		config.Global = origConfig
		inputPrompts = origPrompts
		rounds, variations = origRounds, origVariations
		entryAgent = origEntry
		protocolRule = origProtocol
	}()

	config.Global = config.DefaultConfig()
	inputPrompts = []string{"What is the weather in Tokyo?", "Plan a weekend in Kyoto."}
	rounds = 4
	variations = 2
	entryAgent = "agent2"
	protocolRule = "Use terse keyword phrases."

	req := buildOptimizeRequest()
	if len(req.InputPrompts) != 2 || req.InputPrompts[0] != "What is the weather in Tokyo?" {
		t.Errorf("InputPrompts = %v", req.InputPrompts)
	}
	if req.Rounds != 4 {
		t.Errorf("Rounds = %d, want 4", req.Rounds)
	}
	if req.VariationCount != 2 {
		t.Errorf("VariationCount = %d, want 2", req.VariationCount)
	}
	if req.EntryAgent != "agent2" {
		t.Errorf("EntryAgent = %q, want agent2", req.EntryAgent)
	}
	if req.Protocol != "Use terse keyword phrases." {
		t.Errorf("Protocol = %q", req.Protocol)
	}
}

func TestRuleSnippet(t *testing.T) {
	if got := ruleSnippet("Short rule."); got != "Short rule." {
		t.Errorf("short rule changed: %q", got)
	}

	flat := ruleSnippet("Line one.\nLine two.\n\tIndented.")
	if strings.ContainsAny(flat, "\n\t") {
		t.Errorf("snippet should be a single line, got %q", flat)
	}
	if flat != "Line one. Line two. Indented." {
		t.Errorf("whitespace collapse: got %q", flat)
	}

	long := strings.Repeat("word ", 30)
	got := ruleSnippet(long)
	if len([]rune(got)) != 60 {
		t.Errorf("truncated snippet length = %d runes, want 60", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated snippet should end with ellipsis, got %q", got)
	}
}
