// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

type OptcomConfig struct {
	// Server: where the optimizer service listens
	Server ServerConfig `yaml:"server"`

	// Agents: default role prompts and display names used when the
	// corresponding flags are omitted
	Agents AgentsConfig `yaml:"agents"`

	// Protocol: default communication rule for runs and optimizations
	Protocol string `yaml:"protocol"`

	// Speech: defaults for the speak command
	Speech SpeechConfig `yaml:"speech"`
}

type ServerConfig struct {
	URL string `yaml:"url"` // e.g. http://localhost:12410
}

type AgentsConfig struct {
	Agent1Prompt string `yaml:"agent1_prompt"`
	Agent2Prompt string `yaml:"agent2_prompt"`
	Agent1Name   string `yaml:"agent1_name"`
	Agent2Name   string `yaml:"agent2_name"`
}

type SpeechConfig struct {
	Voice  string `yaml:"voice"`  // e.g. alloy
	Model  string `yaml:"model"`  // e.g. tts-1
	Format string `yaml:"format"` // e.g. mp3
}

func DefaultConfig() OptcomConfig {
	return OptcomConfig{
		Server: ServerConfig{
			URL: "http://localhost:12410",
		},
		Agents: AgentsConfig{
			Agent1Prompt: "You are a planning assistant. Answer the user's request, consulting your counterpart agent whenever you need information you do not have.",
			Agent2Prompt: "You are a domain expert. Answer questions from the other agent as accurately as you can.",
			Agent1Name:   "Agent 1",
			Agent2Name:   "Agent 2",
		},
		Protocol: "Communicate in clear, complete English sentences.",
		Speech: SpeechConfig{
			Voice:  "alloy",
			Model:  "tts-1",
			Format: "mp3",
		},
	}
}
