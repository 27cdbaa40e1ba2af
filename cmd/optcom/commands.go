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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL   string
	plainOutput bool

	agent1Prompt string
	agent2Prompt string
	agent1Name   string
	agent2Name   string
	protocolRule string

	inputPrompts []string
	rounds       int
	variations   int
	entryAgent   string

	speakVoice  string
	speakModel  string
	speakFormat string
	speakOutput string

	servePort    int
	serveBackend string
	serveModel   string
	serveGinMode string
	serveMetrics bool

	rootCmd = &cobra.Command{
		Use:   "optcom",
		Short: "A cli for the opt-com protocol optimizer",
		Long: `Optcom talks to the protocol optimizer service: it runs two-agent
				exchanges, searches for cheaper communication protocols, and
				synthesizes speech from the results.`,
	}

	// --- Exchange ---
	runCmd = &cobra.Command{
		Use:   "run [input]",
		Short: "Run one two-agent exchange and print the final answer",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRunCommand, // Defined in cmd_run.go
	}

	// --- Optimization ---
	optimizeCmd = &cobra.Command{
		Use:   "optimize",
		Short: "Search for a cheaper communication protocol",
		Long: `Optimize scores the current protocol against the given input prompts,
				then refines it round by round, keeping the variation that costs the
				fewest communication tokens.`,
		Run: runOptimizeCommand, // Defined in cmd_optimize.go
	}

	// --- Speech ---
	speakCmd = &cobra.Command{
		Use:   "speak [text]",
		Short: "Synthesize speech through the server-held credential",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSpeakCommand, // Defined in cmd_speak.go
	}

	// --- In-process Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the optimizer service in-process",
		Run:   runServeCommand, // Defined in cmd_serve.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Optimizer server URL (default from ~/.optcom/optcom.yaml)")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false,
		"Disable the interactive view and print events as lines")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&agent1Prompt, "agent1", "", "Role prompt for the first agent")
	runCmd.Flags().StringVar(&agent2Prompt, "agent2", "", "Role prompt for the second agent")
	runCmd.Flags().StringVar(&agent1Name, "agent1-name", "", "Display name for the first agent")
	runCmd.Flags().StringVar(&agent2Name, "agent2-name", "", "Display name for the second agent")
	runCmd.Flags().StringVar(&protocolRule, "protocol", "", "Communication rule both agents follow")

	rootCmd.AddCommand(optimizeCmd)
	optimizeCmd.Flags().StringVar(&agent1Prompt, "agent1", "", "Role prompt for the first agent")
	optimizeCmd.Flags().StringVar(&agent2Prompt, "agent2", "", "Role prompt for the second agent")
	optimizeCmd.Flags().StringVar(&agent1Name, "agent1-name", "", "Display name for the first agent")
	optimizeCmd.Flags().StringVar(&agent2Name, "agent2-name", "", "Display name for the second agent")
	optimizeCmd.Flags().StringVar(&protocolRule, "protocol", "", "Base communication rule to refine")
	optimizeCmd.Flags().StringArrayVar(&inputPrompts, "prompt", nil,
		"Evaluation prompt, repeatable (every candidate is scored against all of them)")
	optimizeCmd.Flags().IntVar(&rounds, "rounds", 0, "Refinement rounds (default 3)")
	optimizeCmd.Flags().IntVar(&variations, "variations", 0, "Rule variations per round (default 5)")
	optimizeCmd.Flags().StringVar(&entryAgent, "entry-agent", "", "Agent name that receives each prompt (default agent 1)")

	rootCmd.AddCommand(speakCmd)
	speakCmd.Flags().StringVar(&speakVoice, "voice", "", "Voice to synthesize with")
	speakCmd.Flags().StringVar(&speakModel, "model", "", "Speech model")
	speakCmd.Flags().StringVar(&speakFormat, "format", "", "Audio format (mp3, opus, aac, flac, wav)")
	speakCmd.Flags().StringVarP(&speakOutput, "output", "o", "", "Output filename (default: speech.<format>)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 12410, "HTTP server port")
	serveCmd.Flags().StringVar(&serveBackend, "backend", "openai", "LLM backend (openai, anthropic, ollama, fake)")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "Chat model for agent turns")
	serveCmd.Flags().StringVar(&serveGinMode, "gin-mode", "", "Gin framework mode (debug, release, test)")
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", true, "Expose Prometheus metrics on /metrics")
}
