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
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShinnosukeUesaka/opt-com/cmd/optcom/internal/tui"
	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
	"github.com/ShinnosukeUesaka/opt-com/pkg/viz"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/datatypes"
)

func runOptimizeCommand(cmd *cobra.Command, args []string) {
	if len(inputPrompts) == 0 {
		log.Fatalf("At least one --prompt is required")
	}
	req := buildOptimizeRequest()

	ctx, cancel := commandContext()
	defer cancel()

	sess := stream.NewSession(stream.SessionConfig{BaseURL: resolveServerURL()})

	var state *viz.TreeState
	var err error
	if interactiveOutput() {
		state, err = tui.RunTree(ctx, sess, "/api/optimize/stream", req)
	} else {
		state, err = runOptimizePlain(ctx, sess, req)
	}
	if err != nil && err != context.Canceled {
		log.Fatalf("Optimization error: %v", err)
	}

	printOptimizeResult(state)
}

// runOptimizePlain prints one line per tree event. Used for piped output
// and --plain.
func runOptimizePlain(ctx context.Context, sess *stream.Session, req datatypes.OptimizeRequest) (*viz.TreeState, error) {
	state := viz.NewTreeState()
	done := make(chan struct{})
	var streamErr error

	cancelStream := sess.Open(ctx, "/api/optimize/stream", req, stream.Callbacks{
		OnEvent: func(event stream.Event) {
			state.Apply(event)
			node := event.Node
			if node == nil {
				return
			}
			switch event.Type {
			case stream.EventBaseEvaluated:
				fmt.Printf("round 0 base: %.1f tok  %s\n", node.CommunicationTokens, ruleSnippet(node.Rule))
			case stream.EventCandidateEvaluated:
				fmt.Printf("round %d candidate: %.1f tok  %s\n", node.RoundIndex, node.CommunicationTokens, ruleSnippet(node.Rule))
			case stream.EventBestUpdated:
				fmt.Printf("best -> %.1f tok  %s\n", node.CommunicationTokens, ruleSnippet(node.Rule))
			}
		},
		OnError: func(err error) {
			streamErr = err
		},
		OnClose: func() {
			close(done)
		},
	})
	defer cancelStream()

	<-done
	return state, streamErr
}

// printOptimizeResult writes the outcome to stdout.
func printOptimizeResult(state *viz.TreeState) {
	switch state.Status() {
	case viz.RunComplete:
		best, ok := state.BestNode()
		if !ok {
			log.Fatalf("Optimization finished without a best rule")
		}
		fmt.Printf("\nBest rule (%.1f tok, %d nodes explored):\n%s\n", best.CommunicationTokens, state.Len(), best.Rule)
	case viz.RunFailed:
		log.Fatalf("Optimization failed: %s", state.ErrorMessage())
	default:
		fmt.Println("\nOptimization cancelled before completion.")
	}
}

// ruleSnippet flattens a rule to a single log-friendly line.
func ruleSnippet(rule string) string {
	const max = 60
	flat := strings.Join(strings.Fields(rule), " ")
	runes := []rune(flat)
	if len(runes) <= max {
		return flat
	}
	return string(runes[:max-1]) + "…"
}
