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

func runRunCommand(cmd *cobra.Command, args []string) {
	input := strings.Join(args, " ")
	req := buildRunRequest(input)

	ctx, cancel := commandContext()
	defer cancel()

	sess := stream.NewSession(stream.SessionConfig{BaseURL: resolveServerURL()})

	var state *viz.ExchangeState
	var err error
	if interactiveOutput() {
		state, err = tui.RunExchange(ctx, sess, "/api/run/stream", req)
	} else {
		state, err = runExchangePlain(ctx, sess, req)
	}
	if err != nil && err != context.Canceled {
		log.Fatalf("Exchange error: %v", err)
	}

	printExchangeResult(state)
}

// runExchangePlain prints each event as a line. Used for piped output and
// --plain.
func runExchangePlain(ctx context.Context, sess *stream.Session, req datatypes.RunRequest) (*viz.ExchangeState, error) {
	state := viz.NewExchangeState()
	done := make(chan struct{})
	var streamErr error

	cancelStream := sess.Open(ctx, "/api/run/stream", req, stream.Callbacks{
		OnEvent: func(event stream.Event) {
			state.Apply(event)
			if event.Type == stream.EventAgentMessage {
				fmt.Printf("[%s -> %s] %s (%d tok)\n", event.From, event.To, event.Message, event.Tokens)
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

// printExchangeResult writes the outcome to stdout.
func printExchangeResult(state *viz.ExchangeState) {
	switch state.Status() {
	case viz.RunComplete:
		fmt.Printf("\nFinal answer:\n%s\n\nCommunication: %d tokens\n", state.FinalText(), state.FinalTokens())
	case viz.RunFailed:
		log.Fatalf("Exchange failed: %s", state.ErrorMessage())
	default:
		fmt.Println("\nExchange cancelled before completion.")
	}
}
